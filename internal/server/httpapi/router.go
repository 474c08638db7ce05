// Package httpapi exposes the server's JSON HTTP surface. Handlers stay
// thin: decode, call a service, map the error, encode.
package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/tglinker/internal/logging"
	"github.com/dmitrijs2005/tglinker/internal/server/config"
	"github.com/dmitrijs2005/tglinker/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router wires HTTP routes to the service layer.
type Router struct {
	auth     *services.AuthService
	tokens   *services.TokenService
	accounts *services.LinkedAccountService
	cfg      *config.Config
	logger   logging.Logger
}

func NewRouter(auth *services.AuthService, tokens *services.TokenService, accounts *services.LinkedAccountService, cfg *config.Config, logger logging.Logger) *Router {
	return &Router{
		auth:     auth,
		tokens:   tokens,
		accounts: accounts,
		cfg:      cfg,
		logger:   logger.With("module", "httpapi"),
	}
}

// Handler builds the chi mux.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", rt.handleSignup)
			r.Get("/confirm-email", rt.handleConfirmEmail)
			r.Post("/login", rt.handleLogin)
			r.Post("/refresh", rt.handleRefresh)
			r.Post("/logout", rt.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(rt.requireAuth)
				r.Post("/change-password", rt.handleChangePassword)
				r.Delete("/account", rt.handleDeleteAccount)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.requireAuth)
			r.Get("/profile", rt.handleProfile)

			r.Route("/telegram-accounts", func(r chi.Router) {
				r.Get("/", rt.handleListAccounts)
				r.Post("/", rt.handleCreateAccount)
				r.Patch("/{id}", rt.handleUpdateAccount)
				r.Delete("/{id}", rt.handleDeleteLinkedAccount)
				r.Post("/request-code", rt.handleRequestCode)
				r.Post("/verify", rt.handleVerifyCode)
			})
		})
	})

	return r
}
