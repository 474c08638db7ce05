package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"github.com/dmitrijs2005/tglinker/internal/server/auth"
	"github.com/dmitrijs2005/tglinker/internal/server/models"
)

type ctxKey int

const ownerKey ctxKey = iota

// requireAuth validates the bearer access token and stores the owner on the
// request context.
func (rt *Router) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			rt.writeError(w, r, common.ErrorUnauthorized)
			return
		}

		claims, err := auth.ParseTokenOfType(token, auth.TokenTypeAccess, []byte(rt.cfg.JWTSecret))
		if err != nil {
			rt.writeError(w, r, common.ErrInvalidToken)
			return
		}

		owner := models.Owner{ID: claims.UserID, Email: claims.Email}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

// ownerFrom returns the authenticated owner stored by requireAuth.
func ownerFrom(ctx context.Context) (models.Owner, bool) {
	owner, ok := ctx.Value(ownerKey).(models.Owner)
	return owner, ok
}
