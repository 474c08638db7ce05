package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"github.com/dmitrijs2005/tglinker/internal/server/models"
	"github.com/dmitrijs2005/tglinker/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type jobResponse struct {
	JobID string `json:"job_id"`
}

type accountResponse struct {
	ID        string `json:"id"`
	Phone     string `json:"phone"`
	Status    string `json:"status"`
	HasSecret bool   `json:"has_secret"`
	CreatedAt string `json:"created_at"`
}

// toAccountResponse renders an account without exposing the session secret.
func toAccountResponse(a *models.LinkedAccount) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Phone:     a.Phone,
		Status:    string(a.Status),
		HasSecret: a.SessionString != nil,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (rt *Router) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps sentinel errors to HTTP statuses. Unknown errors collapse
// into a generic 500 so internals never leak to clients.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var msg string

	switch {
	case errors.Is(err, common.ErrorValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrEmailNotConfirmed):
		status, msg = http.StatusUnauthorized, "please confirm your email first"
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenReuse),
		errors.Is(err, common.ErrSessionNotFound),
		errors.Is(err, common.ErrSessionExpired):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrorAlreadyExists):
		status, msg = http.StatusConflict, "already exists"
	case errors.Is(err, common.ErrorNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrEnqueueFailed):
		status, msg = http.StatusServiceUnavailable, "temporarily unavailable"
	default:
		status, msg = http.StatusInternalServerError, "internal error"
		rt.logger.Error(r.Context(), "request failed",
			"path", r.URL.Path, "error", err.Error())
	}

	rt.writeJSON(w, status, errorResponse{Error: msg})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.ErrorValidation
	}
	return nil
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (rt *Router) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if _, err := rt.auth.Signup(r.Context(), req.Email, req.Password); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusCreated, messageResponse{Message: "confirmation email sent"})
}

func (rt *Router) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if err := rt.auth.ConfirmEmail(r.Context(), token); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, messageResponse{Message: "email confirmed"})
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	pair, err := rt.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (rt *Router) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	pair, err := rt.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.tokens.Revoke(r.Context(), req.RefreshToken); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (rt *Router) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r.Context())
	if !ok {
		rt.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.auth.ChangePassword(r.Context(), owner.ID, req.CurrentPassword, req.NewPassword); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, messageResponse{Message: "password changed"})
}

func (rt *Router) handleProfile(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r.Context())
	if !ok {
		rt.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	user, err := rt.auth.Profile(r.Context(), owner.ID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{
		"id":             user.ID,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
	})
}

func (rt *Router) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r.Context())
	if !ok {
		rt.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	if err := rt.auth.DeleteAccount(r.Context(), owner.ID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, messageResponse{Message: "account deleted"})
}

func (rt *Router) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r.Context())
	if !ok {
		rt.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	accounts, err := rt.accounts.List(r.Context(), owner.ID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	rt.writeJSON(w, http.StatusOK, out)
}

type createAccountRequest struct {
	Phone         string  `json:"phone"`
	SessionString *string `json:"session_string,omitempty"`
	Status        string  `json:"status,omitempty"`
}

func (rt *Router) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r.Context())
	if !ok {
		rt.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	var req createAccountRequest
	if err := decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	account, err := rt.accounts.Create(r.Context(), owner.ID, req.Phone, req.SessionString, models.LinkedAccountStatus(req.Status))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

type updateAccountRequest struct {
	Phone         *string `json:"phone,omitempty"`
	SessionString *string `json:"session_string,omitempty"`
	ClearSession  bool    `json:"clear_session,omitempty"`
	Status        *string `json:"status,omitempty"`
}

func (rt *Router) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r.Context())
	if !ok {
		rt.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	var req updateAccountRequest
	if err := decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	in := services.UpdateInput{
		Phone:         req.Phone,
		SessionString: req.SessionString,
		ClearSession:  req.ClearSession,
	}
	if req.Status != nil {
		status := models.LinkedAccountStatus(*req.Status)
		in.Status = &status
	}
	account, err := rt.accounts.Update(r.Context(), owner.ID, chi.URLParam(r, "id"), in)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (rt *Router) handleDeleteLinkedAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r.Context())
	if !ok {
		rt.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	if err := rt.accounts.Remove(r.Context(), owner.ID, chi.URLParam(r, "id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, messageResponse{Message: "account removed"})
}

type requestCodeRequest struct {
	Phone string `json:"phone"`
}

func (rt *Router) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r.Context())
	if !ok {
		rt.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	var req requestCodeRequest
	if err := decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	jobID, err := rt.accounts.RequestCode(r.Context(), owner, req.Phone)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusAccepted, jobResponse{JobID: jobID})
}

type verifyCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (rt *Router) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(r.Context())
	if !ok {
		rt.writeError(w, r, common.ErrorUnauthorized)
		return
	}
	var req verifyCodeRequest
	if err := decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	jobID, err := rt.accounts.VerifyCode(r.Context(), owner, req.Phone, req.Code)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusAccepted, jobResponse{JobID: jobID})
}
