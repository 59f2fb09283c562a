// Package handler exposes account registration, login and logout over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/noahsadir/courseman/internal/account/domain"
	"github.com/noahsadir/courseman/internal/account/service"
	"github.com/noahsadir/courseman/internal/platform/rbac"
	"github.com/noahsadir/courseman/internal/platform/respond"
	"github.com/noahsadir/courseman/internal/security"
	sessiondomain "github.com/noahsadir/courseman/internal/session/domain"
)

// AccountAPI is the account service as seen by the handler.
type AccountAPI interface {
	Register(ctx context.Context, email, password string) (*domain.Account, error)
	Authenticate(ctx context.Context, email, password, requestID string) (*sessiondomain.Session, error)
	Logout(ctx context.Context, accountID string) error
}

// Handler serves /create_user, /authenticate_user and /logout_user.
type Handler struct {
	accounts AccountAPI
	verifier rbac.TokenVerifier
	apiKey   string
	resp     respond.Responder
}

// NewHandler returns an account Handler. apiKey may be empty outside production.
func NewHandler(accounts AccountAPI, verifier rbac.TokenVerifier, apiKey string, resp respond.Responder) *Handler {
	return &Handler{accounts: accounts, verifier: verifier, apiKey: apiKey, resp: resp}
}

type credentialsRequest struct {
	APIKey    string `json:"api_key"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	RequestID string `json:"request_id"`
}

type logoutRequest struct {
	InternalID string `json:"internal_id"`
	Token      string `json:"token"`
}

// CreateUser registers an account and returns its internal id.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decodeCredentials(r, &req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	acct, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.resp.Fail(w, r, mapError(err))
		return
	}
	h.resp.JSON(w, http.StatusOK, map[string]any{
		"message":     "Successfully created user.",
		"internal_id": acct.InternalID,
	})
}

// AuthenticateUser exchanges email and password for a session token.
func (h *Handler) AuthenticateUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decodeCredentials(r, &req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	sess, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password, req.RequestID)
	if err != nil {
		h.resp.Fail(w, r, mapError(err))
		return
	}
	h.resp.JSON(w, http.StatusOK, map[string]any{
		"message":     "Successfully authenticated user.",
		"internal_id": sess.AccountID,
		"token":       sess.Token,
		"expires_at":  sess.ExpiresAt.Format(time.RFC3339),
	})
}

// LogoutUser revokes the caller's session. The token being revoked must be valid.
func (h *Handler) LogoutUser(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	if err := rbac.RequireSession(r.Context(), h.verifier, req.InternalID, req.Token); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	if err := h.accounts.Logout(r.Context(), req.InternalID); err != nil {
		h.resp.Fail(w, r, err)
		return
	}
	h.resp.Message(w, http.StatusOK, "Successfully logged out.")
}

func (h *Handler) decodeCredentials(r *http.Request, req *credentialsRequest) error {
	if err := respond.DecodeJSON(r, req); err != nil {
		return err
	}
	if !rbac.Present(req.APIKey, req.Email, req.Password) && h.apiKey != "" {
		return respond.MissingArgs()
	}
	if !rbac.Present(req.Email, req.Password) {
		return respond.MissingArgs()
	}
	if !security.KeyMatches(h.apiKey, req.APIKey) {
		return &respond.Failure{Status: http.StatusUnauthorized, Code: respond.CodeInvalidAPIKey, Message: "The API key is invalid."}
	}
	return nil
}

func mapError(err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return respond.BadRequest(verr.Reason)
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		return &respond.Failure{Status: http.StatusConflict, Code: respond.CodeEmailTaken, Message: "An account with this email already exists."}
	case errors.Is(err, service.ErrInvalidCredentials):
		return &respond.Failure{Status: http.StatusUnauthorized, Code: respond.CodeInvalidCreds, Message: "The email or password is incorrect."}
	}
	return err
}
