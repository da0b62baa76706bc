package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jharjadi/tokenwise/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authSvc *service.AuthService
	admin   service.AdminAccount
}

// NewAuthHandler creates a new AuthHandler for the configured admin account.
func NewAuthHandler(authSvc *service.AuthService, admin service.AdminAccount) *AuthHandler {
	return &AuthHandler{
		authSvc: authSvc,
		admin:   admin,
	}
}

// loginRequest is the POST /v1/auth/login request body.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the POST /v1/auth/login response body.
type loginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Email    string `json:"email"`
}

// Login handles POST /v1/auth/login.
// Validates credentials against the admin account and returns a signed JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	if !h.admin.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "login is not configured")
		return
	}

	token, err := h.authSvc.Login(h.admin, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			// Don't reveal whether the email exists
			slog.Debug("login failed", "email", req.Email)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
			return
		}
		slog.Error("login: failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "authentication failed")
		return
	}

	slog.Info("user logged in",
		"event", "user_login",
		"tenant_id", h.admin.TenantID,
		"role", "admin",
		"email", req.Email,
	)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		UserID:   req.Email,
		TenantID: h.admin.TenantID,
		Role:     "admin",
		Email:    req.Email,
	})
}
