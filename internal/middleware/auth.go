// Package middleware provides HTTP middleware for the optimizer API.
//
// Every protected request carries a Principal. Its tenant scopes the
// optimize response cache fingerprint and every vector index row, so two
// tenants never see each other's cached results or indexed chunks.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jharjadi/tokenwise/internal/model"
	"github.com/jharjadi/tokenwise/internal/service"
)

// DefaultTenantID is used in dev mode when no tenant_id is supplied.
const DefaultTenantID = "default"

// Dev mode identity.
const (
	devUserID = "dev-user"
	devRole   = "admin"
)

type principalKey struct{}

// Principal is the caller identity attached to a request.
type Principal struct {
	TenantID string
	UserID   string
	Role     string
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller identity, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// TenantIDFromContext returns the caller's tenant, or "" outside AuthMiddleware.
func TenantIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.TenantID
}

// UserIDFromContext returns the caller's user id.
func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}

// RoleFromContext returns the caller's role.
func RoleFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}

// AuthMiddleware resolves the tenant that owns the request.
//
// With authEnabled the Authorization header must hold a Bearer JWT signed by
// authSvc. VerifyToken rejects tokens whose claims name no tenant. Without
// auth (dev mode) the tenant comes from the tenant_id query parameter,
// falling back to DefaultTenantID, and the caller is treated as an admin.
func AuthMiddleware(authSvc *service.AuthService, authEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authEnabled {
				tenantID := r.URL.Query().Get("tenant_id")
				if tenantID == "" {
					tenantID = DefaultTenantID
				}
				p := Principal{TenantID: tenantID, UserID: devUserID, Role: devRole}
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}

			tokenStr, msg := bearerToken(r)
			if msg != "" {
				writeAuthError(w, http.StatusUnauthorized, msg)
				return
			}

			claims, err := authSvc.VerifyToken(tokenStr)
			if err != nil {
				slog.Debug("JWT verification failed", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			p := Principal{TenantID: claims.TenantID, UserID: claims.UserID, Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// bearerToken extracts the token from the Authorization header. A non-empty
// msg describes why the header was rejected.
func bearerToken(r *http.Request) (token, msg string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing Authorization header"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "invalid Authorization header format (expected: Bearer <token>)"
	}
	token = strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}

// RequireRole rejects callers whose role is not listed. Must run after
// AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[RoleFromContext(r.Context())] {
				writeAuthError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{Error: http.StatusText(status), Message: message})
}
