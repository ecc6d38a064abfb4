package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/atelierhq/atelier-api/internal/api/shared"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
)

// RoleOperator marks tokens that may use the admin endpoints.
const RoleOperator = "operator"

// Claims is the JWT claim set issued by the main application. The
// subject is the user ID; Role distinguishes regular users from
// operators.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates HS256 bearer tokens and places the caller's
// identity in the request context.
type AuthMiddleware struct {
	secret []byte
}

// NewAuthMiddleware creates an AuthMiddleware verifying with the given
// shared secret.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// Authenticate requires a valid bearer token and stores the user ID in
// the context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.verify(w, r)
		if !ok {
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token subject")
			return
		}

		ctx := context.WithValue(r.Context(), shared.UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOperator requires a valid bearer token carrying the operator
// role and stores the operator identity in the context for audit fields.
func (m *AuthMiddleware) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.verify(w, r)
		if !ok {
			return
		}

		if claims.Role != RoleOperator {
			logger.FromContext(r.Context()).Warn("non-operator token on admin endpoint",
				"subject", claims.Subject,
				"path", r.URL.Path)
			shared.RespondWithError(w, r, http.StatusForbidden, "Operator access required")
			return
		}

		ctx := context.WithValue(r.Context(), shared.OperatorContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verify extracts and validates the bearer token, writing the error
// response itself on failure.
func (m *AuthMiddleware) verify(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
		return nil, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
		return nil, false
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
		return nil, false
	}

	return claims, true
}
