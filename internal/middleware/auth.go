package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pointline/pointline-api/internal/pkg/jwt"
	"github.com/pointline/pointline-api/internal/pkg/response"
)

type contextKey string

const (
	OperatorIDKey contextKey = "operator_id"
	RequestIDKey  contextKey = "request_id"
)

// Auth returns middleware that validates the operator's bearer token.
// Role checks belong to the auth service; this only establishes who is acting.
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtService.ValidateAccessToken(parts[1])
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			ctx := WithOperatorID(r.Context(), claims.OperatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithOperatorID stores the acting operator in ctx
func WithOperatorID(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, OperatorIDKey, operatorID)
}

// GetOperatorID extracts the acting operator from context
func GetOperatorID(ctx context.Context) string {
	if id, ok := ctx.Value(OperatorIDKey).(string); ok {
		return id
	}
	return ""
}
