package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tableside/internal/domain"
	apperrors "tableside/internal/errors"
	"tableside/internal/httpjson"
)

type Verifier interface {
	Verify(token string) (domain.Identity, error)
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(domain.Identity)
	return id, ok
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

type Middleware struct {
	verifier Verifier
	logger   *zap.Logger
}

func NewMiddleware(verifier Verifier, logger *zap.Logger) *Middleware {
	return &Middleware{verifier: verifier, logger: logger}
}

// Authenticate rejects requests without a valid bearer credential and stores the
// verified identity in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			httpjson.WriteError(w, m.logger, uuid.New().String(), apperrors.NewUnauthorizedError("missing bearer token"))
			return
		}

		id, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Debug("credential rejected", zap.Error(err))
			httpjson.WriteError(w, m.logger, uuid.New().String(), err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Optional verifies a bearer credential when one is sent and passes anonymous
// requests through untouched.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := BearerToken(r); !ok {
			next.ServeHTTP(w, r)
			return
		}
		m.Authenticate(next).ServeHTTP(w, r)
	})
}

// RequireRole must run after Authenticate.
func (m *Middleware) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				httpjson.WriteError(w, m.logger, uuid.New().String(), apperrors.NewUnauthorizedError("missing bearer token"))
				return
			}
			if !id.HasRole(roles...) {
				httpjson.WriteError(w, m.logger, uuid.New().String(), apperrors.NewForbiddenError("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
