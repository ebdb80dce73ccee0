package auth

import (
	"context"
	"net/http"
	"strings"

	"skymarket/internal/domain"
	"skymarket/pkg/logger"
	"skymarket/pkg/utils"
)

type contextKey string

const callerKey contextKey = "caller"

func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the caller stored by Middleware, or the anonymous caller.
func CallerFromContext(ctx context.Context) domain.Caller {
	caller, ok := ctx.Value(callerKey).(domain.Caller)
	if !ok {
		return domain.Anonymous
	}
	return caller
}

// Middleware resolves the caller from the Authorization header. Requests
// without credentials continue as anonymous; malformed or invalid
// credentials are rejected with 401.
func Middleware(verifier TokenVerifier, loggers *logger.Loggers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), domain.Anonymous)))
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authorization header must use the Bearer scheme")
				return
			}

			caller, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				loggers.InfoLogger.Debug("rejected bearer token", utils.Err(err))
				utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
