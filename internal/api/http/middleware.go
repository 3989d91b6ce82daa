package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"equipment-scheduler/internal/domain"
	"equipment-scheduler/internal/logger"
	"equipment-scheduler/internal/security"
)

type contextKey string

const actorKey contextKey = "actor"

// AuthMiddleware resolves the bearer token into the acting user.
type AuthMiddleware struct {
	tokenManager security.TokenManager
}

// NewAuthMiddleware validates tokens with tm.
func NewAuthMiddleware(tm security.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm}
}

// Handler rejects requests without a valid bearer token and stores the
// resolved actor in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: "authorization token is not provided"})
			return
		}

		claims, err := m.tokenManager.ValidateToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: err.Error()})
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, m.tokenManager.Actor(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext returns the actor set by AuthMiddleware.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs each request the way the rest of the service logs
// outbound calls.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		logger.Debug("→ HTTP request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(rec, r)
		logger.Info("← HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
