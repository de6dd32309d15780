package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gangkeeper-backend/internal/config"
	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"
	"gangkeeper-backend/internal/security"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorFromContext returns the authenticated actor set by the auth middleware.
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

// requestContext tags the request with an id, recovers panics and logs the
// outcome.
func (h *Handler) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := logger.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				logger.ErrorContext(ctx, "Handler panicked", "path", r.URL.Path, "panic", p)
				writeJSON(rec, http.StatusInternalServerError, errorBody{Error: "internal error", RequestID: requestID})
			}
			logger.InfoContext(ctx, "HTTP request",
				"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// authenticate enforces the security level configured for the matched route.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}
		level := config.GetSecurityLevel(name)

		// Public endpoint - skip auth
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractToken(r)
		if !ok {
			writeStatus(w, r, http.StatusUnauthorized, "authorization token is not provided")
			return
		}

		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, security.ErrExpiredToken) {
				msg = "token has expired"
			}
			writeStatus(w, r, http.StatusUnauthorized, msg)
			return
		}

		if err := checkSecurityLevel(level, claims); err != nil {
			writeStatus(w, r, http.StatusForbidden, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, claims.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) (string, bool) {
	token := r.Header.Get("Authorization")
	if token == "" {
		return "", false
	}
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return token, token != ""
}

func checkSecurityLevel(level config.SecurityLevel, claims *security.ActorClaims) error {
	switch level {
	case config.SecurityAccess:
		if claims.Type != security.TokenTypeAccess {
			return errors.New("access token required")
		}
	case config.SecurityService:
		if claims.Type != security.TokenTypeService {
			return errors.New("service token required")
		}
	}
	return nil
}
