package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"plateful/internal/apperr"
	"plateful/internal/domain"
)

type contextKey string

const userKey contextKey = "user"

// currentUser pulls the authenticated user placed by requireAuth.
func currentUser(r *http.Request) *domain.User {
	u, _ := r.Context().Value(userKey).(*domain.User)
	return u
}

// requireAuth resolves the Bearer token to a user and stores it on the
// request context.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeErr(w, apperr.New(apperr.CodePermissionDenied, "missing bearer token"))
			return
		}
		user, err := h.Auth.CurrentUser(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeErr(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	}
}

// recoverMiddleware keeps panics from escaping the API boundary; they
// surface as UNKNOWN_ERROR envelopes like any other failure.
func recoverMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
					writeErr(w, apperr.New(apperr.CodeUnknown, ""))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func loggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("took", time.Since(start)).
				Msg("request")
		})
	}
}
