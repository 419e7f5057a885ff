// internal/server/middleware.go
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"adreel/internal/common/errors"
	"adreel/internal/common/metrics"
	"adreel/internal/models"
)

type contextKey string

const sessionContextKey contextKey = "session"

// sessionCookieName is the cookie carrying the session token. Clients may
// send an Authorization bearer token instead.
const sessionCookieName = "session_token"

type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRecovery converts handler panics into a 500 instead of tearing down
// the connection.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic", map[string]interface{}{
					"path":  r.URL.Path,
					"panic": rec,
				})
				writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
					"error": "internal server error",
					"code":  string(errors.ErrCodeInternalError),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withMetrics records request counts and latency under a stable route label.
func (s *Server) withMetrics(route string) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

			s.logger.Debug("request handled", map[string]interface{}{
				"route":    route,
				"method":   r.Method,
				"status":   recorder.status,
				"duration": time.Since(start).String(),
			})
		})
	}
}

// withTimeout bounds the whole request, render polls included, by the
// configured request timeout.
func (s *Server) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withAuth validates the session token and stores the session on the request
// context.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		session, err := s.auth.Validate(r.Context(), token)
		if err != nil {
			writeError(w, r, s.logger, "authenticate", err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func sessionFrom(r *http.Request) *models.Session {
	session, _ := r.Context().Value(sessionContextKey).(*models.Session)
	return session
}
