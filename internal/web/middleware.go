package web

import (
	"context"
	"net/http"
	"time"
)

type contextKey string

const userKey contextKey = "user"

// userFrom returns the authenticated username stored by requireAuth
func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey).(string)
	return user
}

// requireAuth checks HTTP basic credentials and stores the username as the
// acting principal.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="faraday"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		if err := s.service.Authenticate(r.Context(), username, password); err != nil {
			status := statusFor(err)
			if status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Basic realm="faraday"`)
				writeError(w, status, "invalid credentials")
				return
			}
			s.writeServiceError(w, r, err)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userKey, username)))
	})
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
