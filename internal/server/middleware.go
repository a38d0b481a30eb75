package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// UserHeader carries the anonymous user id between the client and the server.
	UserHeader      = "X-User-ID"
	RequestIDHeader = "X-Request-ID"
)

type ctxKey int

const userKey ctxKey = iota

// userID returns the user id stored by withUser.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(userKey).(string)
	return id
}

// withUser assigns every request a user id. A valid UUID sent by the client
// is kept, anything else is replaced by a fresh one.
func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(UserHeader))
		if err != nil {
			id = uuid.New()
		}

		w.Header().Set(UserHeader, id.String())
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, id.String())))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set(RequestIDHeader, requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("user_id", userID(r.Context())),
		)
	})
}
