package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"snb_ledger/internal/domain"
)

const (
	requestIDHeader        = "X-Request-ID"
	customerNameHeader     = "X-Customer-Name"
	customerPasswordHeader = "X-Customer-Password"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	customerKey
)

// AdminAuth checks HTTP basic credentials against the single configured admin.
// Only a bcrypt hash of the password is kept.
type AdminAuth struct {
	username string
	hash     []byte
}

func NewAdminAuth(username, password string, cost int) (*AdminAuth, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	return &AdminAuth{username: username, hash: hash}, nil
}

func (a *AdminAuth) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	return userOK && passOK
}

// statusResponseWriter captures the status code and error code of a response.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
	errorCode  string
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func customerFrom(ctx context.Context) (domain.Customer, bool) {
	c, ok := ctx.Value(customerKey).(domain.Customer)
	return c, ok
}

// requestMiddleware tags the request with an id, then logs it and records the operation
// metric under the route name once it completes.
func (h *APIHandler) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		srw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(srw, r)
		duration := time.Since(start)

		if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
			outcome := "success"
			if srw.statusCode >= http.StatusBadRequest {
				outcome = srw.errorCode
				if outcome == "" {
					outcome = http.StatusText(srw.statusCode)
				}
			}
			h.metrics.RecordOperation(route.GetName(), outcome, duration)
		}

		h.logger.InfoContext(r.Context(), "Request handled",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", srw.statusCode),
			slog.Duration("duration", duration))
	})
}

func (h *APIHandler) customerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.Header.Get(customerNameHeader)
		password := r.Header.Get(customerPasswordHeader)
		if name == "" || password == "" {
			h.sendError(w, r, "Customer credentials are required", http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}

		customer, err := h.processor.Authenticate(r.Context(), name, password)
		if err != nil {
			h.sendProcessorError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), customerKey, customer)))
	})
}

func (h *APIHandler) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !h.admin.Verify(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ledger-admin"`)
			h.sendError(w, r, domain.ErrAuthenticationRejected.Error(), http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}
		next.ServeHTTP(w, r)
	})
}
