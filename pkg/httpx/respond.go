// Package httpx holds the JSON envelope and identity helpers shared by the
// HTTP handlers.
package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmehra2102/storefront/pkg/apperr"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// Error writes err with the status its taxonomy maps to. Server-side
// failures are logged and reported without detail.
func Error(w http.ResponseWriter, log *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		log.Error("unexpected error", "err", err)
		msg = "Internal server error"
	case http.StatusServiceUnavailable:
		log.Error("backend unavailable", "err", err)
		msg = "Service temporarily unavailable, please try again"
	}
	if apperr.Retryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	Fail(w, status, msg)
}

func Fail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &errorBody{Message: msg, StatusCode: status}})
}

// Decode reads a JSON body into dst, rejecting unknown fields.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid body: %v", err)
	}
	return nil
}

// UserIDHeader carries the caller identity set by the upstream gateway.
const UserIDHeader = "X-User-ID"

type userKey struct{}

// Identify stores the caller's user id, if any, in the request context.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(UserIDHeader); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), userKey{}, id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests without a caller identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserID(r.Context()); !ok {
			Fail(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}
