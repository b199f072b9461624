package idempotency

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/storefront/pkg/httpx"
)

// Header names the client-chosen key that marks retries of one request.
const Header = "Idempotency-Key"

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Key scopes a client key to the caller and route so two users cannot
// collide.
func (s *Store) Key(route, caller, clientKey string) string {
	return "idem:" + route + ":" + caller + ":" + clientKey
}

// Seen records key and reports whether it was already recorded.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Forget drops key so the client may retry with it.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) succeeded() bool {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return status >= 200 && status < 300
}

// Middleware rejects a POST whose Idempotency-Key was already used by the
// same caller. A key is only kept once its request succeeded, so a failed
// attempt can be retried with the same key. Requests without the header,
// and requests made while Redis is unreachable, pass through.
func Middleware(log *slog.Logger, store *Store, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(Header)
			if r.Method != http.MethodPost || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			caller, ok := httpx.UserID(r.Context())
			if !ok {
				caller = "anonymous"
			}
			key := store.Key(route, caller, clientKey)
			seen, err := store.Seen(r.Context(), key)
			if err != nil {
				log.Warn("idempotency check failed, letting request through", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				log.Info("duplicate request rejected", "key", key)
				httpx.Fail(w, http.StatusConflict, "Duplicate request: this Idempotency-Key was already used")
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			completed := false
			defer func() {
				if completed && rec.succeeded() {
					return
				}
				ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
				defer cancel()
				if err := store.Forget(ctx, key); err != nil {
					log.Warn("idempotency key release failed", "key", key, "err", err)
				}
			}()
			next.ServeHTTP(rec, r)
			completed = true
		})
	}
}
