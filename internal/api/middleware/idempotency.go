package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dodoapp/lullaby-backend/internal/cache"
)

const IdempotencyHeader = "Idempotency-Key"

// IdemStore records keys; Claim reports false when key is already held.
type IdemStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Idempotency rejects a repeated Idempotency-Key on unsafe methods with 409
// while the key is held, whatever path the request took. Requests without the
// header pass through. A key is
// released again when the handler answers with a 5xx so the client may retry.
// Store errors let the request through.
func Idempotency(store IdemStore, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			fullKey := cache.Key("idem", r.Method, key)
			ok, err := store.Claim(r.Context(), fullKey, ttl)
			if err != nil {
				slog.Warn("idempotency store unavailable", "error", err, "request_id", chimiddleware.GetReqID(r.Context()))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				writeError(w, http.StatusConflict, "duplicate request")
				return
			}

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() >= http.StatusInternalServerError {
				if err := store.Release(context.WithoutCancel(r.Context()), fullKey); err != nil {
					slog.Warn("release idempotency key", "error", err)
				}
			}
		})
	}
}
