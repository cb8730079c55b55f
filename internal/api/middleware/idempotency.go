package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"taskstream/internal/idempotency"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type ctxKey struct{}

// IdempotencyKey moves the Idempotency-Key header into the request context.
// Deduplication itself happens in the store, so concurrent requests with the
// same key are both let through and resolve to the same record.
func IdempotencyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only apply to state-changing methods
		if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
			next.ServeHTTP(w, r)
			return
		}

		key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		if len(key) > idempotency.MaxKeyLength {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": idempotency.ErrKeyTooLong.Error()})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, key)))
	})
}

// IdempotencyKeyFrom returns the header key stored by IdempotencyKey, or "".
func IdempotencyKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(ctxKey{}).(string)
	return key
}
