package middleware

import (
	"net/http"
)

// MaxBodySize bounds federation request bodies. Evaluation requests and
// token exchanges are small JSON documents.
const MaxBodySize int64 = 1 << 20

// RequestSize caps incoming request bodies with http.MaxBytesReader; bodies
// over the limit fail with 413 when read.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
