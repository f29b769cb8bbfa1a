package middleware

import (
	"net/http"

	"github.com/cloo-solutions/sheetrag/internal/api"
)

// MaxBodyBytes caps the request body at limit bytes. A declared length over
// the cap is refused up front; an undeclared one fails on the read that
// crosses it, which handlers see as *http.MaxBytesError.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				api.TooLarge(w, limit)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
