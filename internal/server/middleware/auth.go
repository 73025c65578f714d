package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/prophetlabs/prophetd/internal/crypto"
)

// maxAuthBody bounds how much request body the auth middleware will buffer
// for signature verification.
const maxAuthBody = 1 << 20

// Auth returns middleware that validates mutating requests with the HMAC
// request signature scheme. Read-only methods and preflight requests pass
// through unsigned. If auth is nil, authentication is disabled.
func Auth(auth *crypto.RequestAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ts := r.Header.Get(crypto.HeaderTimestamp)
			sig := r.Header.Get(crypto.HeaderSignature)
			if ts == "" || sig == "" {
				writeUnauthorized(w, "missing request signature")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxAuthBody+1))
			if err != nil || len(body) > maxAuthBody {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !auth.Verify(r.Method, r.URL.Path, string(body), ts, sig, time.Now()) {
				writeUnauthorized(w, "invalid request signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
