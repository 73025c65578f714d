package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophetlabs/prophetd/internal/crypto"
)

var discard = slog.New(slog.NewTextHandler(new(strings.Builder), nil))

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthPassesSignedRequest(t *testing.T) {
	auth := &crypto.RequestAuth{Secret: []byte("test-secret")}
	h := Auth(auth)(okHandler())

	body := `{"caller":"0x00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body))
	for k, v := range auth.Headers(http.MethodPost, "/api/execute", body) {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsUnsignedPost(t *testing.T) {
	auth := &crypto.RequestAuth{Secret: []byte("test-secret")}
	h := Auth(auth)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader("{}")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsTamperedBody(t *testing.T) {
	auth := &crypto.RequestAuth{Secret: []byte("test-secret")}
	h := Auth(auth)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(`{"amount":"999"}`))
	for k, v := range auth.Headers(http.MethodPost, "/api/execute", `{"amount":"1"}`) {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthSkipsReads(t *testing.T) {
	auth := &crypto.RequestAuth{Secret: []byte("test-secret")}
	h := Auth(auth)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthDisabledWhenNil(t *testing.T) {
	h := Auth(nil)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader("{}")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthPreservesBody(t *testing.T) {
	auth := &crypto.RequestAuth{Secret: []byte("test-secret")}
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(b)
	})
	h := Auth(auth)(inner)

	body := `{"caller":"0x00"}`
	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body))
	for k, v := range auth.Headers(http.MethodPost, "/api/execute", body) {
		req.Header.Set(k, v)
	}

	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, body, seen)
}

func TestLoggingAssignsRequestID(t *testing.T) {
	h := Logging(discard)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestLoggingKeepsClientRequestID(t *testing.T) {
	h := Logging(discard)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type fixedLimiter struct{ allow bool }

func (l fixedLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return l.allow, nil
}

func TestRateLimitBlocks(t *testing.T) {
	h := RateLimit(fixedLimiter{allow: false}, 10, time.Second)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitAllows(t *testing.T) {
	h := RateLimit(fixedLimiter{allow: true}, 10, time.Second)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
