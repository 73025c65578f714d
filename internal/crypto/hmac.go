// Package crypto provides HMAC request authentication for the privileged API
// surface and password-based encryption for the secret at rest.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// maxClockSkew bounds how old a signed request timestamp may be.
const maxClockSkew = 30 * time.Second

// Header names carried by signed mutation requests.
const (
	HeaderTimestamp = "X-Prophet-Timestamp"
	HeaderSignature = "X-Prophet-Signature"
)

// RequestAuth signs and verifies privileged HTTP requests. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
type RequestAuth struct {
	Secret []byte
}

// Headers returns the HTTP headers for a signed request.
func (a *RequestAuth) Headers(method, path, body string) map[string]string {
	return a.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (a *RequestAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64(a.Secret, ts+method+path+body),
	}
}

// Verify checks a request signature and its timestamp freshness.
func (a *RequestAuth) Verify(method, path, body, ts, sig string, now time.Time) bool {
	unixTS, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(unixTS, 0))
	if age > maxClockSkew || age < -maxClockSkew {
		return false
	}
	want := hmacSHA256Base64(a.Secret, ts+method+path+body)
	return hmac.Equal([]byte(want), []byte(sig))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
