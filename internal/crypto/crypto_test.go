package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestAuthRoundTrip(t *testing.T) {
	auth := &RequestAuth{Secret: []byte("s3cr3t")}
	now := time.Unix(1_700_000_000, 0)

	hdrs := auth.HeadersAt("POST", "/v1/judge", `{"tokenId":2}`, now.Unix())
	ok := auth.Verify("POST", "/v1/judge", `{"tokenId":2}`,
		hdrs[HeaderTimestamp], hdrs[HeaderSignature], now)
	assert.True(t, ok)

	// Any altered component invalidates the signature.
	assert.False(t, auth.Verify("POST", "/v1/judge", `{"tokenId":3}`,
		hdrs[HeaderTimestamp], hdrs[HeaderSignature], now))
	assert.False(t, auth.Verify("GET", "/v1/judge", `{"tokenId":2}`,
		hdrs[HeaderTimestamp], hdrs[HeaderSignature], now))

	// Stale timestamps are rejected.
	assert.False(t, auth.Verify("POST", "/v1/judge", `{"tokenId":2}`,
		hdrs[HeaderTimestamp], hdrs[HeaderSignature], now.Add(time.Minute)))
}

func TestRequestAuthSignatureIsDeterministic(t *testing.T) {
	auth := &RequestAuth{Secret: []byte("key")}
	a := auth.HeadersAt("GET", "/v1/markets", "", 1700000000)
	b := auth.HeadersAt("GET", "/v1/markets", "", 1700000000)
	assert.Equal(t, a[HeaderSignature], b[HeaderSignature])
}

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("api-secret-value", "password1")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "password1")
	require.NoError(t, err)
	assert.Equal(t, "api-secret-value", got)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadSecretPrefersRaw(t *testing.T) {
	got, err := LoadSecret(SecretConfig{RawSecret: "raw"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	_, err = LoadSecret(SecretConfig{})
	assert.Error(t, err)
}
