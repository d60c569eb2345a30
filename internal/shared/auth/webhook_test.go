package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKID = "verification-key-1"

func newSigningKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func newTestVerifier(t *testing.T, key *ecdsa.PrivateKey) *WebhookVerifier {
	t.Helper()
	given := keyfunc.NewGivenCustomWithOptions(key.Public(), keyfunc.GivenKeyOptions{
		Algorithm: "ES256",
	})
	jwks := keyfunc.NewGiven(map[string]keyfunc.GivenKey{testKID: given})
	return NewWebhookVerifierWithJWKS(jwks)
}

func signWebhookToken(t *testing.T, key *ecdsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func TestVerify_ValidToken(t *testing.T) {
	key := newSigningKey(t)
	v := newTestVerifier(t, key)

	body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"ext-item-1"}`)
	token := signWebhookToken(t, key, testKID, jwt.MapClaims{
		"iat":                 time.Now().Unix(),
		"request_body_sha256": bodyDigest(body),
	})

	assert.NoError(t, v.Verify(token, body))
}

func TestVerify_TamperedBody(t *testing.T) {
	key := newSigningKey(t)
	v := newTestVerifier(t, key)

	body := []byte(`{"item_id":"ext-item-1"}`)
	token := signWebhookToken(t, key, testKID, jwt.MapClaims{
		"iat":                 time.Now().Unix(),
		"request_body_sha256": bodyDigest(body),
	})

	err := v.Verify(token, []byte(`{"item_id":"ext-item-2"}`))
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerify_StaleToken(t *testing.T) {
	key := newSigningKey(t)
	v := newTestVerifier(t, key)

	body := []byte(`{}`)
	token := signWebhookToken(t, key, testKID, jwt.MapClaims{
		"iat":                 time.Now().Add(-10 * time.Minute).Unix(),
		"request_body_sha256": bodyDigest(body),
	})

	err := v.Verify(token, body)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerify_MissingDigestClaim(t *testing.T) {
	key := newSigningKey(t)
	v := newTestVerifier(t, key)

	token := signWebhookToken(t, key, testKID, jwt.MapClaims{
		"iat": time.Now().Unix(),
	})

	err := v.Verify(token, []byte(`{}`))
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerify_UnknownKeyID(t *testing.T) {
	key := newSigningKey(t)
	v := newTestVerifier(t, key)

	body := []byte(`{}`)
	token := signWebhookToken(t, key, "rotated-away", jwt.MapClaims{
		"iat":                 time.Now().Unix(),
		"request_body_sha256": bodyDigest(body),
	})

	err := v.Verify(token, body)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerify_WrongSigningKey(t *testing.T) {
	key := newSigningKey(t)
	attacker := newSigningKey(t)
	v := newTestVerifier(t, key)

	body := []byte(`{}`)
	token := signWebhookToken(t, attacker, testKID, jwt.MapClaims{
		"iat":                 time.Now().Unix(),
		"request_body_sha256": bodyDigest(body),
	})

	err := v.Verify(token, body)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerify_RejectsNonES256(t *testing.T) {
	key := newSigningKey(t)
	v := newTestVerifier(t, key)

	body := []byte(`{}`)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat":                 time.Now().Unix(),
		"request_body_sha256": bodyDigest(body),
	})
	token.Header["kid"] = testKID
	signed, err := token.SignedString([]byte("hmac-secret"))
	require.NoError(t, err)

	assert.ErrorIs(t, v.Verify(signed, body), ErrVerificationFailed)
}

func TestJWT_GenerateAndValidate(t *testing.T) {
	j := NewJWT("test-secret")

	token, err := j.Generate(7, "user@example.com")
	require.NoError(t, err)

	claims, err := j.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestJWT_RejectsWrongSecret(t *testing.T) {
	token, err := NewJWT("secret-a").Generate(7, "user@example.com")
	require.NoError(t, err)

	_, err = NewJWT("secret-b").Validate(token)
	assert.Error(t, err)
}
