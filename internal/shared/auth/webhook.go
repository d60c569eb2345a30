package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// ErrVerificationFailed is returned for any webhook signature problem. The
// cause is collapsed on purpose: callers answer 401 without detail.
var ErrVerificationFailed = errors.New("webhook verification failed")

const (
	webhookMaxAge         = 5 * time.Minute
	jwksRefreshInterval   = 30 * time.Minute
	bodyDigestClaim       = "request_body_sha256"
	webhookSigningAlg     = "ES256"
	jwksHTTPClientTimeout = 10 * time.Second
)

// WebhookVerifier checks the detached signature header the aggregator sends
// with every webhook: an ES256 JWS whose payload binds the request body by
// SHA-256 digest. Signing keys come from the aggregator's JWKS endpoint and
// are cached; an unknown key ID triggers an immediate refetch so key
// rotation does not drop deliveries.
type WebhookVerifier struct {
	jwks   *keyfunc.JWKS
	maxAge time.Duration
	now    func() time.Time
}

// NewWebhookVerifier builds a verifier against the aggregator's JWKS URL.
// The initial fetch is done eagerly so a bad URL fails at startup.
func NewWebhookVerifier(jwksURL string, log *logrus.Logger) (*WebhookVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Client:            &http.Client{Timeout: jwksHTTPClientTimeout},
		RefreshInterval:   jwksRefreshInterval,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.WithFields(logrus.Fields{"error": err.Error()}).Warn("JWKS refresh failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	return &WebhookVerifier{jwks: jwks, maxAge: webhookMaxAge, now: time.Now}, nil
}

// NewWebhookVerifierWithJWKS wires a pre-built key set, bypassing the
// network fetch.
func NewWebhookVerifierWithJWKS(jwks *keyfunc.JWKS) *WebhookVerifier {
	return &WebhookVerifier{jwks: jwks, maxAge: webhookMaxAge, now: time.Now}
}

// Verify validates the detached token against the raw request body. Any
// failure, signature, expiry, or digest mismatch, returns
// ErrVerificationFailed.
func (v *WebhookVerifier) Verify(tokenString string, body []byte) error {
	token, err := jwt.Parse(tokenString, v.jwks.Keyfunc, jwt.WithValidMethods([]string{webhookSigningAlg}))
	if err != nil || !token.Valid {
		return ErrVerificationFailed
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ErrVerificationFailed
	}

	// iat is not checked by the parser; enforce the replay window here.
	iat, ok := claims["iat"].(float64)
	if !ok {
		return ErrVerificationFailed
	}
	issuedAt := time.Unix(int64(iat), 0)
	if v.now().Sub(issuedAt) > v.maxAge {
		return ErrVerificationFailed
	}

	digest, ok := claims[bodyDigestClaim].(string)
	if !ok {
		return ErrVerificationFailed
	}
	sum := sha256.Sum256(body)
	want := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(digest), []byte(want)) != 1 {
		return ErrVerificationFailed
	}
	return nil
}
