package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	signatureVersion = "v0"
	defaultTolerance = 5 * time.Minute

	// TimestampHeader and SignatureHeader are the request headers Slack
	// signs every inbound delivery with.
	TimestampHeader = "X-Slack-Request-Timestamp"
	SignatureHeader = "X-Slack-Signature"
)

var (
	errMissingSecret = errors.New("signing secret required")
	// ErrInvalidVerifierConfig indicates the verifier cannot be constructed.
	ErrInvalidVerifierConfig = errors.New("slack: invalid verifier config")
	// ErrBadSignature indicates the request failed authenticity checks.
	ErrBadSignature = errors.New("slack: request signature invalid")
	// ErrStaleTimestamp indicates the request timestamp fell outside tolerance.
	ErrStaleTimestamp = errors.New("slack: request timestamp outside tolerance")
)

// SignatureVerifierConfig bundles configuration for request verification.
type SignatureVerifierConfig struct {
	SigningSecret []byte
	Tolerance     time.Duration
	Clock         func() time.Time
}

// SignatureVerifier checks the v0 HMAC-SHA256 signature Slack attaches to
// every inbound request.
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	clock     func() time.Time
}

// NewSignatureVerifier constructs a verifier with validated configuration.
func NewSignatureVerifier(cfg SignatureVerifierConfig) (*SignatureVerifier, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingSecret)
	}

	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SignatureVerifier{
		secret:    cfg.SigningSecret,
		tolerance: tolerance,
		clock:     clock,
	}, nil
}

// Verify checks the timestamp freshness and the body signature. The signed
// base string is "v0:<timestamp>:<body>" and the expected header value is
// "v0=<hex hmac-sha256>".
func (v *SignatureVerifier) Verify(timestamp, signature string, body []byte) error {
	seconds, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: unparsable timestamp", ErrBadSignature)
	}

	drift := v.clock().Sub(time.Unix(seconds, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > v.tolerance {
		return ErrStaleTimestamp
	}

	if !strings.HasPrefix(signature, signatureVersion+"=") {
		return fmt.Errorf("%w: unsupported version", ErrBadSignature)
	}

	if !hmac.Equal([]byte(v.Sign(timestamp, body)), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the signature header value for a timestamp and body.
func (v *SignatureVerifier) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signatureVersion + ":" + strings.TrimSpace(timestamp) + ":"))
	mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}
