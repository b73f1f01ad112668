package slack

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestVerifier(t *testing.T, now time.Time) *SignatureVerifier {
	t.Helper()
	verifier, err := NewSignatureVerifier(SignatureVerifierConfig{
		SigningSecret: []byte("test-secret"),
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}
	return verifier
}

func TestVerifyAcceptsFreshSignedRequest(t *testing.T) {
	now := time.Unix(1700000000, 0)
	verifier := newTestVerifier(t, now)

	body := []byte("command=%2Fupload&user_id=U1")
	timestamp := fmt.Sprintf("%d", now.Unix())
	signature := verifier.Sign(timestamp, body)

	if err := verifier.Verify(timestamp, signature, body); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	verifier := newTestVerifier(t, now)

	timestamp := fmt.Sprintf("%d", now.Unix())
	signature := verifier.Sign(timestamp, []byte("original"))

	if err := verifier.Verify(timestamp, signature, []byte("tampered")); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected bad-signature error, got %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	verifier := newTestVerifier(t, now)

	stale := fmt.Sprintf("%d", now.Add(-10*time.Minute).Unix())
	signature := verifier.Sign(stale, []byte("body"))

	if err := verifier.Verify(stale, signature, []byte("body")); !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("expected stale-timestamp error, got %v", err)
	}
}

func TestVerifyRejectsUnsupportedVersionAndGarbage(t *testing.T) {
	now := time.Unix(1700000000, 0)
	verifier := newTestVerifier(t, now)
	timestamp := fmt.Sprintf("%d", now.Unix())

	if err := verifier.Verify(timestamp, "v1=deadbeef", []byte("body")); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected bad-signature for wrong version, got %v", err)
	}
	if err := verifier.Verify("not-a-number", "v0=deadbeef", []byte("body")); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected bad-signature for unparsable timestamp, got %v", err)
	}
}

func TestNewSignatureVerifierRequiresSecret(t *testing.T) {
	if _, err := NewSignatureVerifier(SignatureVerifierConfig{}); !errors.Is(err, ErrInvalidVerifierConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
