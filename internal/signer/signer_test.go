package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestSign(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		secret  string
	}{
		{
			name:    "basic payload",
			payload: []byte(`{"event":"incident.created","data":{"id":"123"}}`),
			secret:  "whsec_abc123",
		},
		{
			name:    "empty payload",
			payload: []byte(`{}`),
			secret:  "secret",
		},
		{
			name:    "empty secret",
			payload: []byte(`{"test":true}`),
			secret:  "",
		},
		{
			name:    "unicode payload",
			payload: []byte(`{"name":"café","score":"€10"}`),
			secret:  "unicode-key-日本語",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Sign(tt.payload, tt.secret)

			decoded, err := hex.DecodeString(sig)
			if err != nil {
				t.Fatalf("signature is not valid hex: %v", err)
			}

			// HMAC-SHA256 always produces 32 bytes (64 hex chars)
			if len(decoded) != 32 {
				t.Fatalf("expected 32 bytes, got %d", len(decoded))
			}

			mac := hmac.New(sha256.New, []byte(tt.secret))
			mac.Write(tt.payload)
			expected := hex.EncodeToString(mac.Sum(nil))

			if sig != expected {
				t.Errorf("signature mismatch:\n  got:  %s\n  want: %s", sig, expected)
			}
		})
	}
}

func TestSign_Deterministic(t *testing.T) {
	payload := []byte(`{"event":"test"}`)
	secret := "test-secret"

	if Sign(payload, secret) != Sign(payload, secret) {
		t.Error("same input should produce the same signature")
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{}`),
		[]byte(`{"event":"compliance.score_changed","data":{"score":87}}`),
		[]byte("not even json"),
		{0x00, 0xff, 0x10},
	}
	secrets := []string{"", "s", "whsec_0123456789abcdef"}

	for _, p := range payloads {
		for _, s := range secrets {
			if !Verify(p, Sign(p, s), s) {
				t.Errorf("Verify(Sign(%q, %q)) = false, want true", p, s)
			}
		}
	}
}

func TestVerify_RejectsTampering(t *testing.T) {
	payload := []byte(`{"event":"incident.created"}`)
	secret := "whsec_secret"
	sig := Sign(payload, secret)

	if Verify([]byte(`{"event":"incident.deleted"}`), sig, secret) {
		t.Error("altered payload should not verify")
	}
	if Verify(payload, sig, "whsec_other") {
		t.Error("altered secret should not verify")
	}

	// Flip one bit of the signature
	raw, _ := hex.DecodeString(sig)
	raw[0] ^= 0x01
	if Verify(payload, hex.EncodeToString(raw), secret) {
		t.Error("altered signature should not verify")
	}
}

func TestVerify_RejectsMalformedSignature(t *testing.T) {
	if Verify([]byte(`{}`), "not-hex!!", "secret") {
		t.Error("non-hex signature should not verify")
	}
	if Verify([]byte(`{}`), "", "secret") {
		t.Error("empty signature should not verify")
	}
}
