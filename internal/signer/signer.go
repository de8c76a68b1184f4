// Package signer computes and verifies the HMAC-SHA256 signatures carried in
// the X-Webhook-Signature header. Subscribers recompute the signature over the
// raw request body with their subscription secret and compare it to the header
// using Verify.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex-encoded HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	return hex.EncodeToString(compute(payload, secret))
}

// Verify recomputes the MAC and compares in constant time. A malformed
// (non-hex) signature never verifies.
func Verify(payload []byte, signature, secret string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(compute(payload, secret), got)
}

func compute(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
