package gatewayclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// WebhookVerifier authenticates inbound gateway callbacks. The gateway signs
// the concatenation "<orderID>|<paymentID>" with HMAC-SHA256 over a shared
// secret.
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier creates a verifier for the given shared secret
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Verify reports whether the signature matches. Missing fields are rejected
// before any HMAC is computed. The comparison is constant-time so the check
// does not leak a timing side-channel on the secret-dependent digest.
func (v *WebhookVerifier) Verify(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
