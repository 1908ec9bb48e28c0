package gatewayclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyValidSignature(t *testing.T) {
	v := NewWebhookVerifier("topsecret")

	sig := sign("topsecret", "gw_order_1", "gw_pay_1")
	assert.True(t, v.Verify("gw_order_1", "gw_pay_1", sig))
}

func TestVerifyRejectsTamperedFields(t *testing.T) {
	v := NewWebhookVerifier("topsecret")
	sig := sign("topsecret", "gw_order_1", "gw_pay_1")

	// Flipping any single character in any field must fail verification.
	assert.False(t, v.Verify("gw_order_2", "gw_pay_1", sig))
	assert.False(t, v.Verify("gw_order_1", "gw_pay_2", sig))

	tampered := []byte(sig)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	assert.False(t, v.Verify("gw_order_1", "gw_pay_1", string(tampered)))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewWebhookVerifier("topsecret")

	sig := sign("othersecret", "gw_order_1", "gw_pay_1")
	assert.False(t, v.Verify("gw_order_1", "gw_pay_1", sig))
}

func TestVerifyRejectsMissingFields(t *testing.T) {
	v := NewWebhookVerifier("topsecret")
	sig := sign("topsecret", "gw_order_1", "gw_pay_1")

	assert.False(t, v.Verify("", "gw_pay_1", sig))
	assert.False(t, v.Verify("gw_order_1", "", sig))
	assert.False(t, v.Verify("gw_order_1", "gw_pay_1", ""))
}
