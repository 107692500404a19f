package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyCaptureSignature checks the signature returned to the client after a
// successful gateway payment: HMAC-SHA256 over "<orderID>|<paymentID>" keyed
// with the API secret.
func VerifyCaptureSignature(gatewayOrderID, gatewayPaymentID, signature, keySecret string) bool {
	if strings.TrimSpace(gatewayOrderID) == "" || strings.TrimSpace(gatewayPaymentID) == "" {
		return false
	}
	expected := hmacHex([]byte(gatewayOrderID+"|"+gatewayPaymentID), keySecret)
	return equalHex(expected, signature)
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw request body, keyed with the dedicated webhook secret.
func VerifyWebhookSignature(body []byte, signature, webhookSecret string) bool {
	if len(body) == 0 {
		return false
	}
	expected := hmacHex(body, webhookSecret)
	return equalHex(expected, signature)
}

func hmacHex(message []byte, key string) string {
	if strings.TrimSpace(key) == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHex(expected, provided string) bool {
	provided = strings.TrimSpace(provided)
	if expected == "" || provided == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(provided))
}
