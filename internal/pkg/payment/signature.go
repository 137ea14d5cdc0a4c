package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeSignature returns the hex HMAC-SHA256 of payload under secret.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// PaymentSignaturePayload is the message the gateway signs for checkout
// confirmations: "<order_id>|<payment_id>".
func PaymentSignaturePayload(remoteOrderID, remotePaymentID string) []byte {
	return []byte(remoteOrderID + "|" + remotePaymentID)
}

// VerifyPaymentSignature checks the signature a client forwards after checkout.
func VerifyPaymentSignature(remoteOrderID, remotePaymentID, signature, secret string) bool {
	return verifyHexHMAC(PaymentSignaturePayload(remoteOrderID, remotePaymentID), signature, secret)
}

// VerifyWebhookSignature checks the signature header against the exact raw
// request body.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	return verifyHexHMAC(payload, signatureHeader, webhookSecret)
}

func verifyHexHMAC(payload []byte, signature, secret string) bool {
	sig := strings.TrimSpace(signature)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}
