package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSignature_Deterministic(t *testing.T) {
	payload := PaymentSignaturePayload("order_1", "pay_1")
	assert.Equal(t, "order_1|pay_1", string(payload))

	a := ComputeSignature(payload, "secret")
	b := ComputeSignature(payload, "secret")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, ComputeSignature(payload, "other"))
}

func TestVerifyPaymentSignature(t *testing.T) {
	sig := ComputeSignature(PaymentSignaturePayload("order_1", "pay_1"), "secret")

	assert.True(t, VerifyPaymentSignature("order_1", "pay_1", sig, "secret"))
	assert.True(t, VerifyPaymentSignature("order_1", "pay_1", strings.ToUpper(sig), "secret"))
	assert.False(t, VerifyPaymentSignature("order_1", "pay_2", sig, "secret"))
	assert.False(t, VerifyPaymentSignature("order_1", "pay_1", sig, "wrong"))
	assert.False(t, VerifyPaymentSignature("order_1", "pay_1", "", "secret"))
	assert.False(t, VerifyPaymentSignature("order_1", "pay_1", sig, ""))
	assert.False(t, VerifyPaymentSignature("order_1", "pay_1", "zz-not-hex", "secret"))
}

func TestVerifyWebhookSignature_OneByteTamper(t *testing.T) {
	body := []byte(`{"event":"payment.captured","payload":{}}`)
	sig := ComputeSignature(body, "whsec")
	assert.True(t, VerifyWebhookSignature(body, sig, "whsec"))

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = '-'
	assert.False(t, VerifyWebhookSignature(tampered, sig, "whsec"))

	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	assert.False(t, VerifyWebhookSignature(body, string(flipped), "whsec"))
}

func TestParseWebhookEvent(t *testing.T) {
	ev, err := ParseWebhookEvent([]byte(`{"event":" Payment.Captured ","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","method":"upi"}}}}`))
	assert.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, ev.Event)
	assert.Equal(t, "order_1", ev.RemoteOrderID())
	assert.Equal(t, "pay_1", ev.RemotePaymentID())
	assert.Equal(t, "upi", ev.Method())

	ev, err = ParseWebhookEvent([]byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"order_9"}}}}`))
	assert.NoError(t, err)
	assert.Equal(t, "order_9", ev.RemoteOrderID())
	assert.Equal(t, "", ev.RemotePaymentID())

	_, err = ParseWebhookEvent([]byte(`not json`))
	assert.True(t, IsValidationError(err))

	_, err = ParseWebhookEvent([]byte(`{"payload":{}}`))
	assert.True(t, IsValidationError(err))
}

func TestWebhookEvent_FailureReason(t *testing.T) {
	ev, err := ParseWebhookEvent([]byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","error_code":"BAD_REQUEST_ERROR","error_description":"declined"}}}}`))
	assert.NoError(t, err)
	assert.Equal(t, "BAD_REQUEST_ERROR: declined", ev.FailureReason())

	ev, err = ParseWebhookEvent([]byte(`{"event":"payment.failed","payload":{}}`))
	assert.NoError(t, err)
	assert.Equal(t, "payment failed", ev.FailureReason())
}

func TestNormalizeMethod(t *testing.T) {
	assert.Equal(t, "razorpay", normalizeMethod(""))
	assert.Equal(t, "upi", normalizeMethod(" UPI "))
}
