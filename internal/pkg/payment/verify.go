package payment

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

// Verify finalizes a purchase from the buyer's client after checkout. The
// signature is checked before anything is read or written. Winning or
// losing the race against the webhook yields the same result shape.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (*CompletionResult, error) {
	orderID := strings.TrimSpace(in.RemoteOrderID)
	paymentID := strings.TrimSpace(in.RemotePaymentID)
	signature := strings.TrimSpace(in.Signature)
	switch {
	case orderID == "":
		return nil, invalid("razorpay_order_id", "is required")
	case paymentID == "":
		return nil, invalid("razorpay_payment_id", "is required")
	case signature == "":
		return nil, invalid("razorpay_signature", "is required")
	}

	if !VerifyPaymentSignature(orderID, paymentID, signature, s.cfg.KeySecret) {
		log.Warnf("[Security] invalid checkout signature order=%s payment=%s user=%d", orderID, paymentID, in.UserID)
		metrics.SignatureFailures.WithLabelValues(models.TransitionSourceVerify).Inc()
		return nil, ErrSignatureInvalid
	}

	intent, err := s.repo.GetIntentByRemoteOrderID(ctx, orderID, false)
	if err != nil {
		return nil, paymentNotFound(err)
	}
	if in.UserID != 0 && intent.UserID != in.UserID {
		log.Warnf("[Security] user %d tried to verify order %s owned by user %d", in.UserID, orderID, intent.UserID)
		return nil, ErrPaymentNotFound
	}

	return s.CompletePayment(ctx, CompletionInput{
		RemoteOrderID:   orderID,
		RemotePaymentID: paymentID,
		Method:          in.Method,
		Signature:       signature,
		Source:          models.TransitionSourceVerify,
	})
}
