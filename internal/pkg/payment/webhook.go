package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// WebhookEvent is the subset of a Razorpay webhook body used here.
type WebhookEvent struct {
	Entity    string   `json:"entity"`
	AccountID string   `json:"account_id"`
	Event     string   `json:"event"`
	Contains  []string `json:"contains"`
	CreatedAt int64    `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity OrderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type OrderEntity struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
}

// ParseWebhookEvent decodes a webhook body.
func ParseWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, invalid("body", "malformed webhook payload")
	}
	ev.Event = strings.ToLower(strings.TrimSpace(ev.Event))
	if ev.Event == "" {
		return nil, invalid("event", "is required")
	}
	return &ev, nil
}

func (e *WebhookEvent) payment() *PaymentEntity {
	if e.Payload.Payment == nil {
		return nil
	}
	return &e.Payload.Payment.Entity
}

// RemoteOrderID prefers the payment's order id and falls back to the order entity.
func (e *WebhookEvent) RemoteOrderID() string {
	if p := e.payment(); p != nil && p.OrderID != "" {
		return p.OrderID
	}
	if e.Payload.Order != nil {
		return e.Payload.Order.Entity.ID
	}
	return ""
}

func (e *WebhookEvent) RemotePaymentID() string {
	if p := e.payment(); p != nil {
		return p.ID
	}
	return ""
}

func (e *WebhookEvent) Method() string {
	if p := e.payment(); p != nil {
		return p.Method
	}
	return ""
}

// FailureReason joins the gateway's error code and description.
func (e *WebhookEvent) FailureReason() string {
	p := e.payment()
	if p == nil {
		return "payment failed"
	}
	parts := make([]string, 0, 2)
	if p.ErrorCode != "" {
		parts = append(parts, p.ErrorCode)
	}
	if p.ErrorDescription != "" {
		parts = append(parts, p.ErrorDescription)
	}
	if len(parts) == 0 {
		return "payment failed"
	}
	return strings.Join(parts, ": ")
}

func isKnownWebhookEvent(event string) bool {
	switch event {
	case EventPaymentCaptured, EventPaymentFailed, EventOrderPaid:
		return true
	default:
		return false
	}
}

// HandleWebhook authenticates and applies one gateway delivery. A nil error
// means the delivery may be acknowledged: it was processed, was a duplicate
// of a processed delivery, or is safe to ignore. ErrSignatureInvalid is
// returned before anything is persisted. Any other error should make the
// gateway redeliver.
func (s *Service) HandleWebhook(ctx context.Context, d WebhookDelivery) (*WebhookOutcome, error) {
	if !VerifyWebhookSignature(d.RawBody, d.Signature, s.cfg.WebhookSecret) {
		log.Warnf("[Security] webhook signature mismatch event_id=%q body_bytes=%d", d.EventID, len(d.RawBody))
		metrics.SignatureFailures.WithLabelValues(models.TransitionSourceWebhook).Inc()
		return nil, ErrSignatureInvalid
	}

	// A signed body the gateway will keep resending unchanged is acknowledged
	// and dropped, not retried.
	ev, err := ParseWebhookEvent(d.RawBody)
	if err != nil {
		log.Warnf("[Webhook] unparseable signed delivery event_id=%q: %v", d.EventID, err)
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		return &WebhookOutcome{Ignored: true, Reason: "malformed payload"}, nil
	}

	outcome := &WebhookOutcome{Event: ev.Event, RemoteOrderID: ev.RemoteOrderID()}
	if !isKnownWebhookEvent(ev.Event) {
		outcome.Ignored = true
		outcome.Reason = "unhandled event"
		metrics.WebhookEvents.WithLabelValues(ev.Event, "ignored").Inc()
		return outcome, nil
	}
	if outcome.RemoteOrderID == "" {
		log.Warnf("[Webhook] %s without order id, ignoring", ev.Event)
		metrics.WebhookEvents.WithLabelValues(ev.Event, "invalid").Inc()
		outcome.Ignored = true
		outcome.Reason = "order id missing"
		return outcome, nil
	}

	eventID := strings.TrimSpace(d.EventID)
	if eventID == "" {
		sum := sha256.Sum256(d.RawBody)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(ctx, &models.PaymentWebhookEvent{
		Provider:        models.PaymentProviderRazorpay,
		ProviderEventID: eventID,
		EventType:       ev.Event,
		RemoteOrderID:   outcome.RemoteOrderID,
		PayloadJSON:     string(d.RawBody),
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(ev.Event, "error").Inc()
		return nil, err
	}
	if !created && stored.IsHandled() {
		outcome.Duplicate = true
		metrics.WebhookEvents.WithLabelValues(ev.Event, "duplicate").Inc()
		return outcome, nil
	}

	procErr := s.dispatchWebhook(ctx, ev, outcome)
	errMsg := ""
	if procErr != nil {
		errMsg = procErr.Error()
	}
	if markErr := s.repo.MarkWebhookProcessed(ctx, stored.ID, errMsg); markErr != nil {
		log.Errorf("[Webhook] failed to mark event %d processed: %v", stored.ID, markErr)
	}
	if procErr != nil {
		log.Errorf("[Webhook] %s for order %s failed: %v", ev.Event, outcome.RemoteOrderID, procErr)
		metrics.WebhookEvents.WithLabelValues(ev.Event, "error").Inc()
		return nil, procErr
	}

	result := "processed"
	switch {
	case outcome.Ignored:
		result = "ignored"
	case outcome.Duplicate:
		result = "duplicate"
	}
	metrics.WebhookEvents.WithLabelValues(ev.Event, result).Inc()
	return outcome, nil
}

// dispatchWebhook runs the business action for an authenticated, recorded
// event. Errors returned here are transient and worth a redelivery.
func (s *Service) dispatchWebhook(ctx context.Context, ev *WebhookEvent, outcome *WebhookOutcome) error {
	switch ev.Event {
	case EventPaymentCaptured, EventOrderPaid:
		res, err := s.CompletePayment(ctx, CompletionInput{
			RemoteOrderID:   outcome.RemoteOrderID,
			RemotePaymentID: ev.RemotePaymentID(),
			Method:          ev.Method(),
			Source:          models.TransitionSourceWebhook,
		})
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			log.Warnf("[Webhook] %s for unknown order %s, ignoring", ev.Event, outcome.RemoteOrderID)
			outcome.Ignored = true
			outcome.Reason = "unknown order"
			return nil
		case errors.Is(err, ErrInvalidTransition):
			log.Warnf("[Webhook] %s for order %s not applicable: %v", ev.Event, outcome.RemoteOrderID, err)
			outcome.Ignored = true
			outcome.Reason = "not applicable"
			return nil
		case err != nil:
			return err
		}
		outcome.Result = res
		outcome.Duplicate = !res.Created
		return nil

	case EventPaymentFailed:
		_, changed, err := s.MarkFailed(ctx, outcome.RemoteOrderID, ev.RemotePaymentID(), ev.FailureReason(), models.TransitionSourceWebhook)
		if errors.Is(err, ErrPaymentNotFound) {
			log.Warnf("[Webhook] %s for unknown order %s, ignoring", ev.Event, outcome.RemoteOrderID)
			outcome.Ignored = true
			outcome.Reason = "unknown order"
			return nil
		}
		if err != nil {
			return err
		}
		if !changed {
			outcome.Ignored = true
			outcome.Reason = "status unchanged"
		}
		return nil
	}

	outcome.Ignored = true
	outcome.Reason = "unhandled event"
	return nil
}
