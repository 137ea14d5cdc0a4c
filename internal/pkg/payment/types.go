package payment

import (
	"time"

	"github.com/ManuelReschke/CourseFox/app/models"
)

// OrderDescriptor is what the buyer's client needs to open checkout.
type OrderDescriptor struct {
	PaymentID     uint                 `json:"payment_id"`
	RemoteOrderID string               `json:"order_id"`
	Amount        int64                `json:"amount"`
	Currency      string               `json:"currency"`
	Receipt       string               `json:"receipt"`
	Course        models.CourseSummary `json:"course"`
	Buyer         models.BuyerSummary  `json:"buyer"`
}

// CompletionInput carries one completion attempt from either channel.
type CompletionInput struct {
	RemoteOrderID   string
	RemotePaymentID string
	Method          string
	Signature       string
	Source          string
}

// CompletionResult is returned by every completion attempt. Created is true
// only for the attempt that created the enrollment.
type CompletionResult struct {
	Payment    *models.PaymentIntent
	Enrollment *models.Enrollment
	Course     *models.Course
	Created    bool
}

// VerifyInput is the client-side confirmation after checkout.
type VerifyInput struct {
	UserID          uint
	RemoteOrderID   string
	RemotePaymentID string
	Signature       string
	Method          string
}

// WebhookDelivery is one raw gateway push.
type WebhookDelivery struct {
	RawBody   []byte
	Signature string
	EventID   string
}

// WebhookOutcome describes what a delivery did. Any outcome returned with a
// nil error is safe to acknowledge.
type WebhookOutcome struct {
	Event         string
	RemoteOrderID string
	Duplicate     bool
	Ignored       bool
	Reason        string
	Result        *CompletionResult
}

// PaymentDetails is an intent with its status history.
type PaymentDetails struct {
	Payment     *models.PaymentIntent      `json:"payment"`
	Transitions []models.PaymentTransition `json:"transitions"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	RemoteOrderID   string
	PayloadJSON     string
}

// SweepReport summarizes one repair pass.
type SweepReport struct {
	Scanned  int
	Repaired int
	Failed   int
	Took     time.Duration
}
