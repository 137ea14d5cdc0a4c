package models

import "time"

const (
	TransitionSourceOrder   = "order"
	TransitionSourceVerify  = "verify"
	TransitionSourceWebhook = "webhook"
	TransitionSourceSweep   = "sweep"
)

// PaymentTransition is an append-only record of one status change of a
// PaymentIntent. Rows are inserted, never updated.
type PaymentTransition struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PaymentIntentID uint      `gorm:"not null;index" json:"payment_intent_id"`
	FromStatus      string    `gorm:"type:varchar(20);not null;default:''" json:"from_status"`
	ToStatus        string    `gorm:"type:varchar(20);not null" json:"to_status"`
	Source          string    `gorm:"type:varchar(20);not null" json:"source"`
	RemotePaymentID string    `gorm:"type:varchar(100);default:''" json:"remote_payment_id"`
	Note            string    `gorm:"type:text" json:"note,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

var allowedPaymentTransitions = map[string][]string{
	"":                      {PaymentStatusPending},
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
	// a capture arriving after a failed attempt on the same order still wins
	PaymentStatusFailed:    {PaymentStatusCompleted},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

// CanTransitionPayment reports whether a payment may move from one status to
// another. Failed is not terminal: a later capture on the same order may still
// complete it, while completed only ever moves on to refunded.
func CanTransitionPayment(from, to string) bool {
	for _, s := range allowedPaymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
