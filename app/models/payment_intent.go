package models

import "time"

const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

const PaymentProviderRazorpay = "razorpay"

// PaymentIntent is one attempted course purchase. RemoteOrderID is the
// gateway order id and the idempotency key for completion. Status is the
// head of the PaymentTransition log and is never written outside of it.
type PaymentIntent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index:idx_payment_intents_user_course,priority:1" json:"user_id"`
	CourseID        uint       `gorm:"not null;index:idx_payment_intents_user_course,priority:2" json:"course_id"`
	Provider        string     `gorm:"type:varchar(20);not null;default:'razorpay'" json:"provider"`
	RemoteOrderID   string     `gorm:"type:varchar(100);not null;uniqueIndex" json:"remote_order_id"`
	RemotePaymentID string     `gorm:"type:varchar(100);default:''" json:"remote_payment_id"`
	Signature       string     `gorm:"type:varchar(255);default:''" json:"-"`
	Receipt         string     `gorm:"type:varchar(64);not null" json:"receipt"`
	Amount          int64      `gorm:"not null" json:"amount"` // minor currency units
	Currency        string     `gorm:"type:varchar(10);not null;default:'INR'" json:"currency"`
	PaymentMethod   string     `gorm:"type:varchar(50);default:''" json:"payment_method"`
	Status          string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	FailureReason   string     `gorm:"type:text" json:"failure_reason,omitempty"`
	CompletedAt     *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsInFlight reports whether the intent still blocks a new attempt for the
// same user and course.
func (p *PaymentIntent) IsInFlight() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusProcessing
}

func (p *PaymentIntent) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}
