package models

import "time"

// PaymentWebhookEvent stores authenticated gateway deliveries with
// deduplication metadata. Deliveries with a bad signature are never stored.
type PaymentWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_payment_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;index:ux_payment_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	RemoteOrderID   string     `gorm:"type:varchar(100);default:'';index" json:"remote_order_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsHandled reports whether an earlier delivery of this event finished
// without error.
func (e *PaymentWebhookEvent) IsHandled() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
