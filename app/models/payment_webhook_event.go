package models

import "time"

// PaymentWebhookEvent journals processor webhook deliveries with
// deduplication metadata. PaymentHood deliveries carry no event id, so
// the event id is a hash of the payload; redeliveries of the identical
// payload collapse onto one row.
type PaymentWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Gateway         string     `gorm:"type:varchar(50);not null;index:ux_payment_webhook_events_gateway_event,unique,priority:1" json:"gateway"`
	EventID         string     `gorm:"type:varchar(191);not null;index:ux_payment_webhook_events_gateway_event,unique,priority:2" json:"event_id"`
	ReferenceID     string     `gorm:"type:varchar(100);not null;index" json:"reference_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	AuthValid       bool       `gorm:"default:false;index" json:"auth_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
