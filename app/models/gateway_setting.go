package models

import "time"

// GatewaySetting is one key/value row of a payment gateway's
// configuration in the billing host's settings table. Uniqueness of
// (gateway, setting) is enforced by the write path, not by the schema:
// historical installs contain duplicate rows that the upsert collapses.
type GatewaySetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Gateway   string    `gorm:"type:varchar(50);not null;index:ix_gateway_settings_gateway_setting,priority:1" json:"gateway"`
	Setting   string    `gorm:"type:varchar(100);not null;index:ix_gateway_settings_gateway_setting,priority:2" json:"setting"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Setting names used by the PaymentHood integration.
const (
	SettingAppID        = "appId"
	SettingToken        = "token"
	SettingWebhookToken = "webhookToken"
	SettingActivated    = "activated"
)
