package models

import "time"

// ModuleCallLog is the integration's action log, one row per logged
// call (the billing host's module-log table).
type ModuleCallLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Module       string    `gorm:"type:varchar(50);not null;index" json:"module"`
	Action       string    `gorm:"type:varchar(100);not null;index" json:"action"`
	RequestJSON  string    `gorm:"type:longtext" json:"request_json"`
	ResponseJSON string    `gorm:"type:longtext" json:"response_json"`
	Trace        string    `gorm:"type:text" json:"trace"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
