package models

import "time"

// SyncFailure is a device draft that could not be committed and needs an
// operator. Devices report them; managers acknowledge them.
type SyncFailure struct {
	ID             uint       `gorm:"primaryKey"                              json:"id"`
	DeviceID       string     `gorm:"size:128;not null;uniqueIndex:idx_device_local" json:"device_id"`
	LocalID        string     `gorm:"size:64;not null;uniqueIndex:idx_device_local"  json:"local_id"`
	Code           string     `gorm:"size:64;not null;index"                  json:"code"`
	Reason         string     `gorm:"type:text;not null"                      json:"reason"`
	Payload        string     `gorm:"type:text;not null"                      json:"payload"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `gorm:"index"                                   json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `gorm:"size:64"                                 json:"acknowledged_by,omitempty"`
}

// SyncFailureReport is what a device sends when a queued draft fails
// permanently.
type SyncFailureReport struct {
	DeviceID string    `json:"device_id"  validate:"required,max=128"`
	LocalID  string    `json:"local_id"   validate:"required,max=64"`
	Code     string    `json:"code"       validate:"required,max=64"`
	Reason   string    `json:"reason"     validate:"required"`
	Draft    SaleDraft `json:"draft"`
	FailedAt time.Time `json:"failed_at"`
}
