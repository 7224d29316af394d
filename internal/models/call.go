package models

import (
	"time"

	"gorm.io/gorm"
)

// CallRecord is the archive row written (best-effort) when a call session
// ends. The embedded gorm.Model supplies the primary key and timestamps.
type CallRecord struct {
	gorm.Model

	CallID   string `gorm:"type:uuid;uniqueIndex;not null"`
	CallerID string `gorm:"type:text;not null;index"`
	CalleeID string `gorm:"type:text;not null;index"`
	// Kind is "video" or "audio".
	Kind string `gorm:"type:text;not null"`
	// Reason is why the call ended: "hangup", "rejected", "timeout",
	// "disconnected".
	Reason          string `gorm:"type:text;not null"`
	DurationSeconds int

	ConnectedAt *time.Time
	EndedAt     time.Time
}
