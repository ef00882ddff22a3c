package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// SessionRecord is the durable PostgreSQL row kept for every matched session.
// The live session document in the store may be garbage-collected after it
// ends; this record is what retention policy operates on.
type SessionRecord struct {
	SessionID    string         `gorm:"primaryKey"`
	Mode         string         `gorm:"type:text;not null"`
	Participants pq.StringArray `gorm:"type:text[]"`
	IsActive     bool
	StartedAt    time.Time
	EndedAt      *time.Time
}

// MessageRecord is a persisted chat message. The embedded gorm.Model supplies
// the insertion id and timestamps.
type MessageRecord struct {
	gorm.Model

	SessionID string `gorm:"type:text;not null;index:idx_session_msg"`
	SenderID  string `gorm:"type:text;not null;index:idx_session_msg"`
	Body      string `gorm:"type:text;not null"`
	SentAt    time.Time
}
