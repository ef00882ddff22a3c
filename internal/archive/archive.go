// Package archive persists durable records of sessions and chat history in
// PostgreSQL. Everything here is off the critical path: the live protocol
// runs entirely against the document store, and archive failures are logged
// by callers, never surfaced to users.
package archive

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"meetgogo/backend/internal/models"
)

// Archive is the persistence interface the facade writes through. A nil
// Archive disables retention entirely.
type Archive interface {
	SaveSession(rec *models.SessionRecord) error
	CloseSession(sessionID string) error
	SaveMessage(rec *models.MessageRecord) error
	SessionHistory(sessionID string) ([]models.MessageRecord, error)
}

// Service is the GORM-backed Archive.
type Service struct {
	DB *gorm.DB
}

// NewService wraps an open database handle.
func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// SaveSession upserts the session row (keyed by SessionID, so the record is
// written once per match regardless of retries).
func (s *Service) SaveSession(rec *models.SessionRecord) error {
	if err := s.DB.Save(rec).Error; err != nil {
		log.Printf("ERROR: saving session record %s: %v", rec.SessionID, err)
		return err
	}
	return nil
}

// CloseSession marks the session row ended. Idempotent.
func (s *Service) CloseSession(sessionID string) error {
	now := time.Now().UTC()
	err := s.DB.Model(&models.SessionRecord{}).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Updates(map[string]any{
			"is_active": false,
			"ended_at":  now,
		}).Error
	if err != nil {
		log.Printf("ERROR: closing session record %s: %v", sessionID, err)
	}
	return err
}

// SaveMessage appends one message row.
func (s *Service) SaveMessage(rec *models.MessageRecord) error {
	if err := s.DB.Create(rec).Error; err != nil {
		log.Printf("ERROR: saving message for session %s: %v", rec.SessionID, err)
		return err
	}
	return nil
}

// SessionHistory returns a session's messages in sent order.
func (s *Service) SessionHistory(sessionID string) ([]models.MessageRecord, error) {
	var history []models.MessageRecord
	err := s.DB.Where("session_id = ?", sessionID).
		Order("sent_at asc, id asc").
		Find(&history).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return history, nil
	}
	if err != nil {
		log.Printf("ERROR: loading history for session %s: %v", sessionID, err)
		return nil, err
	}
	return history, nil
}

var _ Archive = (*Service)(nil)
