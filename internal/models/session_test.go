package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"meetgogo/backend/internal/models"
)

// TestModeQueueCollection verifies each mode maps to its own queue.
func TestModeQueueCollection(t *testing.T) {
	assert.Equal(t, models.CollectionChatQueue, models.ModeText.QueueCollection())
	assert.Equal(t, models.CollectionVideoQueue, models.ModeVideo.QueueCollection())
	assert.True(t, models.ModeText.Valid())
	assert.True(t, models.ModeVideo.Valid())
	assert.False(t, models.Mode("audio").Valid())
}

// TestSessionParticipants covers initiator ordering and partner lookup.
func TestSessionParticipants(t *testing.T) {
	s := models.Session{
		Participants: []string{"bob", "alice"},
		Profiles: map[string]models.Profile{
			"alice": {UID: "alice", Name: "Alice"},
			"bob":   {UID: "bob", Name: "Bob"},
		},
	}

	assert.Equal(t, "bob", s.Initiator())
	assert.Equal(t, "alice", s.PartnerOf("bob"))
	assert.Equal(t, "bob", s.PartnerOf("alice"))
	assert.Equal(t, "", s.PartnerOf("carol"), "non-participant has no partner")
	assert.True(t, s.HasParticipant("alice"))
	assert.False(t, s.HasParticipant("carol"))

	p, ok := s.PartnerProfile("bob")
	assert.True(t, ok)
	assert.Equal(t, "Alice", p.Name)
}

// TestEmptySession verifies the zero session degrades safely.
func TestEmptySession(t *testing.T) {
	var s models.Session

	assert.Equal(t, "", s.Initiator())
	_, ok := s.PartnerProfile("alice")
	assert.False(t, ok)
}
