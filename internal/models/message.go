package models

import (
	"sort"
	"time"
)

// ChatMessage is one line of a text session. Append-only; the sender stamps
// SentAt in UTC at write time.
type ChatMessage struct {
	ID       string    `json:"id,omitempty"`
	RoomID   string    `json:"room_id"`
	SenderID string    `json:"sender_id"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// SortMessages orders msgs by SentAt, breaking timestamp ties by document id
// so both participants converge on the same order regardless of delivery
// order.
func SortMessages(msgs []ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})
}
