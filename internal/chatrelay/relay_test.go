package chatrelay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetgogo/backend/internal/chatrelay"
	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/store"
)

func createTextSession(t *testing.T, st store.Store) string {
	t.Helper()
	id, err := st.Create(context.Background(), models.CollectionRooms, models.Session{
		Mode:         models.ModeText,
		Participants: []string{"bob", "alice"},
		Status:       models.SessionActive,
		CreatedAt:    time.Now().UTC(),
		Typing:       map[string]bool{},
	})
	require.NoError(t, err)
	return id
}

func receiveMessage(t *testing.T, r *chatrelay.Relay) models.ChatMessage {
	t.Helper()
	select {
	case msg, ok := <-r.MessageEvents():
		require.True(t, ok, "message stream closed unexpectedly")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return models.ChatMessage{}
	}
}

func receiveTyping(t *testing.T, r *chatrelay.Relay) bool {
	t.Helper()
	select {
	case typing := <-r.TypingEvents():
		return typing
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for typing event")
		return false
	}
}

// TestMessageDelivery verifies a sent message reaches the partner's relay.
func TestMessageDelivery(t *testing.T) {
	st := store.NewMemoryStore()
	id := createTextSession(t, st)
	ctx := context.Background()

	alice, err := chatrelay.Start(ctx, st, id, "alice", "bob", 0)
	require.NoError(t, err)
	defer alice.Close()
	bob, err := chatrelay.Start(ctx, st, id, "bob", "alice", 0)
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, alice.SendMessage(ctx, "hello bob"))

	msg := receiveMessage(t, bob)
	assert.Equal(t, "hello bob", msg.Body)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, id, msg.RoomID)
	assert.NotEmpty(t, msg.ID)
}

// TestTranscriptOrdering verifies Messages() sorts by timestamp with the id
// as tiebreak, regardless of delivery order.
func TestTranscriptOrdering(t *testing.T) {
	st := store.NewMemoryStore()
	id := createTextSession(t, st)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// Written newest first; the transcript must still read oldest first.
	for i, body := range []string{"third", "second", "first"} {
		_, err := st.Create(ctx, models.CollectionMessages, models.ChatMessage{
			RoomID:   id,
			SenderID: "alice",
			Body:     body,
			SentAt:   base.Add(time.Duration(2-i) * time.Second),
		})
		require.NoError(t, err)
	}

	relay, err := chatrelay.Start(ctx, st, id, "bob", "alice", 0)
	require.NoError(t, err)
	defer relay.Close()

	require.Eventually(t, func() bool {
		return len(relay.Messages()) == 3
	}, 2*time.Second, 10*time.Millisecond, "transcript never filled")

	var bodies []string
	for _, m := range relay.Messages() {
		bodies = append(bodies, m.Body)
	}
	assert.Equal(t, []string{"first", "second", "third"}, bodies)
}

// TestTypingDebounce verifies a burst of pulses reads as one typing=true and
// the quiet timer clears the flag with a single typing=false.
func TestTypingDebounce(t *testing.T) {
	st := store.NewMemoryStore()
	id := createTextSession(t, st)
	ctx := context.Background()

	quiet := 60 * time.Millisecond
	alice, err := chatrelay.Start(ctx, st, id, "alice", "bob", quiet)
	require.NoError(t, err)
	defer alice.Close()
	bob, err := chatrelay.Start(ctx, st, id, "bob", "alice", quiet)
	require.NoError(t, err)
	defer bob.Close()

	// Three keystroke bursts inside one quiet window.
	for i := 0; i < 3; i++ {
		alice.Pulse(ctx)
		time.Sleep(20 * time.Millisecond)
	}

	assert.True(t, receiveTyping(t, bob), "partner should see typing start")
	assert.False(t, receiveTyping(t, bob), "quiet timer should clear the flag exactly once")

	var s models.Session
	_, err = st.Get(ctx, models.CollectionRooms, id, &s)
	require.NoError(t, err)
	assert.False(t, s.Typing["alice"])
}

// TestSendClearsTyping verifies sending a message implies typing stopped.
func TestSendClearsTyping(t *testing.T) {
	st := store.NewMemoryStore()
	id := createTextSession(t, st)
	ctx := context.Background()

	// Long quiet so only the send can clear the flag.
	alice, err := chatrelay.Start(ctx, st, id, "alice", "bob", time.Minute)
	require.NoError(t, err)
	defer alice.Close()
	bob, err := chatrelay.Start(ctx, st, id, "bob", "alice", time.Minute)
	require.NoError(t, err)
	defer bob.Close()

	alice.Pulse(ctx)
	assert.True(t, receiveTyping(t, bob))

	require.NoError(t, alice.SendMessage(ctx, "done typing"))
	assert.False(t, receiveTyping(t, bob))
}

// TestCloseSignalsEnded verifies a local Close releases Ended waiters even
// when the session document never transitions in the store.
func TestCloseSignalsEnded(t *testing.T) {
	st := store.NewMemoryStore()
	id := createTextSession(t, st)

	relay, err := chatrelay.Start(context.Background(), st, id, "alice", "bob", 0)
	require.NoError(t, err)

	relay.Close()

	select {
	case <-relay.Ended():
	case <-time.After(2 * time.Second):
		t.Fatal("Ended not signaled after Close")
	}
}

// TestWritesAfterEnded verifies an ended session rejects sends and closes
// the Ended channel on both relays.
func TestWritesAfterEnded(t *testing.T) {
	st := store.NewMemoryStore()
	id := createTextSession(t, st)
	ctx := context.Background()

	alice, err := chatrelay.Start(ctx, st, id, "alice", "bob", 0)
	require.NoError(t, err)
	defer alice.Close()

	require.NoError(t, st.Update(ctx, models.CollectionRooms, id, map[string]any{
		"status": string(models.SessionEnded),
	}))

	select {
	case <-alice.Ended():
	case <-time.After(2 * time.Second):
		t.Fatal("relay never observed the session end")
	}

	err = alice.SendMessage(ctx, "too late")
	assert.ErrorIs(t, err, chatrelay.ErrSessionEnded)
}
