package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/session"
	"meetgogo/backend/internal/store"
)

func createSession(t *testing.T, st store.Store) string {
	t.Helper()
	id, err := st.Create(context.Background(), models.CollectionRooms, models.Session{
		Mode:         models.ModeText,
		Participants: []string{"bob", "alice"},
		Status:       models.SessionActive,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	return id
}

func receiveStatus(t *testing.T, w *session.Watcher) models.SessionStatus {
	t.Helper()
	select {
	case s, ok := <-w.Status():
		require.True(t, ok, "status stream closed unexpectedly")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status")
		return ""
	}
}

// TestEndMarksSession verifies End flips status and stamps ended_at.
func TestEndMarksSession(t *testing.T) {
	st := store.NewMemoryStore()
	life := session.NewLifecycle(st)
	id := createSession(t, st)

	require.NoError(t, life.End(context.Background(), id))

	var s models.Session
	exists, err := st.Get(context.Background(), models.CollectionRooms, id, &s)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, models.SessionEnded, s.Status)
	assert.NotNil(t, s.EndedAt)
}

// TestEndIdempotent verifies repeated ends, from either side, are harmless.
func TestEndIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	life := session.NewLifecycle(st)
	id := createSession(t, st)

	require.NoError(t, life.End(context.Background(), id))
	require.NoError(t, life.End(context.Background(), id))
	require.NoError(t, life.End(context.Background(), id))
}

// TestEndMissingSession verifies ending a garbage-collected session is a
// no-op, not an error.
func TestEndMissingSession(t *testing.T) {
	st := store.NewMemoryStore()
	life := session.NewLifecycle(st)

	assert.NoError(t, life.End(context.Background(), "long-gone"))
}

// TestEndRacesRemoval verifies a session deleted just before the end write
// still counts as ended.
func TestEndRacesRemoval(t *testing.T) {
	st := store.NewMemoryStore()
	life := session.NewLifecycle(st)
	id := createSession(t, st)

	_, err := st.DeleteIfExists(context.Background(), models.CollectionRooms, id)
	require.NoError(t, err)

	assert.NoError(t, life.End(context.Background(), id))
}

// TestObserveSeesEndOnce verifies an observer gets active, then exactly one
// ended, even when the end is written twice, and the stream then closes.
func TestObserveSeesEndOnce(t *testing.T) {
	st := store.NewMemoryStore()
	life := session.NewLifecycle(st)
	id := createSession(t, st)

	w, err := life.Observe(context.Background(), id)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, models.SessionActive, receiveStatus(t, w))

	require.NoError(t, life.End(context.Background(), id))
	require.NoError(t, life.End(context.Background(), id))

	assert.Equal(t, models.SessionEnded, receiveStatus(t, w))

	select {
	case _, ok := <-w.Status():
		assert.False(t, ok, "stream should close after the terminal transition")
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after ended")
	}
}

// TestObserveRemovalCountsAsEnded verifies a deleted session document reads
// as ended to observers.
func TestObserveRemovalCountsAsEnded(t *testing.T) {
	st := store.NewMemoryStore()
	life := session.NewLifecycle(st)
	id := createSession(t, st)

	w, err := life.Observe(context.Background(), id)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, models.SessionActive, receiveStatus(t, w))

	_, err = st.DeleteIfExists(context.Background(), models.CollectionRooms, id)
	require.NoError(t, err)

	assert.Equal(t, models.SessionEnded, receiveStatus(t, w))
}
