// Package session tracks the active/ended state of a paired session.
// Ending is one-way and idempotent; either participant may end, and both
// observe the terminal transition through the store's live query.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/store"
)

// Lifecycle ends and observes sessions against one Store.
type Lifecycle struct {
	Store store.Store
}

// NewLifecycle returns a lifecycle service over st.
func NewLifecycle(st store.Store) *Lifecycle {
	return &Lifecycle{Store: st}
}

// End flips the session to ended. Safe to call any number of times by either
// participant; a session already garbage-collected counts as ended, even
// when the removal races the write itself.
func (l *Lifecycle) End(ctx context.Context, sessionID string) error {
	err := l.Store.Update(ctx, models.CollectionRooms, sessionID, map[string]any{
		"status":   string(models.SessionEnded),
		"ended_at": time.Now().UTC(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Watcher streams a session's status transitions. Duplicate deliveries from
// the underlying transport are collapsed: each observer sees active at most
// once and ended exactly once (session removal counts as ended).
type Watcher struct {
	out chan models.SessionStatus
	sub *store.Subscription
}

// Status returns the transition stream. Closed after the terminal ended or
// after Close.
func (w *Watcher) Status() <-chan models.SessionStatus {
	return w.out
}

// Close cancels the underlying subscription. Idempotent.
func (w *Watcher) Close() {
	w.sub.Close()
}

// Observe subscribes to one session's document and reports its status
// transitions.
func (l *Lifecycle) Observe(ctx context.Context, sessionID string) (*Watcher, error) {
	sub, err := l.Store.Subscribe(ctx, models.CollectionRooms, store.Where("id", store.OpEq, sessionID))
	if err != nil {
		return nil, err
	}
	w := &Watcher{out: make(chan models.SessionStatus, 4), sub: sub}
	go w.pump(sessionID)
	return w, nil
}

func (w *Watcher) pump(sessionID string) {
	defer close(w.out)
	var last models.SessionStatus
	for change := range w.sub.Changes() {
		status := models.SessionEnded
		if change.Type != store.ChangeRemoved {
			var s models.Session
			if err := change.Doc.Decode(&s); err != nil {
				log.Printf("WARNING: malformed session %s: %v", sessionID, err)
				continue
			}
			status = s.Status
		}
		if status == last {
			continue
		}
		last = status
		// Only active and ended exist, so the buffered channel always has
		// room and the pump never blocks on a slow observer.
		w.out <- status
		if status == models.SessionEnded {
			w.sub.Close()
			return
		}
	}
}
