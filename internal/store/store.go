// Package store is the shared document store the two peers coordinate
// through before any direct connection exists: plain CRUD plus live query
// subscriptions, in the style of a hosted realtime document database.
//
// DeleteIfExists is the protocol's only mutual-exclusion primitive: when
// several matchers race for the same queue entry, exactly one delete reports
// success and that caller owns the match.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrUnavailable wraps network/backend failures so callers can translate
// them into a user-visible connectivity condition instead of crashing a
// session.
var ErrUnavailable = errors.New("store unavailable")

// ErrNotFound is wrapped by Update when the target document does not exist,
// so callers racing a concurrent delete can tell absence from failure.
var ErrNotFound = errors.New("document not found")

// ChangeType classifies a live-query notification.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Snapshot is a document as observed at some point in time.
type Snapshot struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into out.
func (s Snapshot) Decode(out any) error {
	return json.Unmarshal(s.Data, out)
}

// Change is one live-query notification. For ChangeRemoved, Doc carries the
// last observed document body.
type Change struct {
	Type ChangeType
	Doc  Snapshot
}

// Store is the document database interface the whole rendezvous protocol is
// written against. Implementations must deliver changes within one
// collection in per-writer insertion order.
type Store interface {
	// Create inserts doc and returns the store-assigned id.
	Create(ctx context.Context, collection string, doc any) (string, error)

	// Get reads one document into out; the bool reports presence.
	Get(ctx context.Context, collection, id string, out any) (bool, error)

	// Update merges fields into an existing document, wrapping ErrNotFound
	// when it does not exist. Keys may use dotted paths ("typing.<uid>") to
	// set nested map entries.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// DeleteIfExists atomically removes the document if present. Among
	// concurrent callers for the same id, at most one observes true.
	DeleteIfExists(ctx context.Context, collection, id string) (bool, error)

	// Find runs a one-shot query in insertion order. limit <= 0 means no
	// limit.
	Find(ctx context.Context, collection string, filter Filter, limit int) ([]Snapshot, error)

	// Subscribe opens a live query: documents already matching the filter
	// are delivered first as ChangeAdded, then mutations stream in as they
	// occur. The caller must Close the subscription.
	Subscribe(ctx context.Context, collection string, filter Filter) (*Subscription, error)
}

// Subscription is a handle on one live query. Changes are read from
// Changes(); Close is idempotent and safe to call concurrently with reads.
type Subscription struct {
	out  chan Change
	kick chan struct{}
	done chan struct{}

	mu      sync.Mutex
	pending []Change

	closeOnce sync.Once
	detach    func()

	// seen tracks which matching ids this subscriber has observed, so the
	// publisher can translate raw mutations into added/modified/removed
	// relative to the filter.
	seen map[string]bool
}

func newSubscription(detach func()) *Subscription {
	return &Subscription{
		out:    make(chan Change),
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		detach: detach,
		seen:   make(map[string]bool),
	}
}

// Changes returns the notification stream. The channel is closed after
// Close.
func (s *Subscription) Changes() <-chan Change {
	return s.out
}

// Close detaches the subscription and closes the change channel. Pending
// undelivered changes are discarded.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.detach != nil {
			s.detach()
		}
		close(s.done)
	})
}

// push queues a change for delivery. Never blocks the publisher.
func (s *Subscription) push(c Change) {
	s.mu.Lock()
	s.pending = append(s.pending, c)
	s.mu.Unlock()
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// deliver translates a raw store mutation into the subscriber's view of the
// filtered result set. matches reports whether the document body (for
// removals, the last known body) satisfies the filter.
func (s *Subscription) deliver(t ChangeType, doc Snapshot, matches bool) {
	switch t {
	case ChangeRemoved:
		if s.seen[doc.ID] {
			delete(s.seen, doc.ID)
			s.push(Change{Type: ChangeRemoved, Doc: doc})
		}
	default:
		switch {
		case matches && !s.seen[doc.ID]:
			s.seen[doc.ID] = true
			s.push(Change{Type: ChangeAdded, Doc: doc})
		case matches:
			s.push(Change{Type: ChangeModified, Doc: doc})
		case s.seen[doc.ID]:
			// Document mutated out of the filtered set.
			delete(s.seen, doc.ID)
			s.push(Change{Type: ChangeRemoved, Doc: doc})
		}
	}
}

// run pumps queued changes to the consumer until Close.
func (s *Subscription) run() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.kick:
		}
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			c := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			select {
			case s.out <- c:
			case <-s.done:
				return
			}
		}
	}
}
