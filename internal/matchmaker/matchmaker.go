// Package matchmaker pairs anonymous searchers one-to-one through the shared
// document store. There is no coordinator process: the store's atomic
// delete-if-exists on a waiting entry is the only mutual exclusion, and
// losers of a claim race simply rescan.
package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/store"
)

// ErrRetryExhausted means claim contention stayed too high for the bounded
// retry budget. The user may simply search again.
var ErrRetryExhausted = errors.New("matchmaking retries exhausted")

// Role marks which side of the rendezvous a handle is.
type Role string

const (
	// RoleInitiator found and claimed the partner's waiting entry.
	RoleInitiator Role = "initiator"
	// RoleResponder was waiting in the queue when the partner arrived.
	RoleResponder Role = "responder"
)

// Handle is the resolved result of one FindOrWait call.
type Handle struct {
	SessionID string
	Session   models.Session
	Role      Role
	SelfUID   string
}

// Partner returns the matched partner's profile snapshot.
func (h *Handle) Partner() models.Profile {
	p, _ := h.Session.PartnerProfile(h.SelfUID)
	return p
}

// Matchmaker resolves searches against one Store. Safe for concurrent use.
type Matchmaker struct {
	Store store.Store

	// MaxClaimAttempts bounds how many claim failures a single search
	// tolerates before giving up with ErrRetryExhausted.
	MaxClaimAttempts int
	// ClaimBackoff is the first retry sleep; it doubles per failure.
	ClaimBackoff time.Duration
}

// New returns a matchmaker with the default retry policy.
func New(st store.Store) *Matchmaker {
	return &Matchmaker{
		Store:            st,
		MaxClaimAttempts: 5,
		ClaimBackoff:     50 * time.Millisecond,
	}
}

// FindOrWait resolves self into a session, either immediately as initiator
// (someone was waiting) or asynchronously as responder (we enqueue and wait
// for a session naming us). It resolves exactly once; canceling ctx
// abandons the search, removing our queue entry best-effort.
func (m *Matchmaker) FindOrWait(ctx context.Context, mode models.Mode, self models.Profile) (*Handle, error) {
	queue := mode.QueueCollection()
	backoff := m.ClaimBackoff

	for attempt := 0; attempt < m.MaxClaimAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Single-candidate scan: anyone waiting who is not us.
		snaps, err := m.Store.Find(ctx, queue, store.Where("uid", store.OpNeq, self.UID), 1)
		if err != nil {
			return nil, err
		}
		if len(snaps) == 0 {
			return m.wait(ctx, mode, self)
		}

		var entry models.WaitingEntry
		if err := snaps[0].Decode(&entry); err != nil {
			log.Printf("WARNING: malformed queue entry %s/%s: %v", queue, snaps[0].ID, err)
			continue
		}

		// The claim. Concurrent scanners may all see this entry; exactly
		// one delete succeeds and that caller owns the match.
		claimed, err := m.Store.DeleteIfExists(ctx, queue, snaps[0].ID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return m.createSession(ctx, mode, self, entry)
	}
	return nil, fmt.Errorf("%w: gave up after %d claim attempts", ErrRetryExhausted, m.MaxClaimAttempts)
}

// createSession runs on the initiator side after a successful claim.
func (m *Matchmaker) createSession(ctx context.Context, mode models.Mode, self models.Profile, entry models.WaitingEntry) (*Handle, error) {
	session := models.Session{
		Mode:         mode,
		Participants: []string{self.UID, entry.UID},
		Profiles: map[string]models.Profile{
			self.UID:  self,
			entry.UID: entry.Profile,
		},
		Status:    models.SessionActive,
		CreatedAt: time.Now().UTC(),
		Typing:    map[string]bool{},
	}
	id, err := m.Store.Create(ctx, models.CollectionRooms, session)
	if err != nil {
		return nil, err
	}
	session.ID = id
	log.Printf("Match: %s (initiator) and %s in session %s", self.UID, entry.UID, id)
	return &Handle{SessionID: id, Session: session, Role: RoleInitiator, SelfUID: self.UID}, nil
}

// wait enqueues self and blocks on a live query over sessions that name us
// as an active participant. The subscription's initial snapshot covers the
// race where a session was created between our scan and the subscribe.
func (m *Matchmaker) wait(ctx context.Context, mode models.Mode, self models.Profile) (*Handle, error) {
	queue := mode.QueueCollection()
	entryID, err := m.Store.Create(ctx, queue, models.WaitingEntry{
		UID:        self.UID,
		Profile:    self,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	filter := store.Where("participants", store.OpContains, self.UID).
		Where("status", store.OpEq, string(models.SessionActive)).
		Where("mode", store.OpEq, string(mode))
	sub, err := m.Store.Subscribe(ctx, models.CollectionRooms, filter)
	if err != nil {
		m.dropEntry(queue, entryID)
		return nil, err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			m.dropEntry(queue, entryID)
			return nil, ctx.Err()
		case change, ok := <-sub.Changes():
			if !ok {
				m.dropEntry(queue, entryID)
				return nil, fmt.Errorf("%w: subscription closed while waiting", store.ErrUnavailable)
			}
			if change.Type != store.ChangeAdded {
				continue
			}
			var session models.Session
			if err := change.Doc.Decode(&session); err != nil {
				log.Printf("WARNING: malformed session %s: %v", change.Doc.ID, err)
				continue
			}
			session.ID = change.Doc.ID

			// Our entry was consumed by the initiator's claim; deleting it
			// here is belt-and-braces for stores that surfaced the session
			// before the claim landed. Orphans are reaped externally by
			// their timestamp.
			m.dropEntry(queue, entryID)
			return &Handle{SessionID: session.ID, Session: session, Role: RoleResponder, SelfUID: self.UID}, nil
		}
	}
}

// dropEntry removes our own waiting entry, best-effort: a failure here only
// leaves an orphan for the reaper, never fails the search.
func (m *Matchmaker) dropEntry(queue, entryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := m.Store.DeleteIfExists(ctx, queue, entryID); err != nil {
		log.Printf("WARNING: removing own queue entry %s/%s: %v", queue, entryID, err)
	}
}
