// Package signaling relays WebRTC offer/answer/ICE-candidate exchange
// between the two peers of a video session through the shared document
// store, which is their only channel before a direct connection exists.
//
// The two roles own disjoint fields: the initiator writes the offer and the
// caller candidate stream, the responder writes the answer and the callee
// candidate stream. Only the session status is shared.
package signaling

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/store"
)

// State is the relay's position in the signaling exchange.
type State int

const (
	StateNoOffer State = iota
	StateAwaitingAnswer
	StateAnswerSent
	StateConnected
	StateClosed
)

// Relay drives one side of a session's signaling exchange. Construct with
// StartInitiator or StartResponder; the two share all observation machinery
// and differ only in which fields they write.
type Relay struct {
	st        store.Store
	transport MediaTransport
	sessionID string

	ownCol    string // candidate collection we append to
	remoteCol string // candidate collection we apply from

	mu        sync.Mutex
	state     State
	remoteSet bool
	answered  bool
	applying  bool                  // a drainPending loop is running
	pending   []models.IceCandidate // candidates queued until the remote description lands

	subs      []*store.Subscription
	ended     chan struct{}
	endedOnce sync.Once
	closeOnce sync.Once
}

// Ended is closed when the session's status is observed as ended, the
// session document disappears, or the relay is closed locally. The transport
// is already closed by then.
func (r *Relay) Ended() <-chan struct{} {
	return r.ended
}

// State returns the current signaling state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Close cancels all subscriptions, closes the transport, and releases anyone
// blocked on Ended. Idempotent and safe from any goroutine.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.state = StateClosed
		subs := r.subs
		r.mu.Unlock()
		for _, sub := range subs {
			sub.Close()
		}
		if err := r.transport.Close(); err != nil {
			log.Printf("WARNING: closing media transport for %s: %v", r.sessionID, err)
		}
	})
	r.endedOnce.Do(func() { close(r.ended) })
}

func newRelay(st store.Store, sessionID string, t MediaTransport, ownCol, remoteCol string) *Relay {
	return &Relay{
		st:        st,
		transport: t,
		sessionID: sessionID,
		ownCol:    ownCol,
		remoteCol: remoteCol,
		ended:     make(chan struct{}),
	}
}

// StartInitiator begins signaling for the side that claimed the match:
// write the offer, then wait for the first non-empty answer while trickling
// candidates both ways.
func StartInitiator(ctx context.Context, st store.Store, sessionID string, t MediaTransport) (*Relay, error) {
	r := newRelay(st, sessionID, t, models.CollectionCallerCandidates, models.CollectionCalleeCandidates)
	t.OnLocalCandidate(r.publishLocalCandidate)

	offer, err := t.CreateOffer(ctx)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	// A failed offer write is surfaced, not retried: retrying would risk the
	// write-once invariant on the offer field.
	if err := st.Update(ctx, models.CollectionRooms, sessionID, map[string]any{"offer": offer}); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.state = StateAwaitingAnswer
	r.mu.Unlock()

	if err := r.watch(ctx, r.onSessionUpdateInitiator); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// StartResponder begins signaling for the side that was waiting: read the
// offer (or wait for it if the read races the initiator's write), answer,
// then trickle candidates.
func StartResponder(ctx context.Context, st store.Store, sessionID string, t MediaTransport) (*Relay, error) {
	r := newRelay(st, sessionID, t, models.CollectionCalleeCandidates, models.CollectionCallerCandidates)
	t.OnLocalCandidate(r.publishLocalCandidate)

	var session models.Session
	exists, err := st.Get(ctx, models.CollectionRooms, sessionID, &session)
	if err != nil {
		return nil, err
	}
	if exists && session.Offer != nil {
		if err := r.answer(ctx, *session.Offer); err != nil {
			return nil, err
		}
	}
	// If the offer was not there yet, onSessionUpdateResponder picks it up
	// from the live query.
	if err := r.watch(ctx, func(s models.Session) { r.onSessionUpdateResponder(ctx, s) }); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// watch opens the session-document and remote-candidate subscriptions.
func (r *Relay) watch(ctx context.Context, onSession func(models.Session)) error {
	sessionSub, err := r.st.Subscribe(ctx, models.CollectionRooms, store.Where("id", store.OpEq, r.sessionID))
	if err != nil {
		return err
	}
	candSub, err := r.st.Subscribe(ctx, r.remoteCol, store.Where("room_id", store.OpEq, r.sessionID))
	if err != nil {
		sessionSub.Close()
		return err
	}
	r.mu.Lock()
	r.subs = append(r.subs, sessionSub, candSub)
	r.mu.Unlock()

	go func() {
		for change := range sessionSub.Changes() {
			if change.Type == store.ChangeRemoved {
				r.finish()
				return
			}
			var s models.Session
			if err := change.Doc.Decode(&s); err != nil {
				log.Printf("WARNING: malformed session %s: %v", r.sessionID, err)
				continue
			}
			if s.Status == models.SessionEnded {
				r.finish()
				return
			}
			onSession(s)
		}
	}()
	go func() {
		for change := range candSub.Changes() {
			if change.Type != store.ChangeAdded {
				continue
			}
			var c models.IceCandidate
			if err := change.Doc.Decode(&c); err != nil {
				log.Printf("WARNING: malformed candidate in %s: %v", r.remoteCol, err)
				continue
			}
			r.applyRemoteCandidate(c)
		}
	}()
	return nil
}

// onSessionUpdateInitiator reacts to the first non-empty answer; later
// writes to the field are ignored.
func (r *Relay) onSessionUpdateInitiator(s models.Session) {
	if s.Answer == nil {
		return
	}
	r.mu.Lock()
	if r.answered {
		r.mu.Unlock()
		return
	}
	r.answered = true
	r.mu.Unlock()

	if err := r.transport.SetRemoteDescription(*s.Answer); err != nil {
		log.Printf("ERROR: applying answer for %s: %v", r.sessionID, err)
		return
	}
	r.flushPending()
	r.mu.Lock()
	r.state = StateConnected
	r.mu.Unlock()
}

// onSessionUpdateResponder handles the late-offer race: the session became
// visible to us before the initiator's offer write landed.
func (r *Relay) onSessionUpdateResponder(ctx context.Context, s models.Session) {
	if s.Offer == nil {
		return
	}
	r.mu.Lock()
	if r.remoteSet {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if err := r.answer(ctx, *s.Offer); err != nil {
		log.Printf("ERROR: answering session %s: %v", r.sessionID, err)
	}
}

// answer installs the offer, writes our answer once, and flushes any
// candidates that arrived early.
func (r *Relay) answer(ctx context.Context, offer models.SessionDescription) error {
	r.mu.Lock()
	if r.answered {
		r.mu.Unlock()
		return nil
	}
	r.answered = true
	r.mu.Unlock()

	if err := r.transport.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("apply offer: %w", err)
	}
	r.flushPending()

	answer, err := r.transport.CreateAnswer(ctx)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := r.st.Update(ctx, models.CollectionRooms, r.sessionID, map[string]any{"answer": answer}); err != nil {
		return err
	}
	r.mu.Lock()
	r.state = StateAnswerSent
	r.mu.Unlock()
	return nil
}

// publishLocalCandidate appends one locally gathered candidate to our own
// candidate stream. Write failures are logged; losing a candidate degrades
// connectivity, it does not corrupt the exchange.
func (r *Relay) publishLocalCandidate(c models.IceCandidate) {
	c.RoomID = r.sessionID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.st.Create(ctx, r.ownCol, c); err != nil {
		log.Printf("ERROR: publishing candidate for %s: %v", r.sessionID, err)
	}
}

// applyRemoteCandidate routes every relayed candidate through the pending
// queue. Nothing is applied until the remote description is installed, and
// only one drain loop runs at a time, so the transport always sees the
// peer's emission order.
func (r *Relay) applyRemoteCandidate(c models.IceCandidate) {
	r.mu.Lock()
	r.pending = append(r.pending, c)
	if !r.remoteSet || r.applying {
		r.mu.Unlock()
		return
	}
	r.applying = true
	r.mu.Unlock()
	r.drainPending()
}

// flushPending marks the remote description installed and starts draining
// whatever queued up before it.
func (r *Relay) flushPending() {
	r.mu.Lock()
	r.remoteSet = true
	if r.applying {
		r.mu.Unlock()
		return
	}
	r.applying = true
	r.mu.Unlock()
	r.drainPending()
}

// drainPending pops queued candidates one at a time. Candidates arriving
// mid-drain land at the tail of pending and are picked up by the same loop.
func (r *Relay) drainPending() {
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.applying = false
			r.mu.Unlock()
			return
		}
		c := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()

		if err := r.transport.AddRemoteCandidate(c); err != nil {
			log.Printf("WARNING: applying candidate for %s: %v", r.sessionID, err)
		}
	}
}

// finish is the terminal transition out of the signaling state machine.
func (r *Relay) finish() {
	r.Close()
}
