// Package chatrelay carries a text session's ordered messages and the
// per-participant typing flag through the shared document store.
package chatrelay

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/store"
)

// ErrSessionEnded is returned by writes against a session already observed
// as ended.
var ErrSessionEnded = errors.New("session has ended")

// DefaultTypingQuiet is how long after the last keystroke the typing flag
// auto-clears.
const DefaultTypingQuiet = 2 * time.Second

// Relay is one participant's view of a text session: two live
// subscriptions (messages, session document) plus the local typing
// debounce timer.
type Relay struct {
	st         store.Store
	sessionID  string
	selfUID    string
	partnerUID string
	quiet      time.Duration

	mu            sync.Mutex
	msgs          []models.ChatMessage
	seen          map[string]bool
	partnerTyping bool
	ended         bool
	typingTimer   *time.Timer

	msgCh    chan models.ChatMessage
	typingCh chan bool
	endedCh  chan struct{}
	subs     []*store.Subscription

	closeOnce sync.Once
	endedOnce sync.Once
}

// Start opens the relay's subscriptions. quiet <= 0 uses
// DefaultTypingQuiet.
func Start(ctx context.Context, st store.Store, sessionID, selfUID, partnerUID string, quiet time.Duration) (*Relay, error) {
	if quiet <= 0 {
		quiet = DefaultTypingQuiet
	}
	r := &Relay{
		st:         st,
		sessionID:  sessionID,
		selfUID:    selfUID,
		partnerUID: partnerUID,
		quiet:      quiet,
		seen:       make(map[string]bool),
		msgCh:      make(chan models.ChatMessage, 256),
		typingCh:   make(chan bool, 16),
		endedCh:    make(chan struct{}),
	}

	msgSub, err := st.Subscribe(ctx, models.CollectionMessages, store.Where("room_id", store.OpEq, sessionID))
	if err != nil {
		return nil, err
	}
	roomSub, err := st.Subscribe(ctx, models.CollectionRooms, store.Where("id", store.OpEq, sessionID))
	if err != nil {
		msgSub.Close()
		return nil, err
	}
	r.subs = []*store.Subscription{msgSub, roomSub}

	go r.pumpMessages(msgSub)
	go r.pumpRoom(roomSub)
	return r, nil
}

// MessageEvents streams messages as they arrive (delivery order, not
// necessarily timestamp order; Messages() gives the resorted view).
func (r *Relay) MessageEvents() <-chan models.ChatMessage { return r.msgCh }

// TypingEvents emits the partner's typing flag whenever it changes.
func (r *Relay) TypingEvents() <-chan bool { return r.typingCh }

// Ended is closed once the session is observed as ended or the relay is
// closed locally.
func (r *Relay) Ended() <-chan struct{} { return r.endedCh }

// Messages returns the session transcript ordered by sent_at then id, the
// same on both sides regardless of delivery order.
func (r *Relay) Messages() []models.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ChatMessage, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// SendMessage appends one message and clears our typing flag.
func (r *Relay) SendMessage(ctx context.Context, body string) error {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return ErrSessionEnded
	}
	if r.typingTimer != nil {
		r.typingTimer.Stop()
		r.typingTimer = nil
	}
	r.mu.Unlock()

	msg := models.ChatMessage{
		RoomID:   r.sessionID,
		SenderID: r.selfUID,
		Body:     body,
		SentAt:   time.Now().UTC(),
	}
	if _, err := r.st.Create(ctx, models.CollectionMessages, msg); err != nil {
		return err
	}
	// Sending implies we stopped typing.
	r.writeTyping(ctx, false)
	return nil
}

// Pulse reports one keystroke burst: writes typing=true and arms the
// cancel-and-reset quiet timer that writes typing=false.
func (r *Relay) Pulse(ctx context.Context) {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	if r.typingTimer != nil {
		r.typingTimer.Stop()
	}
	r.typingTimer = time.AfterFunc(r.quiet, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		r.writeTyping(ctx, false)
	})
	r.mu.Unlock()
	r.writeTyping(ctx, true)
}

// SetTyping writes the flag explicitly, bypassing the debounce.
func (r *Relay) SetTyping(ctx context.Context, typing bool) {
	r.mu.Lock()
	if r.typingTimer != nil {
		r.typingTimer.Stop()
		r.typingTimer = nil
	}
	r.mu.Unlock()
	r.writeTyping(ctx, typing)
}

func (r *Relay) writeTyping(ctx context.Context, typing bool) {
	err := r.st.Update(ctx, models.CollectionRooms, r.sessionID, map[string]any{
		"typing." + r.selfUID: typing,
	})
	if err != nil {
		// Best-effort presence; never worth failing the session over.
		log.Printf("WARNING: typing update for %s: %v", r.sessionID, err)
	}
}

// Close cancels subscriptions and the typing timer and releases anyone
// blocked on Ended. Idempotent.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		if r.typingTimer != nil {
			r.typingTimer.Stop()
			r.typingTimer = nil
		}
		subs := r.subs
		r.mu.Unlock()
		for _, sub := range subs {
			sub.Close()
		}
	})
	r.endedOnce.Do(func() { close(r.endedCh) })
}

func (r *Relay) pumpMessages(sub *store.Subscription) {
	for change := range sub.Changes() {
		if change.Type != store.ChangeAdded {
			continue
		}
		var msg models.ChatMessage
		if err := change.Doc.Decode(&msg); err != nil {
			log.Printf("WARNING: malformed message in %s: %v", r.sessionID, err)
			continue
		}
		msg.ID = change.Doc.ID

		r.mu.Lock()
		if r.ended || r.seen[msg.ID] {
			// Late or duplicate delivery; receivers ignore, not error.
			r.mu.Unlock()
			continue
		}
		r.seen[msg.ID] = true
		r.msgs = append(r.msgs, msg)
		models.SortMessages(r.msgs)
		r.mu.Unlock()

		select {
		case r.msgCh <- msg:
		case <-r.endedCh:
			return
		}
	}
}

func (r *Relay) pumpRoom(sub *store.Subscription) {
	for change := range sub.Changes() {
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

		typing := s.Typing[r.partnerUID]
		r.mu.Lock()
		changed := typing != r.partnerTyping
		r.partnerTyping = typing
		r.mu.Unlock()
		if changed {
			select {
			case r.typingCh <- typing:
			default:
			}
		}
	}
}

// finish marks the session ended and tears the relay down.
func (r *Relay) finish() {
	r.mu.Lock()
	r.ended = true
	r.mu.Unlock()
	r.Close()
}
