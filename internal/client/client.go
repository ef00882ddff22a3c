// Package client is the presentation-facing facade: one Client owns one
// search or one live session at a time and reports everything that happens
// through a single event stream. It is the session-scoped context object the
// rest of the system hangs off; the caller that starts a search owns the
// teardown.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"meetgogo/backend/internal/archive"
	"meetgogo/backend/internal/chatrelay"
	"meetgogo/backend/internal/matchmaker"
	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/session"
	"meetgogo/backend/internal/signaling"
	"meetgogo/backend/internal/store"
)

var (
	// ErrMediaAccessDenied means the media transport could not be acquired.
	// Fatal to starting a video search; reported before any store writes.
	ErrMediaAccessDenied = errors.New("media access denied")

	// ErrBusy means a search or session is already in progress on this
	// client.
	ErrBusy = errors.New("search or session already in progress")

	// ErrNoActiveSession means the operation needs a live session.
	ErrNoActiveSession = errors.New("no active session")
)

// EventType tags entries of the client's event stream.
type EventType string

const (
	EventMatched      EventType = "matched"
	EventMessage      EventType = "message"
	EventTyping       EventType = "typing"
	EventRemoteTrack  EventType = "remote_track"
	EventSessionEnded EventType = "session_ended"
	EventError        EventType = "error"
)

// Event is one notification to the presentation layer.
type Event struct {
	Type      EventType
	SessionID string

	// Matched
	Partner *models.Profile
	Role    matchmaker.Role
	Mode    models.Mode

	// Message
	Message *models.ChatMessage

	// Typing
	Typing *bool

	// RemoteTrack (video sessions)
	Track *signaling.RemoteTrack

	// Error
	Err error
}

// TransportFactory acquires the local media transport for a video session.
// It runs before matchmaking touches the store, so a denied camera or
// microphone aborts the search cleanly.
type TransportFactory func() (signaling.MediaTransport, error)

// Config wires a Client.
type Config struct {
	Store   store.Store
	Profile models.Profile

	// Archive may be nil; retention is best-effort either way.
	Archive archive.Archive

	// TransportFactory is required for video searches only.
	TransportFactory TransportFactory

	// TypingQuiet overrides the typing debounce; zero means the default.
	TypingQuiet time.Duration

	// Matchmaker overrides the default retry policy when set.
	Matchmaker *matchmaker.Matchmaker
}

// Client drives searches and sessions for one user.
type Client struct {
	st      store.Store
	match   *matchmaker.Matchmaker
	life    *session.Lifecycle
	arch    archive.Archive
	profile models.Profile
	factory TransportFactory
	quiet   time.Duration

	events chan Event
	done   chan struct{}

	mu           sync.Mutex
	searchCancel context.CancelFunc
	active       *activeSession
	closeOnce    sync.Once
}

// activeSession bundles everything scoped to one live session so teardown
// releases it all together.
type activeSession struct {
	handle *matchmaker.Handle
	chat   *chatrelay.Relay
	sig    *signaling.Relay
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	m := cfg.Matchmaker
	if m == nil {
		m = matchmaker.New(cfg.Store)
	}
	return &Client{
		st:      cfg.Store,
		match:   m,
		life:    session.NewLifecycle(cfg.Store),
		arch:    cfg.Archive,
		profile: cfg.Profile,
		factory: cfg.TransportFactory,
		quiet:   cfg.TypingQuiet,
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}
}

// Events is the notification stream for the presentation layer.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the client is shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// StartSearch begins matchmaking in the given mode. Resolution (or failure)
// arrives on the event stream; the call itself only fails if the client is
// busy or media cannot be acquired.
func (c *Client) StartSearch(mode models.Mode) error {
	var transport signaling.MediaTransport
	if mode == models.ModeVideo {
		if c.factory == nil {
			return fmt.Errorf("%w: no media transport configured", ErrMediaAccessDenied)
		}
		t, err := c.factory()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMediaAccessDenied, err)
		}
		transport = t
	}

	c.mu.Lock()
	if c.searchCancel != nil || c.active != nil {
		c.mu.Unlock()
		if transport != nil {
			_ = transport.Close()
		}
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.searchCancel = cancel
	c.mu.Unlock()

	go c.runSearch(ctx, mode, transport)
	return nil
}

// CancelSearch abandons a pending search: the queue entry is removed and
// the pending resolution never fires. Safe to call when idle.
func (c *Client) CancelSearch() {
	c.mu.Lock()
	cancel := c.searchCancel
	c.searchCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) runSearch(ctx context.Context, mode models.Mode, transport signaling.MediaTransport) {
	handle, err := c.match.FindOrWait(ctx, mode, c.profile)

	c.mu.Lock()
	c.searchCancel = nil
	c.mu.Unlock()

	if err != nil {
		if transport != nil {
			_ = transport.Close()
		}
		if errors.Is(err, context.Canceled) {
			// Abandoned searches resolve nothing.
			return
		}
		c.emit(Event{Type: EventError, Err: err})
		return
	}

	if err := c.attach(handle, transport); err != nil {
		if transport != nil {
			_ = transport.Close()
		}
		c.endQuietly(handle.SessionID)
		c.emit(Event{Type: EventError, Err: err})
		return
	}

	partner := handle.Partner()
	c.emit(Event{
		Type:      EventMatched,
		SessionID: handle.SessionID,
		Partner:   &partner,
		Role:      handle.Role,
		Mode:      mode,
	})
}

// attach starts the per-session relays and registers the active session.
func (c *Client) attach(handle *matchmaker.Handle, transport signaling.MediaTransport) error {
	ctx := context.Background()
	active := &activeSession{handle: handle}

	switch handle.Session.Mode {
	case models.ModeVideo:
		// Surface incoming media before any signaling can complete.
		transport.OnRemoteMedia(func(rt signaling.RemoteTrack) {
			track := rt
			c.emit(Event{Type: EventRemoteTrack, SessionID: handle.SessionID, Track: &track})
		})

		var relay *signaling.Relay
		var err error
		if handle.Role == matchmaker.RoleInitiator {
			relay, err = signaling.StartInitiator(ctx, c.st, handle.SessionID, transport)
		} else {
			relay, err = signaling.StartResponder(ctx, c.st, handle.SessionID, transport)
		}
		if err != nil {
			return err
		}
		active.sig = relay
	default:
		relay, err := chatrelay.Start(ctx, c.st, handle.SessionID, handle.SelfUID, handle.Session.PartnerOf(handle.SelfUID), c.quiet)
		if err != nil {
			return err
		}
		active.chat = relay
	}

	c.mu.Lock()
	c.active = active
	c.mu.Unlock()

	// One durable record per session; the initiator created it, the
	// initiator archives it.
	if c.arch != nil && handle.Role == matchmaker.RoleInitiator {
		_ = c.arch.SaveSession(&models.SessionRecord{
			SessionID:    handle.SessionID,
			Mode:         string(handle.Session.Mode),
			Participants: handle.Session.Participants,
			IsActive:     true,
			StartedAt:    handle.Session.CreatedAt,
		})
	}

	go c.monitor(active)
	return nil
}

// monitor forwards relay events to the client stream until the session
// ends, then clears the active session exactly once.
func (c *Client) monitor(active *activeSession) {
	sessionID := active.handle.SessionID

	if active.chat != nil {
		for {
			select {
			case <-c.done:
				return
			case msg, ok := <-active.chat.MessageEvents():
				if !ok {
					continue
				}
				if msg.SenderID == active.handle.SelfUID {
					continue // own echo; the sender already has it
				}
				m := msg
				c.emit(Event{Type: EventMessage, SessionID: sessionID, Message: &m})
			case typing, ok := <-active.chat.TypingEvents():
				if !ok {
					continue
				}
				t := typing
				c.emit(Event{Type: EventTyping, SessionID: sessionID, Typing: &t})
			case <-active.chat.Ended():
				c.sessionEnded(active)
				return
			}
		}
	}

	select {
	case <-c.done:
	case <-active.sig.Ended():
		c.sessionEnded(active)
	}
}

// sessionEnded runs once per session, whether we ended it or the peer did.
func (c *Client) sessionEnded(active *activeSession) {
	c.mu.Lock()
	if c.active != active {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	c.teardown(active)
	if c.arch != nil {
		_ = c.arch.CloseSession(active.handle.SessionID)
	}
	c.emit(Event{Type: EventSessionEnded, SessionID: active.handle.SessionID})
}

func (c *Client) teardown(active *activeSession) {
	if active.chat != nil {
		active.chat.Close()
	}
	if active.sig != nil {
		active.sig.Close()
	}
}

// SendMessage appends a chat message to the live text session and archives
// it best-effort.
func (c *Client) SendMessage(ctx context.Context, body string) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil || active.chat == nil {
		return ErrNoActiveSession
	}
	if err := active.chat.SendMessage(ctx, body); err != nil {
		return err
	}
	if c.arch != nil {
		_ = c.arch.SaveMessage(&models.MessageRecord{
			SessionID: active.handle.SessionID,
			SenderID:  active.handle.SelfUID,
			Body:      body,
			SentAt:    time.Now().UTC(),
		})
	}
	return nil
}

// SetTyping reports local input state. true pulses the debounced typing
// flag; false clears it immediately.
func (c *Client) SetTyping(ctx context.Context, typing bool) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil || active.chat == nil {
		return ErrNoActiveSession
	}
	if typing {
		active.chat.Pulse(ctx)
	} else {
		active.chat.SetTyping(ctx, false)
	}
	return nil
}

// EndSession flips the live session to ended. Both sides observe the
// transition through the store; the local EventSessionEnded follows from
// that observation, so ending is reported exactly once either way.
func (c *Client) EndSession(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil {
		return ErrNoActiveSession
	}
	return c.life.End(ctx, active.handle.SessionID)
}

// SwapPartner ends the current session and immediately searches again in
// the same mode. The end is issued before the new search starts, so our old
// partner never sees us matched elsewhere while their session looks active.
func (c *Client) SwapPartner(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil {
		return ErrNoActiveSession
	}
	mode := active.handle.Session.Mode

	if err := c.life.End(ctx, active.handle.SessionID); err != nil {
		return err
	}
	// Release the slot synchronously rather than waiting for the store's
	// round-trip; the monitor's own sessionEnded becomes a no-op.
	c.sessionEnded(active)
	return c.StartSearch(mode)
}

// endQuietly ends a session we could not attach to; best-effort.
func (c *Client) endQuietly(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.life.End(ctx, sessionID); err != nil {
		log.Printf("WARNING: ending unattached session %s: %v", sessionID, err)
	}
}

// Close cancels any search, ends any live session, and stops the event
// stream. Idempotent; always safe on disconnect.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.CancelSearch()

		c.mu.Lock()
		active := c.active
		c.active = nil
		c.mu.Unlock()

		if active != nil {
			c.endQuietly(active.handle.SessionID)
			c.teardown(active)
			if c.arch != nil {
				_ = c.arch.CloseSession(active.handle.SessionID)
			}
		}
		close(c.done)
	})
}

// emit delivers an event without ever wedging a relay goroutine on a dead
// consumer.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
