package models

import "time"

// Mode selects which rendezvous queue a search goes through.
type Mode string

const (
	ModeText  Mode = "text"
	ModeVideo Mode = "video"
)

// QueueCollection returns the waiting-queue collection for the mode.
// Text and video searchers never see each other.
func (m Mode) QueueCollection() string {
	if m == ModeVideo {
		return CollectionVideoQueue
	}
	return CollectionChatQueue
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeText || m == ModeVideo
}

// SessionStatus is the lifecycle state of a paired session.
// The only transition is active -> ended; ended is terminal.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Store collection names. Candidates and messages live in their own
// collections keyed by room_id rather than as subdocuments, so each side's
// writes stay append-only and never contend with the other side's.
const (
	CollectionChatQueue  = "chat_queue"
	CollectionVideoQueue = "video_queue"
	CollectionRooms      = "rooms"
	CollectionMessages   = "messages"

	// Initiator-written and responder-written ICE candidate streams.
	CollectionCallerCandidates = "caller_candidates"
	CollectionCalleeCandidates = "callee_candidates"
)

// WaitingEntry is a queue ticket: one per user per queue while they wait.
// Deleted by whoever matches it (the atomic claim) or by its owner on cancel.
type WaitingEntry struct {
	ID         string    `json:"id,omitempty"`
	UID        string    `json:"uid"`
	Profile    Profile   `json:"profile"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// SessionDescription carries a WebRTC offer or answer verbatim.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// IceCandidate is opaque transport metadata relayed between the peers.
// Field names mirror the browser's RTCIceCandidateInit shape.
type IceCandidate struct {
	ID            string  `json:"id,omitempty"`
	RoomID        string  `json:"room_id"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Session is the shared rendezvous document both peers coordinate through
// before (and while) any direct connection exists.
type Session struct {
	ID string `json:"id,omitempty"`

	Mode Mode `json:"mode"`

	// Participants always holds exactly two distinct UIDs; the initiator
	// (the user who claimed the waiting entry) is first.
	Participants []string           `json:"participants"`
	Profiles     map[string]Profile `json:"profiles"`

	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`

	// Video signaling. Offer is written once by the initiator, answer once
	// by the responder; neither is ever rewritten.
	Offer  *SessionDescription `json:"offer,omitempty"`
	Answer *SessionDescription `json:"answer,omitempty"`

	// Typing maps participant UID -> currently typing (text mode).
	// Overwritten in place, no history.
	Typing map[string]bool `json:"typing,omitempty"`
}

// Initiator returns the UID of the participant who created the session.
func (s *Session) Initiator() string {
	if len(s.Participants) == 0 {
		return ""
	}
	return s.Participants[0]
}

// PartnerOf returns the other participant's UID, or "" if uid is not a
// participant.
func (s *Session) PartnerOf(uid string) string {
	if !s.HasParticipant(uid) {
		return ""
	}
	for _, p := range s.Participants {
		if p != uid {
			return p
		}
	}
	return ""
}

// PartnerProfile returns the profile snapshot of uid's partner.
func (s *Session) PartnerProfile(uid string) (Profile, bool) {
	partner := s.PartnerOf(uid)
	if partner == "" {
		return Profile{}, false
	}
	p, ok := s.Profiles[partner]
	return p, ok
}

// HasParticipant reports whether uid is one of the two participants.
func (s *Session) HasParticipant(uid string) bool {
	for _, p := range s.Participants {
		if p == uid {
			return true
		}
	}
	return false
}
