package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"meetgogo/backend/internal/models"
)

// DefaultSTUNServers are the public STUN endpoints used when no ICE config
// is supplied.
var DefaultSTUNServers = []string{
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// PionTransport is the production MediaTransport over a pion
// webrtc.PeerConnection.
type PionTransport struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	localCb func(models.IceCandidate)
	trackCb func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	mediaCb func(RemoteTrack)
}

// NewPionTransport creates a peer connection against the given STUN servers
// (DefaultSTUNServers when empty).
func NewPionTransport(stunServers []string) (*PionTransport, error) {
	if len(stunServers) == 0 {
		stunServers = DefaultSTUNServers
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	t := &PionTransport{pc: pc}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of gathering
		}
		t.mu.Lock()
		cb := t.localCb
		t.mu.Unlock()
		if cb == nil {
			return
		}
		init := c.ToJSON()
		cb(models.IceCandidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
	// One OnTrack handler serves both sinks; pion keeps only the last
	// registered handler.
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		t.mu.Lock()
		trackCb, mediaCb := t.trackCb, t.mediaCb
		t.mu.Unlock()
		if trackCb != nil {
			trackCb(track, receiver)
		}
		if mediaCb != nil {
			mediaCb(RemoteTrack{ID: track.ID(), Kind: track.Kind().String()})
		}
	})
	return t, nil
}

// PeerConnection exposes the underlying connection so callers can attach
// local tracks and remote-track handlers before signaling starts.
func (t *PionTransport) PeerConnection() *webrtc.PeerConnection {
	return t.pc
}

// AddLocalTrack adds a local media track to be sent to the peer.
func (t *PionTransport) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return t.pc.AddTrack(track)
}

// OnRemoteTrack registers the pion-typed handler for media arriving from the
// peer, for callers that consume the RTP stream directly.
func (t *PionTransport) OnRemoteTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	t.mu.Lock()
	t.trackCb = fn
	t.mu.Unlock()
}

// OnRemoteMedia registers the engine-agnostic track notification sink.
func (t *PionTransport) OnRemoteMedia(fn func(RemoteTrack)) {
	t.mu.Lock()
	t.mediaCb = fn
	t.mu.Unlock()
}

func (t *PionTransport) OnLocalCandidate(fn func(models.IceCandidate)) {
	t.mu.Lock()
	t.localCb = fn
	t.mu.Unlock()
}

func (t *PionTransport) CreateOffer(ctx context.Context) (models.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return models.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return models.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return models.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (t *PionTransport) CreateAnswer(ctx context.Context) (models.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return models.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return models.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return models.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (t *PionTransport) SetRemoteDescription(desc models.SessionDescription) error {
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (t *PionTransport) AddRemoteCandidate(candidate models.IceCandidate) error {
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	})
}

func (t *PionTransport) Close() error {
	return t.pc.Close()
}

var _ MediaTransport = (*PionTransport)(nil)
