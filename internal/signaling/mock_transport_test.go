package signaling_test

import (
	"context"
	"sync"
	"time"

	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/signaling"
)

// fakeTransport is a scripted MediaTransport: canned descriptions, recorded
// candidate order, and hooks for the test to emit local candidates and
// remote tracks. applyDelay simulates a slow engine per candidate.
type fakeTransport struct {
	name       string
	applyDelay time.Duration

	mu      sync.Mutex
	remote  *models.SessionDescription
	applied []models.IceCandidate
	onLocal func(models.IceCandidate)
	onMedia func(signaling.RemoteTrack)
	closed  bool
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{name: name}
}

func (f *fakeTransport) CreateOffer(ctx context.Context) (models.SessionDescription, error) {
	return models.SessionDescription{Type: "offer", SDP: "sdp-offer-" + f.name}, nil
}

func (f *fakeTransport) CreateAnswer(ctx context.Context) (models.SessionDescription, error) {
	return models.SessionDescription{Type: "answer", SDP: "sdp-answer-" + f.name}, nil
}

func (f *fakeTransport) SetRemoteDescription(desc models.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = &desc
	return nil
}

func (f *fakeTransport) AddRemoteCandidate(candidate models.IceCandidate) error {
	if f.applyDelay > 0 {
		time.Sleep(f.applyDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, candidate)
	return nil
}

func (f *fakeTransport) OnLocalCandidate(fn func(models.IceCandidate)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLocal = fn
}

func (f *fakeTransport) OnRemoteMedia(fn func(signaling.RemoteTrack)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMedia = fn
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// emitLocal simulates the connection gathering one candidate.
func (f *fakeTransport) emitLocal(candidate string) {
	f.mu.Lock()
	fn := f.onLocal
	f.mu.Unlock()
	if fn != nil {
		fn(models.IceCandidate{Candidate: candidate})
	}
}

// emitRemoteMedia simulates a track arriving from the peer.
func (f *fakeTransport) emitRemoteMedia(id, kind string) {
	f.mu.Lock()
	fn := f.onMedia
	f.mu.Unlock()
	if fn != nil {
		fn(signaling.RemoteTrack{ID: id, Kind: kind})
	}
}

func (f *fakeTransport) remoteDescription() *models.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote
}

func (f *fakeTransport) appliedCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.applied))
	for _, c := range f.applied {
		out = append(out, c.Candidate)
	}
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
