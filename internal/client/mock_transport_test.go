package client_test

import (
	"context"
	"sync"

	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/signaling"
)

// fakeTransport is a scripted MediaTransport so video sessions can run
// without a WebRTC engine.
type fakeTransport struct {
	name string

	mu      sync.Mutex
	remote  *models.SessionDescription
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

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// emitRemoteMedia simulates the peer's media arriving.
func (f *fakeTransport) emitRemoteMedia(id, kind string) {
	f.mu.Lock()
	fn := f.onMedia
	f.mu.Unlock()
	if fn != nil {
		fn(signaling.RemoteTrack{ID: id, Kind: kind})
	}
}
