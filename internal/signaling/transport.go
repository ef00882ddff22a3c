package signaling

import (
	"context"

	"meetgogo/backend/internal/models"
)

// RemoteTrack describes one media track arriving from the peer, decoupled
// from the underlying WebRTC engine's track types.
type RemoteTrack struct {
	ID   string `json:"id"`
	Kind string `json:"kind"` // audio or video
}

// MediaTransport abstracts the local WebRTC connection the relay feeds.
// Implementations must start emitting local candidates only after
// OnLocalCandidate has been registered (candidate gathering begins when the
// local description is set inside CreateOffer/CreateAnswer).
type MediaTransport interface {
	// CreateOffer produces and installs the local offer.
	CreateOffer(ctx context.Context) (models.SessionDescription, error)

	// CreateAnswer produces and installs the local answer. Requires the
	// remote description to be set first.
	CreateAnswer(ctx context.Context) (models.SessionDescription, error)

	// SetRemoteDescription installs the peer's offer or answer.
	SetRemoteDescription(desc models.SessionDescription) error

	// AddRemoteCandidate applies one relayed ICE candidate.
	AddRemoteCandidate(candidate models.IceCandidate) error

	// OnLocalCandidate registers the sink for locally gathered candidates.
	OnLocalCandidate(fn func(models.IceCandidate))

	// OnRemoteMedia registers the sink notified when a track arrives from
	// the peer.
	OnRemoteMedia(fn func(RemoteTrack))

	// Close tears the connection down. Idempotent.
	Close() error
}
