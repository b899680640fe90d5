package core

import (
	"context"

	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Track is the part of a media track the room logic cares about. Both
// webrtc.TrackLocal and *webrtc.TrackRemote satisfy it.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
}

type OfferOptions struct {
	Audio bool
	Video bool
	// Tracks are sent as given. When empty, tracks for the requested kinds
	// are created by the handle.
	Tracks []webrtc.TrackLocal
	// Encodings is the simulcast layer set applied to video.
	Encodings []domain.Encoding
}

// MediaHandle is the negotiation side of a Handle.
type MediaHandle interface {
	CreateOffer(ctx context.Context, opts OfferOptions) (*webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	// LocalTracks returns the tracks currently being sent.
	LocalTracks() []Track
}

func IsAudio(t Track) bool { return t != nil && t.Kind() == webrtc.RTPCodecTypeAudio }
func IsVideo(t Track) bool { return t != nil && t.Kind() == webrtc.RTPCodecTypeVideo }
