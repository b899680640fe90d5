package core

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks github.com/dkeye/VideoRoom/internal/core Gateway,Session

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Gateway opens sessions on a media gateway.
type Gateway interface {
	// OpenSession tries the servers in order and returns the first session
	// that could be created.
	OpenSession(ctx context.Context, servers []string) (Session, error)
}

type Session interface {
	ID() uint64
	Attach(ctx context.Context, plugin, opaqueID string, cb PluginCallbacks) (Handle, error)
	Destroy(ctx context.Context) error
}

// Handle is one attachment of a session to a gateway plugin.
type Handle interface {
	MediaHandle

	ID() uint64
	Plugin() string
	// Send delivers a plugin message. A non-nil reply means the plugin
	// answered synchronously; otherwise the answer arrives later through
	// OnMessage carrying the returned transaction id.
	Send(ctx context.Context, body Message, jsep *webrtc.SessionDescription) (reply Message, tx string, err error)
	Detach(ctx context.Context) error
}

// PluginCallbacks are invoked by a Handle for everything the gateway or the
// media engine reports about it. Callbacks must not block.
type PluginCallbacks struct {
	ConsentDialog func(on bool)
	IceState      func(state webrtc.ICEConnectionState)
	MediaState    func(medium string, receiving bool, mid string)
	WebrtcState   func(up bool, reason string)
	SlowLink      func(uplink bool, lost int, mid string)
	OnMessage     func(msg Message, jsep *webrtc.SessionDescription, tx string)
	OnLocalTrack  func(track Track, added bool)
	OnRemoteTrack func(track Track, mid string, added bool)
	OnData        func(data []byte, label string)
	OnDataOpen    func(label, protocol string)
	OnCleanup     func()
	OnDetached    func()
}

// WithDefaults fills every unset callback with a no-op.
func (c PluginCallbacks) WithDefaults() PluginCallbacks {
	if c.ConsentDialog == nil {
		c.ConsentDialog = func(bool) {}
	}
	if c.IceState == nil {
		c.IceState = func(webrtc.ICEConnectionState) {}
	}
	if c.MediaState == nil {
		c.MediaState = func(string, bool, string) {}
	}
	if c.WebrtcState == nil {
		c.WebrtcState = func(bool, string) {}
	}
	if c.SlowLink == nil {
		c.SlowLink = func(bool, int, string) {}
	}
	if c.OnMessage == nil {
		c.OnMessage = func(Message, *webrtc.SessionDescription, string) {}
	}
	if c.OnLocalTrack == nil {
		c.OnLocalTrack = func(Track, bool) {}
	}
	if c.OnRemoteTrack == nil {
		c.OnRemoteTrack = func(Track, string, bool) {}
	}
	if c.OnData == nil {
		c.OnData = func([]byte, string) {}
	}
	if c.OnDataOpen == nil {
		c.OnDataOpen = func(string, string) {}
	}
	if c.OnCleanup == nil {
		c.OnCleanup = func() {}
	}
	if c.OnDetached == nil {
		c.OnDetached = func() {}
	}
	return c
}
