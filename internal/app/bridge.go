package app

import (
	"context"
	"fmt"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/stream"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type MessageEvent struct {
	Msg  core.Message
	Jsep *webrtc.SessionDescription
	TxID string
}

type MediaStateEvent struct {
	Medium    string
	Receiving bool
	MID       string
}

type WebrtcStateEvent struct {
	Up     bool
	Reason string
}

type SlowLinkEvent struct {
	Uplink bool
	Lost   int
	MID    string
}

type LocalTrackEvent struct {
	Track core.Track
	Added bool
}

type RemoteTrackEvent struct {
	Track core.Track
	MID   string
	Added bool
}

type DataEvent struct {
	Data  []byte
	Label string
}

type DataOpenEvent struct {
	Label    string
	Protocol string
}

// Callbacks has one bus per plugin callback.
type Callbacks struct {
	ConsentDialog *stream.Bus[bool]
	IceState      *stream.Bus[webrtc.ICEConnectionState]
	MediaState    *stream.Bus[MediaStateEvent]
	WebrtcState   *stream.Bus[WebrtcStateEvent]
	SlowLink      *stream.Bus[SlowLinkEvent]
	Message       *stream.Bus[MessageEvent]
	LocalTrack    *stream.Bus[LocalTrackEvent]
	RemoteTrack   *stream.Bus[RemoteTrackEvent]
	Data          *stream.Bus[DataEvent]
	DataOpen      *stream.Bus[DataOpenEvent]
	Cleanup       *stream.Bus[struct{}]
	Detached      *stream.Bus[struct{}]
}

// Signal is a plugin message on the signaling stream. Err is a
// *core.RequestError when the plugin reported a failure.
type Signal struct {
	Msg  core.Message
	TxID string
	Err  error
}

// Channel is a plugin handle whose callbacks are exposed as event streams.
type Channel struct {
	core.Handle

	Callbacks Callbacks
	// Messages carries every plugin message, in arrival order.
	Messages *stream.Bus[Signal]
	// Descriptions carries every session description the plugin sent.
	Descriptions *stream.Bus[webrtc.SessionDescription]
}

func newChannel() *Channel {
	return &Channel{
		Callbacks: Callbacks{
			ConsentDialog: stream.NewBus[bool](),
			IceState:      stream.NewBus[webrtc.ICEConnectionState](),
			MediaState:    stream.NewBus[MediaStateEvent](),
			WebrtcState:   stream.NewBus[WebrtcStateEvent](),
			SlowLink:      stream.NewBus[SlowLinkEvent](),
			Message:       stream.NewBus[MessageEvent](),
			LocalTrack:    stream.NewBus[LocalTrackEvent](),
			RemoteTrack:   stream.NewBus[RemoteTrackEvent](),
			Data:          stream.NewBus[DataEvent](),
			DataOpen:      stream.NewBus[DataOpenEvent](),
			Cleanup:       stream.NewBus[struct{}](),
			Detached:      stream.NewBus[struct{}](),
		},
		Messages:     stream.NewBus[Signal](),
		Descriptions: stream.NewBus[webrtc.SessionDescription](),
	}
}

// Attach attaches plugin on s and bridges the handle's callbacks.
func Attach(ctx context.Context, s core.Session, plugin, opaqueID string) (*Channel, error) {
	ch := newChannel()
	h, err := s.Attach(ctx, plugin, opaqueID, ch.pluginCallbacks(plugin))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrAttach, plugin, err)
	}
	ch.Handle = h
	log.Info().Str("module", "app.bridge").Str("plugin", plugin).Uint64("handle", h.ID()).Msg("plugin attached")
	return ch, nil
}

// Detach detaches the channel's handle.
func Detach(ctx context.Context, ch *Channel) error {
	if err := ch.Handle.Detach(ctx); err != nil {
		return fmt.Errorf("%w: detach %s: %w", core.ErrTeardown, ch.Plugin(), err)
	}
	return nil
}

func (c *Channel) pluginCallbacks(plugin string) core.PluginCallbacks {
	cb := c.Callbacks
	return core.PluginCallbacks{
		ConsentDialog: cb.ConsentDialog.Publish,
		IceState:      cb.IceState.Publish,
		MediaState: func(medium string, receiving bool, mid string) {
			cb.MediaState.Publish(MediaStateEvent{Medium: medium, Receiving: receiving, MID: mid})
		},
		WebrtcState: func(up bool, reason string) {
			cb.WebrtcState.Publish(WebrtcStateEvent{Up: up, Reason: reason})
		},
		SlowLink: func(uplink bool, lost int, mid string) {
			cb.SlowLink.Publish(SlowLinkEvent{Uplink: uplink, Lost: lost, MID: mid})
		},
		OnMessage: func(msg core.Message, jsep *webrtc.SessionDescription, tx string) {
			cb.Message.Publish(MessageEvent{Msg: msg, Jsep: jsep, TxID: tx})
			c.derive(plugin, msg, jsep, tx)
		},
		OnLocalTrack: func(t core.Track, added bool) {
			cb.LocalTrack.Publish(LocalTrackEvent{Track: t, Added: added})
		},
		OnRemoteTrack: func(t core.Track, mid string, added bool) {
			cb.RemoteTrack.Publish(RemoteTrackEvent{Track: t, MID: mid, Added: added})
		},
		OnData: func(data []byte, label string) {
			cb.Data.Publish(DataEvent{Data: data, Label: label})
		},
		OnDataOpen: func(label, protocol string) {
			cb.DataOpen.Publish(DataOpenEvent{Label: label, Protocol: protocol})
		},
		OnCleanup:  func() { cb.Cleanup.Publish(struct{}{}) },
		OnDetached: func() { cb.Detached.Publish(struct{}{}) },
	}
}

// derive splits one gateway message into the signaling and description
// streams, message first.
func (c *Channel) derive(plugin string, msg core.Message, jsep *webrtc.SessionDescription, tx string) {
	if msg.IsPlugin() {
		sig := Signal{Msg: msg, TxID: tx}
		if err := msg.Err(); err != nil {
			sig.Err = err
			log.Error().Str("module", "app.bridge").Str("plugin", plugin).Str("tx", tx).
				Str("error", msg.Str("error")).Str("code", msg.Str("error_code")).Msg("plugin error")
		}
		c.Messages.Publish(sig)
	}
	if jsep != nil && jsep.SDP != "" {
		c.Descriptions.Publish(*jsep)
	}
}
