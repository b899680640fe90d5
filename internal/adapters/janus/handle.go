package janus

import (
	"context"

	"github.com/dkeye/VideoRoom/internal/adapters/rtc"
	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Handle struct {
	*rtc.Connection

	session *Session
	id      uint64
	plugin  string
	cb      core.PluginCallbacks
}

func newHandle(s *Session, id uint64, plugin string, cb core.PluginCallbacks) *Handle {
	cb = cb.WithDefaults()
	media := rtc.NewConnection(s.gw.iceConfig(), id, cb)
	return &Handle{Connection: media, session: s, id: id, plugin: plugin, cb: cb}
}

func (h *Handle) ID() uint64     { return h.id }
func (h *Handle) Plugin() string { return h.plugin }

func (h *Handle) Send(ctx context.Context, body core.Message, jsep *webrtc.SessionDescription) (core.Message, string, error) {
	reply, err := h.session.conn.call(ctx, &frame{
		Janus:     "message",
		SessionID: h.session.id,
		HandleID:  h.id,
		Body:      body,
		Jsep:      jsep,
	})
	if err != nil {
		return nil, "", err
	}
	switch reply.Janus {
	case "ack":
		return nil, reply.Transaction, nil
	case "success":
		if reply.PluginData == nil {
			return core.Message{}, "", nil
		}
		return reply.PluginData.Data, "", nil
	case "error":
		if reply.Error != nil {
			return nil, "", &core.RequestError{Payload: reply.Error.payload()}
		}
	}
	return nil, "", &core.RequestError{Payload: body, Err: replyError("message", reply)}
}

func (h *Handle) Detach(ctx context.Context) error {
	defer h.session.forget(h.id)
	defer h.Connection.Hangup()
	reply, err := h.session.conn.call(ctx, &frame{Janus: "detach", SessionID: h.session.id, HandleID: h.id})
	if err != nil {
		return err
	}
	if reply.Janus != "success" {
		return replyError("detach", reply)
	}
	return nil
}

func (h *Handle) handleEvent(f *frame) {
	switch f.Janus {
	case "event":
		var msg core.Message
		if f.PluginData != nil {
			msg = f.PluginData.Data
		}
		h.cb.OnMessage(msg, f.Jsep, f.Transaction)
	case "webrtcup":
		h.cb.WebrtcState(true, "")
	case "hangup":
		h.cb.WebrtcState(false, f.Reason)
		h.Connection.Hangup()
	case "media":
		h.cb.MediaState(f.Type, f.Receiving, f.Mid)
	case "slowlink":
		h.cb.SlowLink(f.Uplink, f.Lost, f.Mid)
	case "detached":
		h.session.forget(h.id)
		h.cb.OnDetached()
	case "trickle":
		h.trickle(f.Candidate)
	default:
		log.Debug().Str("module", "janus.handle").Uint64("handle", h.id).Str("janus", f.Janus).Msg("unhandled event")
	}
}

func (h *Handle) trickle(c *candidate) {
	if c == nil || c.Completed || c.Candidate == "" {
		return
	}
	err := h.Connection.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "janus.handle").Uint64("handle", h.id).Msg("remote candidate rejected")
	}
}

var _ core.Handle = (*Handle)(nil)
