// Package coretest provides an in-memory gateway for tests. Handles answer
// requests through a Handler and let tests inject gateway and media events.
package coretest

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/pion/webrtc/v4"
)

// Reply is how a fake handle answers one request.
type Reply struct {
	// Sync, when set, is returned directly from Send.
	Sync core.Message
	// Async is delivered through OnMessage with the request's transaction.
	// It is delivered before Send returns.
	Async core.Message
	Jsep  *webrtc.SessionDescription
	// Err fails the send itself.
	Err error
}

type Handler func(h *Handle, body core.Message, jsep *webrtc.SessionDescription) Reply

type Gateway struct {
	mu       sync.Mutex
	sessions []*Session

	OpenErr   error
	AttachErr error
	// Handler answers requests on every handle. Defaults to VideoroomHandler.
	Handler Handler
	Opened  atomic.Int32
}

func NewGateway() *Gateway {
	return &Gateway{Handler: VideoroomHandler}
}

func (g *Gateway) OpenSession(_ context.Context, servers []string) (core.Session, error) {
	if g.OpenErr != nil {
		return nil, g.OpenErr
	}
	if len(servers) == 0 {
		return nil, core.ErrConnection
	}
	g.Opened.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	s := &Session{gw: g, id: uint64(len(g.sessions) + 1)}
	g.sessions = append(g.sessions, s)
	return s, nil
}

func (g *Gateway) Sessions() []*Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.sessions)
}

type Session struct {
	gw *Gateway
	id uint64

	mu      sync.Mutex
	handles []*Handle

	DestroyErr error
	Destroyed  atomic.Int32
}

func (s *Session) ID() uint64 { return s.id }

func (s *Session) Attach(_ context.Context, plugin, opaqueID string, cb core.PluginCallbacks) (core.Handle, error) {
	if s.gw.AttachErr != nil {
		return nil, s.gw.AttachErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &Handle{
		session:  s,
		id:       uint64(len(s.handles) + 1),
		plugin:   plugin,
		OpaqueID: opaqueID,
		cb:       cb.WithDefaults(),
	}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *Session) Destroy(context.Context) error {
	s.Destroyed.Add(1)
	return s.DestroyErr
}

func (s *Session) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.handles)
}

type Request struct {
	Body core.Message
	Jsep *webrtc.SessionDescription
}

type Handle struct {
	session  *Session
	id       uint64
	plugin   string
	OpaqueID string
	cb       core.PluginCallbacks

	mu       sync.Mutex
	requests []Request
	tx       int
	offers   []core.OfferOptions
	answered []webrtc.SessionDescription
	remote   []webrtc.SessionDescription
	local    []core.Track

	DetachErr error
	Detached  atomic.Int32
	OfferErr  error
}

func (h *Handle) ID() uint64     { return h.id }
func (h *Handle) Plugin() string { return h.plugin }

func (h *Handle) Send(_ context.Context, body core.Message, jsep *webrtc.SessionDescription) (core.Message, string, error) {
	h.mu.Lock()
	h.requests = append(h.requests, Request{Body: body, Jsep: jsep})
	h.tx++
	tx := "tx-" + strconv.FormatUint(h.id, 10) + "-" + strconv.Itoa(h.tx)
	h.mu.Unlock()

	handler := h.session.gw.Handler
	if handler == nil {
		handler = VideoroomHandler
	}
	r := handler(h, body, jsep)
	switch {
	case r.Err != nil:
		return nil, "", r.Err
	case r.Sync != nil:
		return r.Sync, "", nil
	case r.Async != nil:
		h.cb.OnMessage(r.Async, r.Jsep, tx)
		return nil, tx, nil
	default:
		return nil, tx, nil
	}
}

func (h *Handle) Detach(context.Context) error {
	h.Detached.Add(1)
	return h.DetachErr
}

func (h *Handle) CreateOffer(_ context.Context, opts core.OfferOptions) (*webrtc.SessionDescription, error) {
	if h.OfferErr != nil {
		return nil, h.OfferErr
	}
	h.mu.Lock()
	h.offers = append(h.offers, opts)
	h.mu.Unlock()
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (h *Handle) CreateAnswer(_ context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, errors.New("not an offer")
	}
	h.mu.Lock()
	h.answered = append(h.answered, offer)
	h.mu.Unlock()
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (h *Handle) SetRemoteDescription(desc webrtc.SessionDescription) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remote = append(h.remote, desc)
	return nil
}

func (h *Handle) LocalTracks() []core.Track {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.local)
}

// SetLocalTracks sets what LocalTracks reports, without emitting events.
func (h *Handle) SetLocalTracks(tracks ...core.Track) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.local = tracks
}

// Requests returns every body sent so far.
func (h *Handle) Requests() []Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.requests)
}

// RequestsOf returns the bodies whose "request" field equals name.
func (h *Handle) RequestsOf(name string) []Request {
	var out []Request
	for _, r := range h.Requests() {
		if r.Body.Str("request") == name {
			out = append(out, r)
		}
	}
	return out
}

func (h *Handle) Offers() []core.OfferOptions {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.offers)
}

func (h *Handle) Answered() []webrtc.SessionDescription {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.answered)
}

func (h *Handle) RemoteDescriptions() []webrtc.SessionDescription {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.remote)
}

// Callbacks exposes the callbacks the handle was attached with, for
// injecting events.
func (h *Handle) Callbacks() core.PluginCallbacks { return h.cb }

// Emit injects an unsolicited plugin event.
func (h *Handle) Emit(msg core.Message, jsep *webrtc.SessionDescription) {
	h.cb.OnMessage(msg, jsep, "")
}

func (h *Handle) EmitRemoteTrack(t core.Track, mid string, added bool) {
	h.cb.OnRemoteTrack(t, mid, added)
}

func (h *Handle) EmitLocalTrack(t core.Track, added bool) {
	h.cb.OnLocalTrack(t, added)
}

// Track is a minimal core.Track.
type Track struct {
	TrackID   string
	TrackKind webrtc.RTPCodecType
}

func NewTrack(id string, kind webrtc.RTPCodecType) *Track {
	return &Track{TrackID: id, TrackKind: kind}
}

func (t *Track) ID() string                { return t.TrackID }
func (t *Track) Kind() webrtc.RTPCodecType { return t.TrackKind }
