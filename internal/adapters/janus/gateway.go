// Package janus implements the gateway client over the Janus WebSocket API.
package janus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VideoRoom/internal/adapters/rtc"
	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultKeepalive = 30 * time.Second

type Options struct {
	Keepalive  time.Duration
	ICEServers []string
}

type Gateway struct {
	opts   Options
	dialer *websocket.Dialer
}

func NewGateway(opts Options) *Gateway {
	if opts.Keepalive <= 0 {
		opts.Keepalive = DefaultKeepalive
	}
	return &Gateway{
		opts: opts,
		dialer: &websocket.Dialer{
			Subprotocols:     []string{subprotocol},
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// OpenSession creates a session on the first server that accepts one.
func (g *Gateway) OpenSession(ctx context.Context, servers []string) (core.Session, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("%w: no servers configured", core.ErrConnection)
	}
	var errs []error
	for _, server := range servers {
		s, err := g.open(ctx, server)
		if err == nil {
			return s, nil
		}
		log.Warn().Err(err).Str("module", "janus.gateway").Str("server", server).Msg("server unavailable")
		errs = append(errs, fmt.Errorf("%s: %w", server, err))
	}
	return nil, fmt.Errorf("%w: %w", core.ErrConnection, errors.Join(errs...))
}

func (g *Gateway) open(ctx context.Context, server string) (*Session, error) {
	ws, _, err := g.dialer.DialContext(ctx, server, nil)
	if err != nil {
		return nil, err
	}
	s := &Session{gw: g, handles: make(map[uint64]*Handle)}
	s.conn = newConn(ws, server, s.dispatch)

	reply, err := s.conn.call(ctx, &frame{Janus: "create"})
	if err != nil {
		s.conn.close()
		return nil, err
	}
	if reply.Janus != "success" || reply.Data == nil {
		s.conn.close()
		return nil, replyError("create", reply)
	}
	s.id = reply.Data.ID

	kctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.keepalive(kctx, g.opts.Keepalive)
	return s, nil
}

func replyError(what string, f *frame) error {
	if f.Error != nil {
		return fmt.Errorf("%s: %d %s", what, f.Error.Code, f.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected reply %q", what, f.Janus)
}

type Session struct {
	gw   *Gateway
	id   uint64
	conn *conn
	stop context.CancelFunc

	mu      sync.RWMutex
	handles map[uint64]*Handle
}

func (s *Session) ID() uint64 { return s.id }

func (s *Session) Attach(ctx context.Context, plugin, opaqueID string, cb core.PluginCallbacks) (core.Handle, error) {
	reply, err := s.conn.call(ctx, &frame{Janus: "attach", SessionID: s.id, Plugin: plugin, OpaqueID: opaqueID})
	if err != nil {
		return nil, err
	}
	if reply.Janus != "success" || reply.Data == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrAttach, replyError("attach "+plugin, reply))
	}
	h := newHandle(s, reply.Data.ID, plugin, cb)

	s.mu.Lock()
	s.handles[h.id] = h
	s.mu.Unlock()
	return h, nil
}

func (s *Session) Destroy(ctx context.Context) error {
	s.stop()
	reply, err := s.conn.call(ctx, &frame{Janus: "destroy", SessionID: s.id})

	s.mu.Lock()
	handles := s.handles
	s.handles = make(map[uint64]*Handle)
	s.mu.Unlock()
	for _, h := range handles {
		h.Hangup()
	}
	s.conn.close()

	if err != nil {
		return err
	}
	if reply.Janus != "success" {
		return replyError("destroy", reply)
	}
	return nil
}

func (s *Session) keepalive(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.conn.closed:
			return
		case <-ticker.C:
			cctx, cancel := context.WithTimeout(ctx, every)
			_, err := s.conn.call(cctx, &frame{Janus: "keepalive", SessionID: s.id})
			cancel()
			if err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "janus.session").Uint64("session", s.id).Msg("keepalive failed")
			}
		}
	}
}

func (s *Session) dispatch(f *frame) {
	if f.Janus == "timeout" {
		log.Warn().Str("module", "janus.session").Uint64("session", s.id).Msg("session timed out")
		return
	}
	s.mu.RLock()
	h, ok := s.handles[f.Sender]
	s.mu.RUnlock()
	if !ok {
		log.Debug().Str("module", "janus.session").Str("janus", f.Janus).Uint64("sender", f.Sender).Msg("event for unknown handle")
		return
	}
	h.handleEvent(f)
}

func (s *Session) forget(id uint64) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

var _ core.Gateway = (*Gateway)(nil)

func (g *Gateway) iceConfig() webrtc.Configuration { return rtc.DefaultWebRTCConfig(g.opts.ICEServers) }
