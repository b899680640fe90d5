package orch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/VideoRoom/internal/app"
	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/dkeye/VideoRoom/internal/stream"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

// Streaming watches mountpoints of the streaming plugin, one channel per
// mountpoint, on a single session.
type Streaming struct {
	servers        []string
	gateway        core.Gateway
	engine         app.EngineInit
	opaqueID       string
	requestTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	session   app.Memo[core.Session]
	destroyed app.Memo[struct{}]

	mu       sync.Mutex
	channels map[domain.MountpointID]*app.Channel
	feeds    map[domain.MountpointID]map[string]core.Track

	// FeedTracks holds the video tracks of every watched mountpoint, ordered
	// by "<mountpoint>-<mid>".
	FeedTracks *stream.Value[[]core.Track]
}

func NewStreaming(gw core.Gateway, engine app.EngineInit, servers []string, requestTimeout time.Duration) *Streaming {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Streaming{
		servers:        servers,
		gateway:        gw,
		engine:         engine,
		opaqueID:       "streaming-" + uuid.NewString(),
		requestTimeout: requestTimeout,
		ctx:            ctx,
		cancel:         cancel,
		channels:       make(map[domain.MountpointID]*app.Channel),
		feeds:          make(map[domain.MountpointID]map[string]core.Track),
		FeedTracks:     stream.NewValue[[]core.Track](nil),
	}
}

func (s *Streaming) getSession(ctx context.Context) (core.Session, error) {
	return s.session.Do(ctx, func(ctx context.Context) (core.Session, error) {
		return app.OpenSession(ctx, s.engine, s.gateway, s.servers)
	})
}

func (s *Streaming) request(ctx context.Context, ch *app.Channel, body core.Message, jsep *webrtc.SessionDescription) (core.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return app.Request(ctx, ch, body, jsep)
}

func (s *Streaming) attach(ctx context.Context) (*app.Channel, error) {
	sess, err := s.getSession(ctx)
	if err != nil {
		return nil, err
	}
	return app.Attach(ctx, sess, PluginStreaming, s.opaqueID)
}

// Watch attaches a channel for mountpoint and asks the plugin to stream it.
// Offers are answered and started as they arrive.
func (s *Streaming) Watch(ctx context.Context, mountpoint domain.MountpointID, pin string) error {
	if s.ctx.Err() != nil {
		return core.ErrClosed
	}
	// A nil entry reserves the mountpoint while its channel is attached.
	s.mu.Lock()
	if _, watching := s.channels[mountpoint]; watching {
		s.mu.Unlock()
		return fmt.Errorf("mountpoint %s already watched", mountpoint)
	}
	s.channels[mountpoint] = nil
	s.mu.Unlock()

	ch, err := s.attach(ctx)
	if err != nil {
		s.mu.Lock()
		delete(s.channels, mountpoint)
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.channels[mountpoint] = ch
	s.mu.Unlock()

	remote := app.TrackRemote(s.ctx, ch)
	descs := ch.Descriptions.Subscribe()
	added := remote.Added.Subscribe()
	_, changes := remote.Current.Subscribe()
	go stream.Each(s.ctx, descs, func(d webrtc.SessionDescription) { answerOffer(s.ctx, s.request, ch, d) })
	go stream.Each(s.ctx, added, func(ev app.RemoteTrackEvent) { selectLowestSubstream(s.ctx, s.request, ch, ev) })
	go stream.Each(s.ctx, changes, func(m map[string]core.Track) { s.setFeeds(mountpoint, m) })

	req := core.Message{"request": "watch", "id": domain.WireID(string(mountpoint))}
	if pin != "" {
		req["pin"] = pin
	}
	if _, err := s.request(ctx, ch, req, nil); err != nil {
		return fmt.Errorf("watch %s: %w", mountpoint, err)
	}
	log.Info().Str("module", "orch.streaming").Str("mountpoint", string(mountpoint)).Msg("watching")
	return nil
}

func (s *Streaming) setFeeds(mountpoint domain.MountpointID, tracks map[string]core.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[mountpoint] = tracks

	byKey := make(map[string]core.Track)
	for mp, m := range s.feeds {
		for mid, t := range m {
			if core.IsVideo(t) {
				byKey[string(mp)+"-"+mid] = t
			}
		}
	}
	out := make([]core.Track, 0, len(byKey))
	for _, key := range slices.Sorted(maps.Keys(byKey)) {
		out = append(out, byKey[key])
	}
	s.FeedTracks.Set(out)
}

// Destroy detaches every channel and closes the session, once.
func (s *Streaming) Destroy(ctx context.Context) error {
	_, err := s.destroyed.Do(ctx, func(ctx context.Context) (struct{}, error) {
		s.cancel()

		s.mu.Lock()
		var chans []*app.Channel
		for _, ch := range s.channels {
			if ch != nil {
				chans = append(chans, ch)
			}
		}
		s.mu.Unlock()

		p := pool.New().WithErrors()
		for _, ch := range chans {
			p.Go(func() error { return app.Detach(ctx, ch) })
		}
		detachErr := p.Wait()

		var closeErr error
		if sess, err, ok := s.session.Peek(); ok && err == nil {
			closeErr = app.CloseSession(ctx, sess)
		}
		if err := errors.Join(detachErr, closeErr); err != nil {
			log.Error().Err(err).Str("module", "orch.streaming").Msg("teardown incomplete")
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}
