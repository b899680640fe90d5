package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VideoRoom/internal/app"
	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/dkeye/VideoRoom/internal/stream"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"
)

const (
	PluginVideoRoom = "janus.plugin.videoroom"
	PluginStreaming = "janus.plugin.streaming"

	DefaultRemovalDebounce = 200 * time.Millisecond
	DefaultRequestTimeout  = 10 * time.Second

	// lowestSubstream selects the "l" simulcast layer.
	lowestSubstream = 2
)

type Options struct {
	Servers         []string
	Room            domain.RoomID
	Display         string
	Pin             string
	RemovalDebounce time.Duration
	RequestTimeout  time.Duration
}

// Room is one participant's view of a videoroom: a publish channel, a
// subscribe channel and the publisher/track state derived from both.
type Room struct {
	opts     Options
	gateway  core.Gateway
	engine   app.EngineInit
	opaqueID string

	// rules live until Destroy.
	ctx    context.Context
	cancel context.CancelFunc

	session   app.Memo[core.Session]
	pubChan   app.Memo[*app.Channel]
	subChan   app.Memo[*app.Channel]
	initDone  app.Memo[struct{}]
	joinedPub app.Memo[domain.Participant]
	joinedSub app.Memo[struct{}]
	destroyed app.Memo[struct{}]

	mu         sync.RWMutex
	me         domain.Participant
	publishers *orderedmap.OrderedMap[domain.PublisherID, domain.Publisher]
	removals   *app.KeyedDebouncer[domain.PublisherID]
	// pending maps a publisher to the token of its armed removal.
	pending    map[domain.PublisherID]uint64
	removalSeq uint64
	sawFirst   bool

	// subscribeOps runs join, subscribe and unsubscribe on the subscribe
	// channel one at a time, in the order the publisher events decided them.
	subscribeOps *app.OpsQueue

	// Raw trackers, set once the channels exist.
	announced *app.PublisherTracker
	local     *app.LocalTracks
	remote    *app.RemoteTracks

	MyTracks        *stream.Value[[]core.Track]
	MyMic           *stream.Value[core.Track]
	MyCam           *stream.Value[core.Track]
	OthersTracks    *stream.Value[map[string]core.Track]
	OthersCams      *stream.Value[[]core.Track]
	OtherPublishers *stream.Value[[]domain.Publisher]
}

func NewRoom(gw core.Gateway, engine app.EngineInit, opts Options) *Room {
	if opts.RemovalDebounce <= 0 {
		opts.RemovalDebounce = DefaultRemovalDebounce
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		opts:     opts,
		gateway:  gw,
		engine:   engine,
		opaqueID: "room-" + uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,

		publishers: orderedmap.NewOrderedMap[domain.PublisherID, domain.Publisher](),
		removals:   app.NewKeyedDebouncer[domain.PublisherID](opts.RemovalDebounce),
		pending:    make(map[domain.PublisherID]uint64),

		subscribeOps: app.NewOpsQueue("orch.subscribe"),

		MyTracks:        stream.NewValue[[]core.Track](nil),
		MyMic:           stream.NewValue[core.Track](nil),
		MyCam:           stream.NewValue[core.Track](nil),
		OthersTracks:    stream.NewValue(map[string]core.Track{}),
		OthersCams:      stream.NewValue[[]core.Track](nil),
		OtherPublishers: stream.NewValue[[]domain.Publisher](nil),
	}
}

// Init opens the session and both channels and installs the standing rules.
// It runs once; later calls return the first outcome.
func (r *Room) Init(ctx context.Context) error {
	_, err := r.initDone.Do(ctx, func(ctx context.Context) (struct{}, error) {
		if r.ctx.Err() != nil {
			return struct{}{}, core.ErrClosed
		}
		var pub, sub *app.Channel
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			pub, err = r.publisherChannel(gctx)
			return err
		})
		g.Go(func() (err error) {
			sub, err = r.subscriberChannel(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return struct{}{}, err
		}
		r.installRules(pub, sub)
		log.Info().Str("module", "orch.room").Str("room", string(r.opts.Room)).Str("opaque_id", r.opaqueID).Msg("room initialized")
		return struct{}{}, nil
	})
	return err
}

func (r *Room) getSession(ctx context.Context) (core.Session, error) {
	return r.session.Do(ctx, func(ctx context.Context) (core.Session, error) {
		return app.OpenSession(ctx, r.engine, r.gateway, r.opts.Servers)
	})
}

func (r *Room) publisherChannel(ctx context.Context) (*app.Channel, error) {
	return r.pubChan.Do(ctx, func(ctx context.Context) (*app.Channel, error) {
		s, err := r.getSession(ctx)
		if err != nil {
			return nil, err
		}
		ch, err := app.Attach(ctx, s, PluginVideoRoom, r.opaqueID)
		if err != nil {
			return nil, err
		}
		r.announced = app.TrackPublishers(r.ctx, ch.Messages)
		r.local = app.TrackLocal(r.ctx, ch)
		return ch, nil
	})
}

func (r *Room) subscriberChannel(ctx context.Context) (*app.Channel, error) {
	return r.subChan.Do(ctx, func(ctx context.Context) (*app.Channel, error) {
		s, err := r.getSession(ctx)
		if err != nil {
			return nil, err
		}
		ch, err := app.Attach(ctx, s, PluginVideoRoom, r.opaqueID)
		if err != nil {
			return nil, err
		}
		r.remote = app.TrackRemote(r.ctx, ch)
		return ch, nil
	})
}

var errNotInitialized = errors.New("room not initialized")

// channels returns both channels once they are attached.
func (r *Room) channels() (pub, sub *app.Channel, err error) {
	if r.ctx.Err() != nil {
		return nil, nil, core.ErrClosed
	}
	pub, perr, pok := r.pubChan.Peek()
	sub, serr, sok := r.subChan.Peek()
	switch {
	case perr != nil:
		return nil, nil, perr
	case serr != nil:
		return nil, nil, serr
	case !pok || !sok:
		return nil, nil, errNotInitialized
	}
	return pub, sub, nil
}

// request sends body on ch bounded by the configured request timeout.
func (r *Room) request(ctx context.Context, ch *app.Channel, body core.Message, jsep *webrtc.SessionDescription) (core.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
	defer cancel()
	return app.Request(ctx, ch, body, jsep)
}

// Destroy detaches both channels and closes the session, once. Teardown
// failures are logged and returned; the session is closed regardless.
func (r *Room) Destroy(ctx context.Context) error {
	_, err := r.destroyed.Do(ctx, func(ctx context.Context) (struct{}, error) {
		r.cancel()
		r.removals.Stop()
		r.subscribeOps.Stop()

		p := pool.New().WithErrors()
		for _, m := range []*app.Memo[*app.Channel]{&r.pubChan, &r.subChan} {
			ch, err, ok := m.Peek()
			if !ok || err != nil {
				continue
			}
			p.Go(func() error { return app.Detach(ctx, ch) })
		}
		detachErr := p.Wait()

		var closeErr error
		if s, err, ok := r.session.Peek(); ok && err == nil {
			closeErr = app.CloseSession(ctx, s)
		}

		if err := errors.Join(detachErr, closeErr); err != nil {
			log.Error().Err(err).Str("module", "orch.room").Str("room", string(r.opts.Room)).Msg("teardown incomplete")
			if !errors.Is(err, core.ErrTeardown) {
				err = fmt.Errorf("%w: %w", core.ErrTeardown, err)
			}
			return struct{}{}, err
		}
		log.Info().Str("module", "orch.room").Str("room", string(r.opts.Room)).Msg("room destroyed")
		return struct{}{}, nil
	})
	return err
}

// Participant returns the local identity, empty before the publisher join.
func (r *Room) Participant() domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.me
}

func (r *Room) PublisherID() domain.PublisherID { return r.Participant().ID }

func (r *Room) PrivateID() string { return r.Participant().PrivateID }

func (r *Room) Publishers() []domain.Publisher { return r.OtherPublishers.Get() }

func (r *Room) LocalTracks() []core.Track { return r.MyTracks.Get() }

func (r *Room) RemoteTracks() map[string]core.Track { return r.OthersTracks.Get() }
