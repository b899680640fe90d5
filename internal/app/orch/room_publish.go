package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/VideoRoom/internal/app"
	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// JoinAsPublisher joins the room on the publish channel and records the
// identity handed out by the gateway. It runs once.
func (r *Room) JoinAsPublisher(ctx context.Context) (domain.Participant, error) {
	return r.joinedPub.Do(ctx, func(ctx context.Context) (domain.Participant, error) {
		pub, _, err := r.channels()
		if err != nil {
			return domain.Participant{}, err
		}
		req := core.Message{
			"request": "join",
			"room":    domain.WireID(string(r.opts.Room)),
			"ptype":   "publisher",
			"display": r.opts.Display,
		}
		if r.opts.Pin != "" {
			req["pin"] = r.opts.Pin
		}
		resp, err := r.request(ctx, pub, req, nil)
		if err != nil {
			return domain.Participant{}, fmt.Errorf("%w: room %s: %w", core.ErrJoin, r.opts.Room, err)
		}

		me := domain.Participant{
			ID:        domain.PublisherID(resp.Str("id")),
			PrivateID: resp.Str("private_id"),
			Display:   r.opts.Display,
		}
		r.mu.Lock()
		r.me = me
		r.mu.Unlock()
		log.Info().Str("module", "orch.room").Str("room", string(r.opts.Room)).Str("publisher", string(me.ID)).Msg("joined as publisher")
		return me, nil
	})
}

// PublishMe offers the local media on the publish channel. The gateway's
// answer is applied by the publish-channel description rule.
func (r *Room) PublishMe(ctx context.Context, camera, mic bool, tracks ...webrtc.TrackLocal) error {
	pub, _, err := r.channels()
	if err != nil {
		return err
	}
	offer, err := pub.CreateOffer(ctx, core.OfferOptions{
		Audio:     mic,
		Video:     camera,
		Tracks:    tracks,
		Encodings: domain.SimulcastPolicy,
	})
	if err != nil {
		return fmt.Errorf("%w: publish offer: %w", core.ErrNegotiation, err)
	}
	_, err = r.request(ctx, pub, core.Message{
		"request":    "configure",
		"audio":      mic,
		"video":      camera,
		"audiocodec": domain.AudioCodecOpus,
		"videocodec": domain.VideoCodecVP8,
	}, offer)
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch.room").Str("publisher", string(r.PublisherID())).
		Bool("camera", camera).Bool("mic", mic).Msg("published")
	return nil
}

func (r *Room) UnpublishMe(ctx context.Context) error {
	pub, _, err := r.channels()
	if err != nil {
		return err
	}
	_, err = r.request(ctx, pub, core.Message{"request": "unpublish"}, nil)
	return err
}

// Leave sends leave on both channels concurrently.
func (r *Room) Leave(ctx context.Context) error {
	pub, sub, err := r.channels()
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range []*app.Channel{pub, sub} {
		g.Go(func() error {
			_, err := r.request(gctx, ch, core.Message{"request": "leave"}, nil)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Str("module", "orch.room").Str("room", string(r.opts.Room)).Msg("left room")
	return nil
}
