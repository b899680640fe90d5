package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinAsSubscriber joins the subscribe channel with streams of pubs. It
// waits for the publisher join, whose private id it presents, and runs once.
func (r *Room) JoinAsSubscriber(ctx context.Context, pubs []domain.Publisher) error {
	_, err := r.joinedSub.Do(ctx, func(ctx context.Context) (struct{}, error) {
		me, err := r.JoinAsPublisher(ctx)
		if err != nil {
			return struct{}{}, err
		}
		_, sub, err := r.channels()
		if err != nil {
			return struct{}{}, err
		}
		req := core.Message{
			"request":    "join",
			"room":       domain.WireID(string(r.opts.Room)),
			"ptype":      "subscriber",
			"private_id": domain.WireID(me.PrivateID),
			"streams":    feedStreams(pubs),
		}
		if r.opts.Pin != "" {
			req["pin"] = r.opts.Pin
		}
		if _, err := r.request(ctx, sub, req, nil); err != nil {
			return struct{}{}, fmt.Errorf("%w: subscriber: %w", core.ErrJoin, err)
		}
		log.Info().Str("module", "orch.room").Str("room", string(r.opts.Room)).Int("publishers", len(pubs)).Msg("joined as subscriber")
		return struct{}{}, nil
	})
	return err
}

// SubscribeToPublishers adds every stream of pubs to the subscription.
func (r *Room) SubscribeToPublishers(ctx context.Context, pubs []domain.Publisher) error {
	_, sub, err := r.channels()
	if err != nil {
		return err
	}
	streams := feedStreams(pubs)
	if len(streams) == 0 {
		return nil
	}
	_, err = r.request(ctx, sub, core.Message{"request": "subscribe", "streams": streams}, nil)
	return err
}

// UnsubscribeFromPublisher drops every stream of the publisher.
func (r *Room) UnsubscribeFromPublisher(ctx context.Context, id domain.PublisherID) error {
	_, sub, err := r.channels()
	if err != nil {
		return err
	}
	_, err = r.request(ctx, sub, core.Message{
		"request": "unsubscribe",
		"streams": []core.Message{{"feed": domain.WireID(string(id))}},
	}, nil)
	return err
}

func feedStreams(pubs []domain.Publisher) []core.Message {
	streams := make([]core.Message, 0, len(pubs))
	for _, p := range pubs {
		for _, s := range p.Streams {
			streams = append(streams, core.Message{"feed": domain.WireID(string(p.ID)), "mid": s.MID})
		}
	}
	return streams
}
