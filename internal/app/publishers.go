package app

import (
	"context"
	"slices"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/dkeye/VideoRoom/internal/stream"
	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
)

// PublisherTracker follows publisher announcements on a videoroom channel.
type PublisherTracker struct {
	// Added carries every non-empty publisher list from "joined" or "event".
	Added *stream.Bus[[]domain.Publisher]
	// Removed carries the id of every publisher that left or unpublished.
	Removed *stream.Bus[domain.PublisherID]
	// Current concatenates every Added list seen so far.
	Current *stream.Value[[]domain.Publisher]
	// Events merges Added and Removed in message order.
	Events *stream.Bus[PublisherEvent]
}

// PublisherEvent is either an announcement or a removal.
type PublisherEvent struct {
	Added   []domain.Publisher
	Removed domain.PublisherID
}

// TrackPublishers follows messages until ctx is done. The subscription is
// taken before it returns.
func TrackPublishers(ctx context.Context, messages *stream.Bus[Signal]) *PublisherTracker {
	t := &PublisherTracker{
		Added:   stream.NewBus[[]domain.Publisher](),
		Removed: stream.NewBus[domain.PublisherID](),
		Current: stream.NewValue[[]domain.Publisher](nil),
		Events:  stream.NewBus[PublisherEvent](),
	}
	go stream.Each(ctx, messages.Subscribe(), t.observe)
	return t
}

func (t *PublisherTracker) observe(sig Signal) {
	if sig.Err != nil {
		return
	}
	msg := sig.Msg
	kind := msg.Kind()
	if kind != "joined" && kind != "event" {
		return
	}

	if pubs := decodePublishers(msg); len(pubs) > 0 {
		t.Current.Update(func(cur []domain.Publisher) []domain.Publisher {
			return append(slices.Clone(cur), pubs...)
		})
		t.Added.Publish(pubs)
		t.Events.Publish(PublisherEvent{Added: pubs})
	}
	if kind != "event" {
		return
	}
	for _, key := range []string{"leaving", "unpublished"} {
		if id := msg.Str(key); id != "" && id != domain.AckOK {
			t.Removed.Publish(domain.PublisherID(id))
			t.Events.Publish(PublisherEvent{Removed: domain.PublisherID(id)})
		}
	}
}

func decodePublishers(msg core.Message) []domain.Publisher {
	raw, ok := msg["publishers"]
	if !ok || raw == nil {
		return nil
	}
	var pubs []domain.Publisher
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &pubs,
	})
	if err == nil {
		err = dec.Decode(raw)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "app.publishers").Msg("undecodable publisher list")
		return nil
	}
	return pubs
}
