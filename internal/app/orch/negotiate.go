package orch

import (
	"context"

	"github.com/dkeye/VideoRoom/internal/app"
	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type requestFunc func(ctx context.Context, ch *app.Channel, body core.Message, jsep *webrtc.SessionDescription) (core.Message, error)

// answerOffer answers a gateway offer on a receive-only channel and starts
// the media with a start request.
func answerOffer(ctx context.Context, request requestFunc, ch *app.Channel, d webrtc.SessionDescription) {
	if d.Type != webrtc.SDPTypeOffer {
		log.Warn().Str("module", "orch.negotiate").Uint64("handle", ch.ID()).Str("type", d.Type.String()).Msg("ignoring non-offer description")
		return
	}
	answer, err := ch.CreateAnswer(ctx, d)
	if err != nil {
		log.Error().Err(err).Str("module", "orch.negotiate").Uint64("handle", ch.ID()).Msg(core.ErrNegotiation.Error())
		return
	}
	if _, err := request(ctx, ch, core.Message{"request": "start"}, answer); err != nil {
		log.Error().Err(err).Str("module", "orch.negotiate").Uint64("handle", ch.ID()).Msg("start failed")
	}
}

// selectLowestSubstream asks for the lowest simulcast layer on a newly
// received media line.
func selectLowestSubstream(ctx context.Context, request requestFunc, ch *app.Channel, ev app.RemoteTrackEvent) {
	if !ev.Added {
		return
	}
	_, err := request(ctx, ch, core.Message{"request": "configure", "mid": ev.MID, "substream": lowestSubstream}, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "orch.negotiate").Str("mid", ev.MID).Msg("substream selection failed")
	}
}
