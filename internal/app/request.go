package app

import (
	"context"
	"errors"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errNoTransaction = errors.New("no reply and no transaction id")

// Request sends body on ch and returns the plugin's answer. Synchronous
// replies resolve immediately; deferred ones resolve with the first message
// carrying the same transaction id. Error payloads fail with a
// *core.RequestError.
func Request(ctx context.Context, ch *Channel, body core.Message, jsep *webrtc.SessionDescription) (core.Message, error) {
	// Subscribe before sending: the deferred answer may arrive before Send returns.
	sub := ch.Messages.Subscribe()
	defer sub.Close()

	reply, tx, err := ch.Send(ctx, body, jsep)
	if err != nil {
		var reqErr *core.RequestError
		if errors.As(err, &reqErr) {
			return nil, err
		}
		return nil, &core.RequestError{Payload: body, Err: err}
	}
	if reply != nil {
		if err := reply.Err(); err != nil {
			return nil, err
		}
		return reply, nil
	}
	if tx == "" {
		return nil, &core.RequestError{Payload: body, Err: errNoTransaction}
	}

	log.Debug().Str("module", "app.request").Str("request", body.Str("request")).Str("tx", tx).Msg("awaiting deferred reply")
	for {
		select {
		case <-ctx.Done():
			return nil, &core.RequestError{Payload: body, Err: ctx.Err()}
		case sig, ok := <-sub.C():
			if !ok {
				return nil, &core.RequestError{Payload: body, Err: core.ErrClosed}
			}
			if sig.TxID != tx {
				continue
			}
			if sig.Err != nil {
				return nil, sig.Err
			}
			return sig.Msg, nil
		}
	}
}
