package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/core/coretest"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attachWith(t *testing.T, handler coretest.Handler) (*Channel, *coretest.Handle) {
	t.Helper()
	gw := coretest.NewGateway()
	gw.Handler = handler
	s, err := gw.OpenSession(context.Background(), []string{"ws://test"})
	require.NoError(t, err)
	ch, err := Attach(context.Background(), s, "janus.plugin.videoroom", "room-test")
	require.NoError(t, err)
	return ch, ch.Handle.(*coretest.Handle)
}

func TestRequestSyncReply(t *testing.T) {
	ch, _ := attachWith(t, func(*coretest.Handle, core.Message, *webrtc.SessionDescription) coretest.Reply {
		return coretest.Reply{Sync: core.Message{"videoroom": "success", "exists": true}}
	})
	reply, err := Request(context.Background(), ch, core.Message{"request": "exists", "room": 1234}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, reply["exists"])
	assert.Equal(t, 0, ch.Messages.Subscribers())
}

func TestRequestSyncErrorReply(t *testing.T) {
	ch, _ := attachWith(t, func(*coretest.Handle, core.Message, *webrtc.SessionDescription) coretest.Reply {
		return coretest.Reply{Sync: core.Message{"videoroom": "event", "error_code": float64(428), "error": "No such feed"}}
	})
	_, err := Request(context.Background(), ch, core.Message{"request": "exists"}, nil)
	assert.ErrorIs(t, err, core.ErrRequest)
}

func TestRequestAsyncReplyBeforeSendReturns(t *testing.T) {
	// The fake delivers the deferred answer from inside Send.
	ch, _ := attachWith(t, coretest.VideoroomHandler)
	reply, err := Request(context.Background(), ch, core.Message{"request": "join", "ptype": "publisher", "room": 1234}, nil)
	require.NoError(t, err)
	assert.Equal(t, "joined", reply.Kind())
	assert.Equal(t, coretest.PublisherID, reply.Str("id"))
	assert.Equal(t, 0, ch.Messages.Subscribers())
}

func TestRequestAsyncErrorReply(t *testing.T) {
	ch, _ := attachWith(t, func(*coretest.Handle, core.Message, *webrtc.SessionDescription) coretest.Reply {
		return coretest.Reply{Async: core.Message{"videoroom": "event", "error_code": float64(426), "error": "No such room"}}
	})
	_, err := Request(context.Background(), ch, core.Message{"request": "join"}, nil)
	var reqErr *core.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "No such room", reqErr.Payload.Str("error"))
}

func TestRequestAckFailure(t *testing.T) {
	ch, _ := attachWith(t, func(*coretest.Handle, core.Message, *webrtc.SessionDescription) coretest.Reply {
		return coretest.Reply{Err: errors.New("socket closed")}
	})
	body := core.Message{"request": "leave"}
	_, err := Request(context.Background(), ch, body, nil)
	var reqErr *core.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, body, reqErr.Payload)
}

func TestRequestMatchesTransaction(t *testing.T) {
	// No answer from the handler: the reply is injected by the test.
	ch, h := attachWith(t, func(*coretest.Handle, core.Message, *webrtc.SessionDescription) coretest.Reply {
		return coretest.Reply{}
	})

	type result struct {
		msg core.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := Request(context.Background(), ch, core.Message{"request": "start"}, nil)
		done <- result{msg, err}
	}()

	require.Eventually(t, func() bool { return len(h.Requests()) == 1 && ch.Messages.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	h.Callbacks().OnMessage(core.Message{"videoroom": "event", "started": "other"}, nil, "tx-other")
	h.Callbacks().OnMessage(core.Message{"videoroom": "event", "started": "ok"}, nil, "tx-1-1")

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, "ok", r.msg.Str("started"))
	case <-time.After(time.Second):
		t.Fatal("request never resolved")
	}
}

func TestRequestContextTimeout(t *testing.T) {
	ch, _ := attachWith(t, func(*coretest.Handle, core.Message, *webrtc.SessionDescription) coretest.Reply {
		return coretest.Reply{}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Request(ctx, ch, core.Message{"request": "start"}, nil)
	assert.ErrorIs(t, err, core.ErrRequest)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
