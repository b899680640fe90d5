package janus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSessionID = 99
	testHandleID  = 7
)

// fakeJanus speaks just enough of the Janus WebSocket API for the client.
type fakeJanus struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	ws       *websocket.Conn
	received []frame
}

func newFakeJanus(t *testing.T) *fakeJanus {
	t.Helper()
	j := &fakeJanus{t: t}
	up := websocket.Upgrader{Subprotocols: []string{subprotocol}}
	j.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		j.mu.Lock()
		j.ws = ws
		j.mu.Unlock()
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				return
			}
			j.mu.Lock()
			j.received = append(j.received, f)
			j.mu.Unlock()
			j.answer(f)
		}
	}))
	t.Cleanup(j.srv.Close)
	return j
}

func (j *fakeJanus) url() string { return "ws" + strings.TrimPrefix(j.srv.URL, "http") }

func (j *fakeJanus) push(f frame) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, err := json.Marshal(f)
	require.NoError(j.t, err)
	require.NoError(j.t, j.ws.WriteMessage(websocket.TextMessage, data))
}

func (j *fakeJanus) frames(kind string) []frame {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []frame
	for _, f := range j.received {
		if f.Janus == kind {
			out = append(out, f)
		}
	}
	return out
}

func (j *fakeJanus) answer(f frame) {
	tx := f.Transaction
	switch f.Janus {
	case "create":
		j.push(frame{Janus: "success", Transaction: tx, Data: &frameData{ID: testSessionID}})
	case "attach":
		if f.Plugin == "janus.plugin.nope" {
			j.push(frame{Janus: "error", Transaction: tx, Error: &frameError{Code: 460, Reason: "No such plugin"}})
			return
		}
		j.push(frame{Janus: "success", Transaction: tx, SessionID: testSessionID, Data: &frameData{ID: testHandleID}})
	case "message":
		switch f.Body.Str("request") {
		case "exists":
			j.push(frame{Janus: "success", Transaction: tx, Sender: testHandleID, PluginData: &pluginData{
				Plugin: "janus.plugin.videoroom",
				Data:   core.Message{"videoroom": "success", "exists": true},
			}})
		case "broken":
			j.push(frame{Janus: "error", Transaction: tx, Error: &frameError{Code: 454, Reason: "Invalid JSON"}})
		default:
			j.push(frame{Janus: "ack", Transaction: tx, SessionID: testSessionID})
			j.push(frame{Janus: "event", Transaction: tx, SessionID: testSessionID, Sender: testHandleID,
				PluginData: &pluginData{Plugin: "janus.plugin.videoroom", Data: core.Message{"videoroom": "event", "configured": "ok"}},
				Jsep:       &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
			})
		}
	case "keepalive":
		j.push(frame{Janus: "ack", Transaction: tx, SessionID: testSessionID})
	case "detach", "destroy":
		j.push(frame{Janus: "success", Transaction: tx, SessionID: testSessionID})
	}
}

type received struct {
	msg  core.Message
	jsep *webrtc.SessionDescription
	tx   string
}

func openTestSession(t *testing.T, j *fakeJanus) core.Session {
	t.Helper()
	gw := NewGateway(Options{Keepalive: 20 * time.Millisecond})
	s, err := gw.OpenSession(context.Background(), []string{j.url()})
	require.NoError(t, err)
	return s
}

func TestOpenSessionFallsBackToNextServer(t *testing.T) {
	j := newFakeJanus(t)
	gw := NewGateway(Options{})
	s, err := gw.OpenSession(context.Background(), []string{"ws://127.0.0.1:1", j.url()})
	require.NoError(t, err)
	assert.EqualValues(t, testSessionID, s.ID())
	require.NoError(t, s.Destroy(context.Background()))
}

func TestOpenSessionUnreachable(t *testing.T) {
	gw := NewGateway(Options{})
	_, err := gw.OpenSession(context.Background(), []string{"ws://127.0.0.1:1"})
	assert.ErrorIs(t, err, core.ErrConnection)

	_, err = gw.OpenSession(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrConnection)
}

func TestKeepalive(t *testing.T) {
	j := newFakeJanus(t)
	s := openTestSession(t, j)
	defer s.Destroy(context.Background())

	require.Eventually(t, func() bool { return len(j.frames("keepalive")) >= 2 }, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, testSessionID, j.frames("keepalive")[0].SessionID)
}

func TestAttachRejected(t *testing.T) {
	j := newFakeJanus(t)
	s := openTestSession(t, j)
	defer s.Destroy(context.Background())

	_, err := s.Attach(context.Background(), "janus.plugin.nope", "x", core.PluginCallbacks{})
	assert.ErrorIs(t, err, core.ErrAttach)
}

func TestHandleSend(t *testing.T) {
	j := newFakeJanus(t)
	s := openTestSession(t, j)
	defer s.Destroy(context.Background())

	msgs := make(chan received, 4)
	h, err := s.Attach(context.Background(), "janus.plugin.videoroom", "room-x", core.PluginCallbacks{
		OnMessage: func(msg core.Message, jsep *webrtc.SessionDescription, tx string) {
			msgs <- received{msg, jsep, tx}
		},
	})
	require.NoError(t, err)
	assert.EqualValues(t, testHandleID, h.ID())
	assert.Equal(t, "room-x", j.frames("attach")[0].OpaqueID)

	// Synchronous plugin answer.
	reply, tx, err := h.Send(context.Background(), core.Message{"request": "exists", "room": 1234}, nil)
	require.NoError(t, err)
	assert.Empty(t, tx)
	assert.Equal(t, true, reply["exists"])

	// Deferred answer: ack now, event later with the same transaction.
	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	reply, tx, err = h.Send(context.Background(), core.Message{"request": "configure", "audio": true}, offer)
	require.NoError(t, err)
	assert.Nil(t, reply)
	require.NotEmpty(t, tx)

	select {
	case r := <-msgs:
		assert.Equal(t, tx, r.tx)
		assert.Equal(t, "ok", r.msg.Str("configured"))
		require.NotNil(t, r.jsep)
		assert.Equal(t, webrtc.SDPTypeAnswer, r.jsep.Type)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	sent := j.frames("message")[1]
	assert.EqualValues(t, testSessionID, sent.SessionID)
	assert.EqualValues(t, testHandleID, sent.HandleID)
	assert.Equal(t, "configure", sent.Body.Str("request"))
	require.NotNil(t, sent.Jsep)
	assert.Equal(t, webrtc.SDPTypeOffer, sent.Jsep.Type)

	// Gateway-level error.
	_, _, err = h.Send(context.Background(), core.Message{"request": "broken"}, nil)
	var reqErr *core.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 454, reqErr.Code())
}

func TestHandleEvents(t *testing.T) {
	j := newFakeJanus(t)
	s := openTestSession(t, j)
	defer s.Destroy(context.Background())

	webrtcUp := make(chan bool, 2)
	media := make(chan string, 1)
	slow := make(chan int, 1)
	detached := make(chan struct{}, 1)
	_, err := s.Attach(context.Background(), "janus.plugin.videoroom", "room-x", core.PluginCallbacks{
		WebrtcState: func(up bool, _ string) { webrtcUp <- up },
		MediaState:  func(medium string, receiving bool, mid string) { media <- medium + "/" + mid },
		SlowLink:    func(_ bool, lost int, _ string) { slow <- lost },
		OnDetached:  func() { detached <- struct{}{} },
	})
	require.NoError(t, err)

	j.push(frame{Janus: "webrtcup", SessionID: testSessionID, Sender: testHandleID})
	j.push(frame{Janus: "media", SessionID: testSessionID, Sender: testHandleID, Type: "video", Receiving: true, Mid: "1"})
	j.push(frame{Janus: "slowlink", SessionID: testSessionID, Sender: testHandleID, Uplink: true, Lost: 12})
	j.push(frame{Janus: "hangup", SessionID: testSessionID, Sender: testHandleID, Reason: "DTLS alert"})
	j.push(frame{Janus: "detached", SessionID: testSessionID, Sender: testHandleID})

	select {
	case up := <-webrtcUp:
		assert.True(t, up)
	case <-time.After(time.Second):
		t.Fatal("no webrtcup")
	}
	assert.Equal(t, "video/1", <-media)
	assert.Equal(t, 12, <-slow)
	select {
	case up := <-webrtcUp:
		assert.False(t, up)
	case <-time.After(time.Second):
		t.Fatal("no hangup")
	}
	select {
	case <-detached:
	case <-time.After(time.Second):
		t.Fatal("no detached")
	}
}

func TestDetachAndDestroy(t *testing.T) {
	j := newFakeJanus(t)
	s := openTestSession(t, j)

	h, err := s.Attach(context.Background(), "janus.plugin.videoroom", "room-x", core.PluginCallbacks{})
	require.NoError(t, err)
	require.NoError(t, h.Detach(context.Background()))
	require.Len(t, j.frames("detach"), 1)
	assert.EqualValues(t, testHandleID, j.frames("detach")[0].HandleID)

	require.NoError(t, s.Destroy(context.Background()))
	require.Len(t, j.frames("destroy"), 1)

	_, _, err = h.Send(context.Background(), core.Message{"request": "leave"}, nil)
	assert.Error(t, err)
}
