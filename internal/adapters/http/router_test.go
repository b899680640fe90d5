package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dkeye/VideoRoom/internal/config"
	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/core/coretest"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoom struct {
	published  []bool
	publishErr error
	left       bool
}

func (f *fakeRoom) Participant() domain.Participant {
	return domain.Participant{ID: "1001", PrivateID: "777", Display: "alice"}
}

func (f *fakeRoom) Publishers() []domain.Publisher {
	return []domain.Publisher{{ID: "p1", Display: "bob", Streams: []domain.Stream{{Type: domain.StreamVideo, MID: "0"}}}}
}

func (f *fakeRoom) LocalTracks() []core.Track {
	return []core.Track{coretest.NewTrack("mic", webrtc.RTPCodecTypeAudio)}
}

func (f *fakeRoom) RemoteTracks() map[string]core.Track {
	return map[string]core.Track{"0": coretest.NewTrack("v1", webrtc.RTPCodecTypeVideo)}
}

func (f *fakeRoom) PublishMe(_ context.Context, camera, mic bool, _ ...webrtc.TrackLocal) error {
	f.published = []bool{camera, mic}
	return f.publishErr
}

func (f *fakeRoom) UnpublishMe(context.Context) error { return nil }

func (f *fakeRoom) Leave(context.Context) error {
	f.left = true
	return nil
}

func newTestRouter(room Room) http.Handler {
	return SetupRouter(&config.Config{Room: "1234", HTTP: config.HTTPConfig{Mode: "release"}}, room)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetRoom(t *testing.T) {
	w := do(newTestRouter(&fakeRoom{}), http.MethodGet, "/api/room", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp RoomResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.PublisherID("1001"), resp.Participant.ID)
	require.Len(t, resp.Publishers, 1)
	assert.Equal(t, "bob", resp.Publishers[0].Display)
	assert.Equal(t, []TrackView{{ID: "mic", Kind: "audio"}}, resp.LocalTracks)
	assert.Equal(t, []TrackView{{ID: "v1", Kind: "video", MID: "0"}}, resp.RemoteTracks)
}

func TestPublish(t *testing.T) {
	room := &fakeRoom{}
	h := newTestRouter(room)

	w := do(h, http.MethodPost, "/api/publish", `{"camera":true,"microphone":false}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []bool{true, false}, room.published)

	w = do(h, http.MethodPost, "/api/publish", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishGatewayError(t *testing.T) {
	room := &fakeRoom{publishErr: &core.RequestError{Payload: core.Message{"error_code": float64(432), "error": "Maximum number of publishers reached"}}}
	w := do(newTestRouter(room), http.MethodPost, "/api/publish", `{"camera":true}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Maximum number of publishers reached")
}

func TestLeave(t *testing.T) {
	room := &fakeRoom{}
	w := do(newTestRouter(room), http.MethodPost, "/api/leave", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, room.left)
}
