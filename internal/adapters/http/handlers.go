package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
)

// Room is the part of a joined room the API exposes.
type Room interface {
	Participant() domain.Participant
	Publishers() []domain.Publisher
	LocalTracks() []core.Track
	RemoteTracks() map[string]core.Track
	PublishMe(ctx context.Context, camera, mic bool, tracks ...webrtc.TrackLocal) error
	UnpublishMe(ctx context.Context) error
	Leave(ctx context.Context) error
}

type TrackView struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	MID  string `json:"mid,omitempty"`
}

type RoomResponse struct {
	Participant  domain.Participant `json:"participant"`
	Publishers   []domain.Publisher `json:"publishers"`
	LocalTracks  []TrackView        `json:"local_tracks"`
	RemoteTracks []TrackView        `json:"remote_tracks"`
}

type PublishRequest struct {
	Camera     bool `json:"camera"`
	Microphone bool `json:"microphone"`
}

type handlers struct {
	room Room
}

func (h *handlers) getRoom(c *gin.Context) {
	resp := RoomResponse{
		Participant:  h.room.Participant(),
		Publishers:   nonNil(h.room.Publishers()),
		LocalTracks:  []TrackView{},
		RemoteTracks: []TrackView{},
	}
	for _, t := range h.room.LocalTracks() {
		resp.LocalTracks = append(resp.LocalTracks, TrackView{ID: t.ID(), Kind: t.Kind().String()})
	}
	for mid, t := range h.room.RemoteTracks() {
		resp.RemoteTracks = append(resp.RemoteTracks, TrackView{ID: t.ID(), Kind: t.Kind().String(), MID: mid})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) getPublishers(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(h.room.Publishers()))
}

func (h *handlers) publish(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid publish request"})
		return
	}
	if !req.Camera && !req.Microphone {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to publish"})
		return
	}
	if err := h.room.PublishMe(c.Request.Context(), req.Camera, req.Microphone); err != nil {
		gatewayError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) unpublish(c *gin.Context) {
	if err := h.room.UnpublishMe(c.Request.Context()); err != nil {
		gatewayError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) leave(c *gin.Context) {
	if err := h.room.Leave(c.Request.Context()); err != nil {
		gatewayError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func gatewayError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var reqErr *core.RequestError
	if errors.As(err, &reqErr) && reqErr.Err == nil {
		body["gateway"] = reqErr.Payload
	}
	c.JSON(http.StatusBadGateway, body)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
