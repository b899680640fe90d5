package janus

import (
	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/pion/webrtc/v4"
)

// frame is one message of the Janus WebSocket API, in either direction.
type frame struct {
	Janus       string `json:"janus"`
	Transaction string `json:"transaction,omitempty"`
	SessionID   uint64 `json:"session_id,omitempty"`
	HandleID    uint64 `json:"handle_id,omitempty"`
	Sender      uint64 `json:"sender,omitempty"`

	Plugin   string                     `json:"plugin,omitempty"`
	OpaqueID string                     `json:"opaque_id,omitempty"`
	Body     core.Message               `json:"body,omitempty"`
	Jsep     *webrtc.SessionDescription `json:"jsep,omitempty"`

	Candidate *candidate `json:"candidate,omitempty"`

	Data       *frameData  `json:"data,omitempty"`
	PluginData *pluginData `json:"plugindata,omitempty"`
	Error      *frameError `json:"error,omitempty"`

	// hangup, media and slowlink events.
	Reason    string `json:"reason,omitempty"`
	Type      string `json:"type,omitempty"`
	Receiving bool   `json:"receiving,omitempty"`
	Mid       string `json:"mid,omitempty"`
	Uplink    bool   `json:"uplink,omitempty"`
	Lost      int    `json:"lost,omitempty"`
}

type frameData struct {
	ID uint64 `json:"id"`
}

type pluginData struct {
	Plugin string       `json:"plugin"`
	Data   core.Message `json:"data"`
}

type frameError struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type candidate struct {
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	Completed     bool    `json:"completed,omitempty"`
}

func (e *frameError) payload() core.Message {
	return core.Message{"error_code": float64(e.Code), "error": e.Reason}
}
