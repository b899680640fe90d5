package coretest

import (
	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/pion/webrtc/v4"
)

const (
	PublisherID = "1001"
	PrivateID   = "777"
)

// Offer is the description a subscriber join and a watch request answer with.
var Offer = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote offer"}

// VideoroomHandler answers like a cooperative videoroom and streaming plugin.
func VideoroomHandler(_ *Handle, body core.Message, jsep *webrtc.SessionDescription) Reply {
	switch body.Str("request") {
	case "join":
		if body.Str("ptype") == "subscriber" {
			return Reply{Async: core.Message{"videoroom": "attached", "room": body["room"]}, Jsep: Offer}
		}
		return Reply{Async: core.Message{
			"videoroom":  "joined",
			"room":       body["room"],
			"id":         float64(1001),
			"private_id": float64(777),
			"publishers": []any{},
		}}
	case "configure":
		if jsep != nil {
			return Reply{
				Async: core.Message{"videoroom": "event", "configured": "ok"},
				Jsep:  &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 remote answer"},
			}
		}
		return Reply{Async: core.Message{"videoroom": "event", "configured": "ok"}}
	case "start":
		return Reply{Async: core.Message{"videoroom": "event", "started": "ok"}}
	case "subscribe", "unsubscribe":
		return Reply{Async: core.Message{"videoroom": "updated"}}
	case "unpublish":
		return Reply{Async: core.Message{"videoroom": "event", "unpublished": "ok"}}
	case "leave":
		return Reply{Async: core.Message{"videoroom": "event", "leaving": "ok"}}
	case "watch":
		return Reply{Async: core.Message{"streaming": "event", "result": core.Message{"status": "preparing"}}, Jsep: Offer}
	default:
		return Reply{Sync: core.Message{"videoroom": "success"}}
	}
}
