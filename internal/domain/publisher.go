// Package domain contains entity without logic, just meta-data
package domain

import "strconv"

type PublisherID string

// AckOK is what the gateway puts into "leaving"/"unpublished" when it
// acknowledges the local participant's own request instead of announcing
// somebody else's departure.
const AckOK = "ok"

type StreamType string

const (
	StreamAudio StreamType = "audio"
	StreamVideo StreamType = "video"
	StreamData  StreamType = "data"
)

// Stream is one media line of a publisher as announced by the gateway.
type Stream struct {
	Type        StreamType `json:"type"`
	MIndex      int        `json:"mindex"`
	MID         string     `json:"mid"`
	Codec       string     `json:"codec,omitempty"`
	Disabled    bool       `json:"disabled,omitempty"`
	Description string     `json:"description,omitempty"`
}

type Publisher struct {
	ID      PublisherID `json:"id"`
	Display string      `json:"display"`
	Streams []Stream    `json:"streams"`
}

// WireID returns the form an id has to take on the wire: rooms configured
// with numeric ids expect numbers back, string_ids rooms expect strings.
func WireID(id string) any {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return n
	}
	return id
}
