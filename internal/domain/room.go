package domain

type (
	RoomID       string
	MountpointID string
)

const (
	AudioCodecOpus = "opus"
	VideoCodecVP8  = "vp8"
)

// Encoding is one simulcast layer of the published video.
type Encoding struct {
	RID                   string  `json:"rid"`
	MaxBitrate            uint64  `json:"max_bitrate"`
	ScaleResolutionDownBy float64 `json:"scale_resolution_down_by,omitempty"`
}

// SimulcastPolicy is the fixed high/medium/low layer set used when publishing.
var SimulcastPolicy = []Encoding{
	{RID: "h", MaxBitrate: 1_000_000},
	{RID: "m", MaxBitrate: 300_000, ScaleResolutionDownBy: 2},
	{RID: "l", MaxBitrate: 100_000, ScaleResolutionDownBy: 4},
}
