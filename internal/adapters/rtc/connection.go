package rtc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errNoPeerConnection = errors.New("no peer connection")

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// Connection is the media side of one gateway handle. The peer connection
// is created on first negotiation and dropped on hangup.
type Connection struct {
	cfg    webrtc.Configuration
	handle uint64
	cb     core.PluginCallbacks

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	local   []webrtc.TrackLocal
	pending []webrtc.ICECandidateInit
}

func NewConnection(cfg webrtc.Configuration, handle uint64, cb core.PluginCallbacks) *Connection {
	return &Connection{cfg: cfg, handle: handle, cb: cb.WithDefaults()}
}

func (c *Connection) ensure() (*webrtc.PeerConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc != nil {
		return c.pc, nil
	}
	api, err := Engine()
	if err != nil {
		return nil, err
	}
	pc, err := api.NewPeerConnection(c.cfg)
	if err != nil {
		return nil, err
	}
	c.wire(pc)
	c.pc = pc
	return pc, nil
}

func (c *Connection) current() *webrtc.PeerConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc
}

func (c *Connection) wire(pc *webrtc.PeerConnection) {
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Uint64("handle", c.handle).Str("ice_state", s.String()).Msg("ICE state")
		c.cb.IceState(s)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Uint64("handle", c.handle).Str("peer_connection_state", s.String()).Msg("Peer state")
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		mid := midOf(pc, receiver)
		log.Info().
			Str("module", "rtc").
			Uint64("handle", c.handle).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("mid", mid).
			Msg("OnTrack received")
		c.cb.OnRemoteTrack(track, mid, true)
		go c.drain(track, mid)
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() { c.cb.OnDataOpen(dc.Label(), dc.Protocol()) })
		dc.OnMessage(func(msg webrtc.DataChannelMessage) { c.cb.OnData(msg.Data, dc.Label()) })
	})
}

func midOf(pc *webrtc.PeerConnection, receiver *webrtc.RTPReceiver) string {
	for _, t := range pc.GetTransceivers() {
		if t.Receiver() == receiver {
			return t.Mid()
		}
	}
	return ""
}

type trackStats struct {
	packets uint64
	bytes   uint64
	lastSeq uint16
}

func (s *trackStats) add(pkt *rtp.Packet) {
	s.packets++
	s.bytes += uint64(pkt.MarshalSize())
	s.lastSeq = pkt.SequenceNumber
}

// drain reads the remote track until it ends and then reports it removed.
func (c *Connection) drain(track *webrtc.TrackRemote, mid string) {
	var st trackStats
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			break
		}
		st.add(pkt)
	}
	log.Info().
		Str("module", "rtc").
		Uint64("handle", c.handle).
		Str("track_id", track.ID()).
		Str("mid", mid).
		Uint64("packets", st.packets).
		Uint64("bytes", st.bytes).
		Msg("remote track ended")
	c.cb.OnRemoteTrack(track, mid, false)
}

// CreateOffer adds the tracks to send and returns a complete offer. Tracks
// sharing an id are simulcast layers of one source.
func (c *Connection) CreateOffer(ctx context.Context, opts core.OfferOptions) (*webrtc.SessionDescription, error) {
	pc, err := c.ensure()
	if err != nil {
		return nil, err
	}
	tracks := opts.Tracks
	if len(tracks) == 0 {
		c.cb.ConsentDialog(true)
		tracks, err = captureTracks(opts)
		c.cb.ConsentDialog(false)
		if err != nil {
			return nil, err
		}
	}
	added, err := c.addTracks(pc, tracks)
	if err != nil {
		return nil, err
	}
	for _, t := range added {
		c.cb.OnLocalTrack(t, true)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	return gather(ctx, pc, offer)
}

// CreateAnswer applies a remote offer and returns a complete receive-only answer.
func (c *Connection) CreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	pc, err := c.ensure()
	if err != nil {
		return nil, err
	}
	if err := c.setRemote(pc, offer); err != nil {
		return nil, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	return gather(ctx, pc, answer)
}

func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	pc := c.current()
	if pc == nil {
		return errNoPeerConnection
	}
	return c.setRemote(pc, desc)
}

func (c *Connection) setRemote(pc *webrtc.PeerConnection, desc webrtc.SessionDescription) error {
	if err := pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, cand := range pending {
		if err := pc.AddICECandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Uint64("handle", c.handle).Msg("queued candidate rejected")
		}
	}
	return nil
}

// AddICECandidate applies a remote candidate, queueing it until a remote
// description is set.
func (c *Connection) AddICECandidate(cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	pc := c.pc
	if pc == nil || pc.RemoteDescription() == nil {
		c.pending = append(c.pending, cand)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return pc.AddICECandidate(cand)
}

func (c *Connection) LocalTracks() []core.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Track, 0, len(c.local))
	for _, t := range c.local {
		out = append(out, t)
	}
	return out
}

// Hangup closes the peer connection and reports the local tracks gone. The
// next negotiation starts a new peer connection.
func (c *Connection) Hangup() {
	c.mu.Lock()
	pc, local := c.pc, c.local
	c.pc, c.local, c.pending = nil, nil, nil
	c.mu.Unlock()
	if pc == nil {
		return
	}
	for _, t := range local {
		c.cb.OnLocalTrack(t, false)
	}
	if err := pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Uint64("handle", c.handle).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Uint64("handle", c.handle).Msg("closed")
	}
	c.cb.OnCleanup()
}

func (c *Connection) addTracks(pc *webrtc.PeerConnection, tracks []webrtc.TrackLocal) ([]webrtc.TrackLocal, error) {
	var added []webrtc.TrackLocal
	var order []string
	groups := map[string][]webrtc.TrackLocal{}
	for _, t := range tracks {
		if _, ok := groups[t.ID()]; !ok {
			order = append(order, t.ID())
		}
		groups[t.ID()] = append(groups[t.ID()], t)
	}
	for _, id := range order {
		layers := groups[id]
		tr, err := pc.AddTransceiverFromTrack(layers[0], webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		})
		if err != nil {
			return nil, fmt.Errorf("add track %s: %w", id, err)
		}
		for _, layer := range layers[1:] {
			if err := tr.Sender().AddEncoding(layer); err != nil {
				return nil, fmt.Errorf("add encoding %s/%s: %w", id, layer.RID(), err)
			}
		}
		go readRTCP(tr.Sender())
		added = append(added, layers[0])
	}
	c.mu.Lock()
	c.local = append(slices.Clone(c.local), added...)
	c.mu.Unlock()
	return added, nil
}

// readRTCP keeps the sender's interceptors fed until it stops.
func readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// captureTracks creates the tracks to send when the caller supplies none.
// Video gets one layer per encoding. Only the RID reaches pion: whatever
// writes to a layer track must keep to its MaxBitrate and
// ScaleResolutionDownBy.
func captureTracks(opts core.OfferOptions) ([]webrtc.TrackLocal, error) {
	var tracks []webrtc.TrackLocal
	if opts.Audio {
		t, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "local")
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if opts.Video {
		encodings := opts.Encodings
		if len(encodings) == 0 {
			encodings = []domain.Encoding{{}}
		}
		for _, enc := range encodings {
			var options []func(*webrtc.TrackLocalStaticRTP)
			if enc.RID != "" {
				options = append(options, webrtc.WithRTPStreamID(enc.RID))
			}
			t, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "local", options...)
			if err != nil {
				return nil, err
			}
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

func gather(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return pc.LocalDescription(), nil
}
