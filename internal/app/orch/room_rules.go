package orch

import (
	"github.com/dkeye/VideoRoom/internal/app"
	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/domain"
	"github.com/dkeye/VideoRoom/internal/stream"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// installRules subscribes every standing rule before returning, so no event
// published after Init is missed. Each rule runs on its own goroutine until
// Destroy and survives its own failures.
//
// Publisher announcements and removals share one consumer, which only does
// bookkeeping and never waits on the gateway. The requests it decides on run
// on subscribeOps in the same order.
func (r *Room) installRules(pub, sub *app.Channel) {
	publisherEvents := r.announced.Events.Subscribe()
	pubDescs := pub.Descriptions.Subscribe()
	subDescs := sub.Descriptions.Subscribe()
	remoteAdded := r.remote.Added.Subscribe()
	local, localChanges := r.local.Current.Subscribe()
	remote, remoteChanges := r.remote.Current.Subscribe()

	r.applyLocal(local)
	r.applyRemote(remote)

	r.subscribeOps.Start()
	go stream.Each(r.ctx, publisherEvents, r.onPublisherEvent)
	go stream.Each(r.ctx, pubDescs, func(d webrtc.SessionDescription) { r.onPublisherDescription(pub, d) })
	go stream.Each(r.ctx, subDescs, func(d webrtc.SessionDescription) { r.onSubscriberDescription(sub, d) })
	go stream.Each(r.ctx, remoteAdded, func(ev app.RemoteTrackEvent) { r.onRemoteTrack(sub, ev) })
	go stream.Each(r.ctx, localChanges, r.applyLocal)
	go stream.Each(r.ctx, remoteChanges, r.applyRemote)
}

func (r *Room) onPublisherEvent(ev app.PublisherEvent) {
	if len(ev.Added) > 0 {
		r.onAnnouncement(ev.Added)
	}
	if ev.Removed != "" {
		r.onRemoval(ev.Removed)
	}
}

// onAnnouncement records pubs and queues the joins for the first
// announcement, a subscribe for every later one.
func (r *Room) onAnnouncement(pubs []domain.Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pubs = r.rememberPublishers(pubs)
	if !r.sawFirst {
		r.sawFirst = true
		r.subscribeOps.Enqueue(func() { r.joinBoth(pubs) })
		return
	}
	r.subscribeOps.Enqueue(func() { r.subscribeMore(pubs) })
}

func (r *Room) joinBoth(pubs []domain.Publisher) {
	if _, err := r.JoinAsPublisher(r.ctx); err != nil {
		log.Error().Err(err).Str("module", "orch.rules").Msg("publisher join failed")
		return
	}
	if err := r.JoinAsSubscriber(r.ctx, pubs); err != nil {
		log.Error().Err(err).Str("module", "orch.rules").Msg("subscriber join failed")
	}
}

func (r *Room) subscribeMore(pubs []domain.Publisher) {
	if err := r.JoinAsSubscriber(r.ctx, nil); err != nil {
		log.Error().Err(err).Str("module", "orch.rules").Msg("subscriber join failed")
		return
	}
	if err := r.SubscribeToPublishers(r.ctx, pubs); err != nil {
		log.Error().Err(err).Str("module", "orch.rules").Int("publishers", len(pubs)).Msg("subscribe failed")
	}
}

// rememberPublishers records pubs in the publisher set, replacing by id, and
// disarms their pending removals. It returns pubs without the local one.
// r.mu must be held.
func (r *Room) rememberPublishers(pubs []domain.Publisher) []domain.Publisher {
	others := make([]domain.Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p.ID == r.me.ID {
			continue
		}
		if _, ok := r.pending[p.ID]; ok {
			delete(r.pending, p.ID)
			r.removals.Cancel(p.ID)
			log.Debug().Str("module", "orch.rules").Str("publisher", string(p.ID)).Msg("removal cancelled by re-announcement")
		}
		r.publishers.Set(p.ID, p)
		others = append(others, p)
	}
	r.OtherPublishers.Set(r.publisherList())
	return others
}

// publisherList must be called with r.mu held.
func (r *Room) publisherList() []domain.Publisher {
	out := make([]domain.Publisher, 0, r.publishers.Len())
	for el := r.publishers.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

// onRemoval arms the removal of id. A later removal of the same id re-arms
// it; an announcement of id disarms it.
func (r *Room) onRemoval(id domain.PublisherID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.me.ID {
		return
	}
	r.removalSeq++
	token := r.removalSeq
	r.pending[id] = token
	r.removals.Trigger(id, func() { r.expireRemoval(id, token) })
}

// expireRemoval runs when the debounce of id elapses. It does nothing unless
// token is still the armed removal of id.
func (r *Room) expireRemoval(id domain.PublisherID, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[id] != token {
		return
	}
	delete(r.pending, id)
	if r.publishers.Delete(id) {
		r.OtherPublishers.Set(r.publisherList())
	}
	r.subscribeOps.Enqueue(func() { r.onPublisherGone(id) })
}

func (r *Room) onPublisherGone(id domain.PublisherID) {
	if _, err, ok := r.joinedSub.Peek(); !ok || err != nil {
		return
	}
	if err := r.UnsubscribeFromPublisher(r.ctx, id); err != nil {
		log.Error().Err(err).Str("module", "orch.rules").Str("publisher", string(id)).Msg("unsubscribe failed")
		return
	}
	log.Info().Str("module", "orch.rules").Str("publisher", string(id)).Msg("publisher gone")
}

func (r *Room) onPublisherDescription(pub *app.Channel, d webrtc.SessionDescription) {
	if err := pub.SetRemoteDescription(d); err != nil {
		log.Error().Err(err).Str("module", "orch.rules").Str("type", d.Type.String()).Msg("publisher remote description rejected")
	}
}

func (r *Room) onSubscriberDescription(sub *app.Channel, d webrtc.SessionDescription) {
	answerOffer(r.ctx, r.request, sub, d)
}

func (r *Room) onRemoteTrack(sub *app.Channel, ev app.RemoteTrackEvent) {
	selectLowestSubstream(r.ctx, r.request, sub, ev)
}

func (r *Room) applyLocal(tracks []core.Track) {
	r.MyTracks.Set(tracks)
	r.MyMic.Set(firstOf(tracks, core.IsAudio))
	r.MyCam.Set(firstOf(tracks, core.IsVideo))
}

func (r *Room) applyRemote(tracks map[string]core.Track) {
	r.OthersTracks.Set(tracks)
	r.OthersCams.Set(videoOnly(app.SortedByMID(tracks)))
}

func firstOf(tracks []core.Track, match func(core.Track) bool) core.Track {
	for _, t := range tracks {
		if match(t) {
			return t
		}
	}
	return nil
}

func videoOnly(tracks []core.Track) []core.Track {
	out := make([]core.Track, 0, len(tracks))
	for _, t := range tracks {
		if core.IsVideo(t) {
			out = append(out, t)
		}
	}
	return out
}
