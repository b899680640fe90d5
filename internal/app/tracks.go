package app

import (
	"context"
	"maps"
	"slices"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/dkeye/VideoRoom/internal/stream"
)

// LocalTracks follows the tracks a channel is sending.
type LocalTracks struct {
	Added   *stream.Bus[core.Track]
	Removed *stream.Bus[core.Track]
	Current *stream.Value[[]core.Track]
}

// TrackLocal starts from the tracks ch already sends and folds every local
// track event into it until ctx is done.
func TrackLocal(ctx context.Context, ch *Channel) *LocalTracks {
	t := &LocalTracks{
		Added:   stream.NewBus[core.Track](),
		Removed: stream.NewBus[core.Track](),
		Current: stream.NewValue(ch.LocalTracks()),
	}
	go stream.Each(ctx, ch.Callbacks.LocalTrack.Subscribe(), func(ev LocalTrackEvent) {
		t.Current.Update(func(cur []core.Track) []core.Track { return FoldLocal(cur, ev) })
		if ev.Added {
			t.Added.Publish(ev.Track)
		} else {
			t.Removed.Publish(ev.Track)
		}
	})
	return t
}

// FoldLocal appends added tracks and drops removed ones by id. cur is not
// modified.
func FoldLocal(cur []core.Track, ev LocalTrackEvent) []core.Track {
	if ev.Added {
		return append(slices.Clone(cur), ev.Track)
	}
	return slices.DeleteFunc(slices.Clone(cur), func(t core.Track) bool { return t.ID() == ev.Track.ID() })
}

// RemoteTracks follows received tracks by transceiver mid.
type RemoteTracks struct {
	Added   *stream.Bus[RemoteTrackEvent]
	Removed *stream.Bus[RemoteTrackEvent]
	Current *stream.Value[map[string]core.Track]
}

func TrackRemote(ctx context.Context, ch *Channel) *RemoteTracks {
	t := &RemoteTracks{
		Added:   stream.NewBus[RemoteTrackEvent](),
		Removed: stream.NewBus[RemoteTrackEvent](),
		Current: stream.NewValue(map[string]core.Track{}),
	}
	go stream.Each(ctx, ch.Callbacks.RemoteTrack.Subscribe(), func(ev RemoteTrackEvent) {
		t.Current.Update(func(cur map[string]core.Track) map[string]core.Track { return FoldRemote(cur, ev) })
		if ev.Added {
			t.Added.Publish(ev)
		} else {
			t.Removed.Publish(ev)
		}
	})
	return t
}

// FoldRemote sets or clears the track at ev.MID. A removal only clears the
// slot when it still holds the removed track. cur is not modified.
func FoldRemote(cur map[string]core.Track, ev RemoteTrackEvent) map[string]core.Track {
	next := maps.Clone(cur)
	if next == nil {
		next = map[string]core.Track{}
	}
	if ev.Added {
		next[ev.MID] = ev.Track
		return next
	}
	if t, ok := next[ev.MID]; ok && t.ID() == ev.Track.ID() {
		delete(next, ev.MID)
	}
	return next
}

// SortedByMID returns the tracks of m ordered by mid.
func SortedByMID(m map[string]core.Track) []core.Track {
	mids := slices.Sorted(maps.Keys(m))
	out := make([]core.Track, 0, len(mids))
	for _, mid := range mids {
		out = append(out, m[mid])
	}
	return out
}
