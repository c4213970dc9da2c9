package vision

import "time"

// Tracker owns the track store for one processing context and runs the
// per-frame association cycle. It is not safe for concurrent use; the
// pipeline guarantees at most one Update per instance at a time.
type Tracker struct {
	tracks    []*Track
	nextID    int64
	maxMisses int
	minIoU    float32
}

// NewTracker creates a tracker. maxMisses bounds how many consecutive
// unmatched frames a track survives; minIoU gates association.
func NewTracker(maxMisses int, minIoU float32) *Tracker {
	return &Tracker{
		maxMisses: maxMisses,
		minIoU:    minIoU,
	}
}

// Update runs one association cycle: matched tracks get the detection's
// bbox and a refreshed last-seen time, unclaimed detections spawn new
// tracks, and tracks unmatched for more than maxMisses frames are retired.
// It returns the tracks that were matched or created this frame; coasting
// tracks stay in the store for re-association but carry a stale bbox.
//
// Track IDs are allocated from a monotonic counter and never reused.
func (t *Tracker) Update(detections []Box, now time.Time) []*Track {
	for _, tr := range t.tracks {
		tr.Matched = false
		tr.Misses++
	}

	claimed := make([]bool, len(detections))
	for _, pair := range Associate(t.tracks, detections, t.minIoU) {
		tr := t.tracks[pair.Track]
		tr.BBox = detections[pair.Detection]
		tr.LastSeen = now
		tr.Misses = 0
		tr.Matched = true
		claimed[pair.Detection] = true
	}

	for i, det := range detections {
		if claimed[i] {
			continue
		}
		t.tracks = append(t.tracks, &Track{
			ID:       t.nextID,
			BBox:     det,
			LastSeen: now,
			Matched:  true,
		})
		t.nextID++
	}

	live := t.tracks[:0]
	for _, tr := range t.tracks {
		if tr.Misses <= t.maxMisses {
			live = append(live, tr)
		}
	}
	// Zero the tail so retired tracks are collectable.
	for i := len(live); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = live

	active := make([]*Track, 0, len(detections))
	for _, tr := range t.tracks {
		if tr.Matched {
			active = append(active, tr)
		}
	}
	return active
}

// Tracks returns the full live store, including coasting tracks.
func (t *Tracker) Tracks() []*Track { return t.tracks }

// Count returns the number of live tracks.
func (t *Tracker) Count() int { return len(t.tracks) }

// Reset replaces the store with an empty one. The ID counter is not reset,
// so identifiers stay unique across the tracker's lifetime.
func (t *Tracker) Reset() {
	t.tracks = nil
}
