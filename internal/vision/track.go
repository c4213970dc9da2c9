package vision

import "time"

// LockedIdentity is an accepted identity match with its smoothed confidence.
type LockedIdentity struct {
	StudentID  string
	Confidence float64
}

// Track is a persistent identity placeholder for one physical face across
// frames. Tracks are owned by the Tracker's store and mutated only inside
// a single synchronous update pass per frame.
type Track struct {
	ID       int64
	BBox     Box
	LastSeen time.Time

	// Misses counts consecutive frames without a detection match; the
	// store retires a track once it exceeds the configured maximum.
	Misses int

	// Matched is true when the track was matched or created during the
	// current update cycle. Only matched tracks carry a fresh bbox.
	Matched bool

	// Embedding is the last extracted 512-D face embedding, set only by
	// the recognition stage. Never cleared on extraction failure.
	Embedding      []float32
	LastEmbedFrame int

	// Identity is present once the resolver has locked a match.
	Identity *LockedIdentity

	// UnknownLogged suppresses repeat unknown-face events for this track.
	UnknownLogged bool
}

// Locked reports whether the track currently holds an identity lock.
func (t *Track) Locked() bool { return t.Identity != nil }
