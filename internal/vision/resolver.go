package vision

import (
	"context"
	"image"
	"log/slog"

	"github.com/your-org/facepass/internal/observability"
)

// Match is a nearest-neighbour search hit. Distance is cosine distance:
// 0 = identical, larger = less similar.
type Match struct {
	StudentID string
	Distance  float32
}

// Searcher finds the closest enrolled identity for an embedding.
// A nil match (with nil error) means no identities are stored.
type Searcher interface {
	Search(ctx context.Context, embedding []float32) (*Match, error)
}

// FaceEmbedder extracts a fixed-length embedding from a face crop.
// A nil vector (with nil error) means no face was found in the crop.
type FaceEmbedder interface {
	Embed(crop image.Image) ([]float32, error)
}

// Outcome of an attendance notification.
type Outcome int

const (
	// OutcomeError is the zero value: an unset outcome is treated as a
	// transient failure and retried, never silently settled.
	OutcomeError Outcome = iota
	OutcomeAccepted
	OutcomeAlreadyRecorded
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeAlreadyRecorded:
		return "already-recorded"
	case OutcomeRejected:
		return "rejected"
	default:
		return "error"
	}
}

// Notifier delivers the one-time attendance side effect. Implementations
// apply their own timeout and report timeouts as OutcomeError so the
// resolver retries on a later frame.
type Notifier interface {
	Notify(ctx context.Context, studentID string) Outcome
}

// ResolverConfig holds the identity resolution tunables.
type ResolverConfig struct {
	// SimThreshold is the cosine-distance ceiling for a positive match.
	SimThreshold float64
	// EmbedInterval is the number of frames between re-embeddings.
	EmbedInterval int
	// HistoryWindow bounds the confidence smoothing window.
	HistoryWindow int
}

// Resolution is the resolver's per-track, per-frame outcome.
type Resolution struct {
	StudentID  string
	Confidence float64
	Recognized bool

	// FirstUnknown is set the one frame the unknown-face event fires.
	FirstUnknown bool
	// Unlocked is set when a held identity lock was revoked this frame.
	Unlocked bool
	// AttendanceMarked is set when the attendance call was newly accepted.
	AttendanceMarked bool
}

// Resolver decides, per track per frame, whether to trust a similarity
// match enough to lock an identity, when to release that lock, and when
// to fire the one-time attendance side effect.
//
// It owns the confidence-history map and the attendance dedup set for one
// pipeline instance; neither is shared across pipelines. Not safe for
// concurrent use.
type Resolver struct {
	embedder FaceEmbedder
	searcher Searcher
	notifier Notifier
	cache    *EmbeddingCache
	cfg      ResolverConfig

	history map[int64][]float64
	marked  map[string]struct{}
}

// NewResolver wires the resolver to its collaborators. notifier may be nil
// when attendance marking is disabled.
func NewResolver(embedder FaceEmbedder, searcher Searcher, notifier Notifier, cache *EmbeddingCache, cfg ResolverConfig) *Resolver {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 5
	}
	if cfg.EmbedInterval <= 0 {
		cfg.EmbedInterval = 15
	}
	return &Resolver{
		embedder: embedder,
		searcher: searcher,
		notifier: notifier,
		cache:    cache,
		cfg:      cfg,
		history:  make(map[int64][]float64),
		marked:   make(map[string]struct{}),
	}
}

// Resolve runs one identity-resolution pass for a track.
//
// A never-embedded track is embedded immediately; afterwards embeddings
// refresh every EmbedInterval frames. An extraction failure leaves the
// prior embedding untouched.
//
// While locked, the resolver only re-validates: an explicit over-threshold
// match revokes the lock, but an absent result or a transient search
// failure does not — the embedding being unmatchable is not evidence of a
// mismatch. Re-validation never re-smooths; the reported confidence stays
// frozen until the lock is dropped.
func (r *Resolver) Resolve(ctx context.Context, tr *Track, frameID int, crop image.Image) Resolution {
	var res Resolution

	if crop != nil && (tr.Embedding == nil || frameID-tr.LastEmbedFrame >= r.cfg.EmbedInterval) {
		emb, err := r.embedder.Embed(crop)
		if err != nil {
			slog.Warn("embed face", "track", tr.ID, "error", err)
		} else if emb != nil {
			r.cache.Set(tr.ID, emb)
			tr.Embedding = emb
			tr.LastEmbedFrame = frameID
		}
	}

	var match *Match
	searched := false

	if tr.Locked() {
		if tr.Embedding == nil {
			return r.lockedResolution(ctx, tr)
		}
		m, err := r.searcher.Search(ctx, tr.Embedding)
		if err != nil {
			slog.Warn("re-validate identity", "track", tr.ID, "error", err)
			return r.lockedResolution(ctx, tr)
		}
		if m == nil || float64(m.Distance) <= r.cfg.SimThreshold {
			return r.lockedResolution(ctx, tr)
		}

		// Explicit over-threshold match: the face no longer looks like
		// the locked identity. Revoke and fall through with this result.
		slog.Info("identity unlocked",
			"track", tr.ID,
			"student", tr.Identity.StudentID,
			"distance", m.Distance,
		)
		tr.Identity = nil
		res.Unlocked = true
		observability.IdentityUnlocks.Inc()
		match = m
		searched = true
	}

	if tr.Embedding == nil {
		return res
	}

	if !searched {
		m, err := r.searcher.Search(ctx, tr.Embedding)
		if err != nil {
			slog.Warn("identity search", "track", tr.ID, "error", err)
			m = nil
		}
		match = m
	}

	if match != nil && float64(match.Distance) <= r.cfg.SimThreshold {
		smoothed := r.appendConfidence(tr.ID, 1-float64(match.Distance))
		tr.Identity = &LockedIdentity{StudentID: match.StudentID, Confidence: smoothed}
		observability.IdentityLocks.Inc()

		res.StudentID = match.StudentID
		res.Confidence = smoothed
		res.Recognized = true
		res.AttendanceMarked = r.markAttendance(ctx, match.StudentID)
		return res
	}

	if !tr.UnknownLogged {
		tr.UnknownLogged = true
		res.FirstUnknown = true
		observability.UnknownFaces.Inc()
		slog.Info("unknown face", "track", tr.ID)
	}
	return res
}

// EndFrame prunes confidence history and cached embeddings for tracks that
// are no longer in the store. Call once after every update cycle.
func (r *Resolver) EndFrame(live []*Track) {
	alive := make(map[int64]struct{}, len(live))
	for _, tr := range live {
		alive[tr.ID] = struct{}{}
	}
	for id := range r.history {
		if _, ok := alive[id]; !ok {
			delete(r.history, id)
		}
	}
	for _, id := range r.cache.Keys() {
		if _, ok := alive[id]; !ok {
			r.cache.Remove(id)
		}
	}
}

// Reset clears the attendance dedup set and all confidence history. Used
// after enrolment changes so stale locks and smoothing windows do not
// outlive the identities they were built from.
func (r *Resolver) Reset() {
	r.history = make(map[int64][]float64)
	r.marked = make(map[string]struct{})
}

// lockedResolution reports a held lock unchanged. It also re-attempts the
// attendance side effect: a call that failed at lock time must get another
// chance on later frames, and holding the lock would otherwise keep the
// identity away from markAttendance forever. The dedup set makes this a
// no-op once the mark has settled.
func (r *Resolver) lockedResolution(ctx context.Context, tr *Track) Resolution {
	return Resolution{
		StudentID:        tr.Identity.StudentID,
		Confidence:       tr.Identity.Confidence,
		Recognized:       true,
		AttendanceMarked: r.markAttendance(ctx, tr.Identity.StudentID),
	}
}

// appendConfidence adds a raw confidence to the track's bounded window and
// returns the arithmetic mean over the window.
func (r *Resolver) appendConfidence(trackID int64, raw float64) float64 {
	hist := append(r.history[trackID], raw)
	if len(hist) > r.cfg.HistoryWindow {
		hist = hist[len(hist)-r.cfg.HistoryWindow:]
	}
	r.history[trackID] = hist

	var sum float64
	for _, v := range hist {
		sum += v
	}
	return sum / float64(len(hist))
}

// markAttendance fires the side effect at most once per identity. Only an
// accepted or already-recorded outcome settles the dedup entry; anything
// else leaves it absent so a later frame retries.
func (r *Resolver) markAttendance(ctx context.Context, studentID string) bool {
	if r.notifier == nil {
		return false
	}
	if _, done := r.marked[studentID]; done {
		return false
	}

	outcome := r.notifier.Notify(ctx, studentID)
	switch outcome {
	case OutcomeAccepted:
		r.marked[studentID] = struct{}{}
		observability.AttendanceMarked.Inc()
		slog.Info("attendance marked", "student", studentID)
		return true
	case OutcomeAlreadyRecorded:
		r.marked[studentID] = struct{}{}
		return false
	default:
		observability.AttendanceRetries.Inc()
		slog.Warn("attendance not recorded", "student", studentID, "outcome", outcome.String())
		return false
	}
}
