package vision

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	emb   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(image.Image) ([]float32, error) {
	s.calls++
	return s.emb, s.err
}

type stubSearcher struct {
	match *Match
	err   error
	calls int
}

func (s *stubSearcher) Search(context.Context, []float32) (*Match, error) {
	s.calls++
	return s.match, s.err
}

type stubNotifier struct {
	outcome Outcome
	calls   []string
}

func (s *stubNotifier) Notify(_ context.Context, studentID string) Outcome {
	s.calls = append(s.calls, studentID)
	return s.outcome
}

func testCrop() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 10, 10))
}

func newTestResolver(e *stubEmbedder, s *stubSearcher, n *stubNotifier) *Resolver {
	var notifier Notifier
	if n != nil {
		notifier = n
	}
	return NewResolver(e, s, notifier, NewEmbeddingCache(16), ResolverConfig{
		SimThreshold:  0.45,
		EmbedInterval: 15,
		HistoryWindow: 5,
	})
}

func TestResolveEmbedsImmediatelyThenOnCadence(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{}
	r := newTestResolver(e, s, nil)
	tr := &Track{ID: 1}

	for frame := 1; frame <= 15; frame++ {
		r.Resolve(context.Background(), tr, frame, testCrop())
	}
	// Embedded on first sight only; the next refresh lands on frame 16.
	assert.Equal(t, 1, e.calls)
	assert.Equal(t, 1, tr.LastEmbedFrame)

	r.Resolve(context.Background(), tr, 16, testCrop())
	assert.Equal(t, 2, e.calls)
	assert.Equal(t, 16, tr.LastEmbedFrame)
}

func TestResolveEmbedFailureKeepsPrior(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{}
	r := newTestResolver(e, s, nil)
	tr := &Track{ID: 1}

	r.Resolve(context.Background(), tr, 1, testCrop())
	prior := tr.Embedding
	require.NotNil(t, prior)

	e.err = errors.New("onnx runtime busy")
	r.Resolve(context.Background(), tr, 20, testCrop())
	assert.Equal(t, 2, e.calls)
	assert.Equal(t, prior, tr.Embedding, "failed extraction must not clear the prior embedding")
	assert.Equal(t, 1, tr.LastEmbedFrame)
}

func TestResolveLocksOnMatch(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	n := &stubNotifier{outcome: OutcomeAccepted}
	r := newTestResolver(e, s, n)
	tr := &Track{ID: 1}

	res := r.Resolve(context.Background(), tr, 1, testCrop())
	assert.True(t, res.Recognized)
	assert.Equal(t, "7", res.StudentID)
	assert.InDelta(t, 0.8, res.Confidence, 1e-6)
	assert.True(t, res.AttendanceMarked)
	require.True(t, tr.Locked())
	assert.Equal(t, "7", tr.Identity.StudentID)
}

func TestResolveNoMatchEmitsUnknownOnce(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{} // empty gallery
	r := newTestResolver(e, s, nil)
	tr := &Track{ID: 1}

	res := r.Resolve(context.Background(), tr, 1, testCrop())
	assert.False(t, res.Recognized)
	assert.True(t, res.FirstUnknown)

	res = r.Resolve(context.Background(), tr, 2, testCrop())
	assert.False(t, res.FirstUnknown, "unknown event fires once per track")
}

func TestResolveOverThresholdMatchStaysUnknown(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.6}}
	r := newTestResolver(e, s, nil)
	tr := &Track{ID: 1}

	res := r.Resolve(context.Background(), tr, 1, testCrop())
	assert.False(t, res.Recognized)
	assert.True(t, res.FirstUnknown)
	assert.False(t, tr.Locked())
}

func TestResolveConfidenceSmoothing(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{}
	r := newTestResolver(e, s, nil)
	tr := &Track{ID: 1}

	distances := []float32{0.1, 0.2, 0.15, 0.05, 0.3}
	var got float64
	for i, d := range distances {
		tr.Identity = nil // force a fresh lock each frame
		s.match = &Match{StudentID: "7", Distance: d}
		res := r.Resolve(context.Background(), tr, i+1, testCrop())
		require.True(t, res.Recognized)
		got = res.Confidence
	}
	// Mean of (0.9, 0.8, 0.85, 0.95, 0.7).
	assert.InDelta(t, 0.84, got, 1e-6)

	// A sixth sample evicts the oldest: mean of (0.8, 0.85, 0.95, 0.7, 0.6).
	tr.Identity = nil
	s.match = &Match{StudentID: "7", Distance: 0.4}
	res := r.Resolve(context.Background(), tr, 6, testCrop())
	assert.InDelta(t, 0.78, res.Confidence, 1e-6)
}

func TestResolveLockedConfidenceFrozen(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	r := newTestResolver(e, s, nil)
	tr := &Track{ID: 1}

	res := r.Resolve(context.Background(), tr, 1, testCrop())
	locked := res.Confidence

	// Re-validation with a different (still within-threshold) distance
	// must not move the reported confidence.
	s.match = &Match{StudentID: "7", Distance: 0.05}
	res = r.Resolve(context.Background(), tr, 2, testCrop())
	assert.True(t, res.Recognized)
	assert.Equal(t, locked, res.Confidence)
	assert.Equal(t, locked, tr.Identity.Confidence)
}

func TestResolveLockedAbsentResultKeepsLock(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	r := newTestResolver(e, s, nil)
	tr := &Track{ID: 1}

	r.Resolve(context.Background(), tr, 1, testCrop())
	require.True(t, tr.Locked())

	s.match = nil
	res := r.Resolve(context.Background(), tr, 2, testCrop())
	assert.True(t, res.Recognized, "absent search result must not unlock")
	assert.True(t, tr.Locked())
	assert.False(t, res.Unlocked)
}

func TestResolveLockedSearchErrorKeepsLock(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	r := newTestResolver(e, s, nil)
	tr := &Track{ID: 1}

	r.Resolve(context.Background(), tr, 1, testCrop())

	s.match = nil
	s.err = errors.New("db unreachable")
	res := r.Resolve(context.Background(), tr, 2, testCrop())
	assert.True(t, res.Recognized)
	assert.True(t, tr.Locked())
}

func TestResolveUnlocksOnExplicitMismatch(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	r := newTestResolver(e, s, nil)
	tr := &Track{ID: 1}

	r.Resolve(context.Background(), tr, 1, testCrop())
	require.True(t, tr.Locked())

	s.match = &Match{StudentID: "9", Distance: 0.7}
	res := r.Resolve(context.Background(), tr, 2, testCrop())
	assert.True(t, res.Unlocked)
	assert.False(t, res.Recognized)
	assert.False(t, tr.Locked())
	// One search serves both the re-validation and the re-match attempt.
	assert.Equal(t, 2, s.calls)
}

func TestResolveAttendanceMarkedOnce(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	n := &stubNotifier{outcome: OutcomeAccepted}
	r := newTestResolver(e, s, n)

	tr := &Track{ID: 1}
	res := r.Resolve(context.Background(), tr, 1, testCrop())
	assert.True(t, res.AttendanceMarked)

	// The same identity re-locking on a different track must not mark again.
	tr2 := &Track{ID: 2}
	res = r.Resolve(context.Background(), tr2, 1, testCrop())
	assert.False(t, res.AttendanceMarked)
	assert.Equal(t, []string{"7"}, n.calls)
}

func TestResolveAttendanceAlreadyRecordedSettles(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	n := &stubNotifier{outcome: OutcomeAlreadyRecorded}
	r := newTestResolver(e, s, n)
	tr := &Track{ID: 1}

	res := r.Resolve(context.Background(), tr, 1, testCrop())
	assert.False(t, res.AttendanceMarked)

	tr.Identity = nil
	r.Resolve(context.Background(), tr, 2, testCrop())
	assert.Len(t, n.calls, 1, "409 settles the dedup entry; no retry")
}

func TestResolveAttendanceErrorRetries(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	n := &stubNotifier{outcome: OutcomeError}
	r := newTestResolver(e, s, n)
	tr := &Track{ID: 1}

	res := r.Resolve(context.Background(), tr, 1, testCrop())
	assert.False(t, res.AttendanceMarked)

	n.outcome = OutcomeAccepted
	tr.Identity = nil
	res = r.Resolve(context.Background(), tr, 2, testCrop())
	assert.True(t, res.AttendanceMarked)
	assert.Equal(t, []string{"7", "7"}, n.calls)
}

func TestResolveAttendanceRetriesWhileLocked(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	n := &stubNotifier{outcome: OutcomeError}
	r := newTestResolver(e, s, n)
	tr := &Track{ID: 1}

	res := r.Resolve(context.Background(), tr, 1, testCrop())
	assert.False(t, res.AttendanceMarked)
	require.True(t, tr.Locked())

	// Backend recovers while the lock holds; the next frame must retry
	// without the lock ever being dropped.
	n.outcome = OutcomeAccepted
	res = r.Resolve(context.Background(), tr, 2, testCrop())
	assert.True(t, res.AttendanceMarked)
	assert.True(t, tr.Locked())
	assert.Equal(t, []string{"7", "7"}, n.calls)

	r.Resolve(context.Background(), tr, 3, testCrop())
	assert.Len(t, n.calls, 2, "accepted settles; later locked frames stay quiet")
}

func TestOutcomeZeroValueDoesNotSettle(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	n := &stubNotifier{} // zero-valued outcome
	r := newTestResolver(e, s, n)
	tr := &Track{ID: 1}

	res := r.Resolve(context.Background(), tr, 1, testCrop())
	assert.False(t, res.AttendanceMarked)

	r.Resolve(context.Background(), tr, 2, testCrop())
	assert.Len(t, n.calls, 2, "an unset outcome reads as an error and is retried")
	assert.Equal(t, "error", Outcome(0).String())
}

func TestEndFramePrunesDeadTracks(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{}
	r := newTestResolver(e, s, nil)

	tr1 := &Track{ID: 1}
	tr2 := &Track{ID: 2}
	s.match = &Match{StudentID: "7", Distance: 0.2}
	r.Resolve(context.Background(), tr1, 1, testCrop())
	r.Resolve(context.Background(), tr2, 1, testCrop())
	assert.Len(t, r.history, 2)
	assert.Equal(t, 2, r.cache.Len())

	r.EndFrame([]*Track{tr2})
	assert.Len(t, r.history, 1)
	_, ok := r.cache.Get(1)
	assert.False(t, ok)
	_, ok = r.cache.Get(2)
	assert.True(t, ok)
}

func TestResolverReset(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	n := &stubNotifier{outcome: OutcomeAccepted}
	r := newTestResolver(e, s, n)
	tr := &Track{ID: 1}

	r.Resolve(context.Background(), tr, 1, testCrop())
	require.Len(t, n.calls, 1)

	r.Reset()
	assert.Empty(t, r.history)

	// After reset the same identity marks attendance again.
	tr.Identity = nil
	res := r.Resolve(context.Background(), tr, 2, testCrop())
	assert.True(t, res.AttendanceMarked)
	assert.Len(t, n.calls, 2)
}

func TestResolveNilCropSkipsEmbedding(t *testing.T) {
	e := &stubEmbedder{emb: []float32{1, 0}}
	s := &stubSearcher{}
	r := newTestResolver(e, s, nil)
	tr := &Track{ID: 1}

	res := r.Resolve(context.Background(), tr, 1, nil)
	assert.Equal(t, 0, e.calls)
	assert.False(t, res.Recognized)
	assert.False(t, res.FirstUnknown, "no embedding means no unknown verdict yet")
}
