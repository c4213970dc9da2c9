package vision

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facepass/pkg/dto"
)

type stubDetector struct {
	detections []Detection
	err        error
	panics     bool
}

func (s *stubDetector) Detect(image.Image) ([]Detection, error) {
	if s.panics {
		panic("tensor shape mismatch")
	}
	return s.detections, s.err
}

type stubPose struct {
	pitch, yaw, roll float64
	err              error
}

func (s *stubPose) Estimate(image.Image) (float64, float64, float64, error) {
	return s.pitch, s.yaw, s.roll, s.err
}

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 640, 480))
}

func newTestPipeline(d *stubDetector, s *stubSearcher, n *stubNotifier) *Pipeline {
	var notifier Notifier
	if n != nil {
		notifier = n
	}
	return NewPipeline("test-session", PipelineDeps{
		Detector: d,
		Embedder: &stubEmbedder{emb: []float32{1, 0}},
		Pose:     &stubPose{},
		Searcher: s,
		Notifier: notifier,
	}, PipelineConfig{
		CropPadding:   30,
		MaxMisses:     30,
		MinIoU:        0.1,
		CacheCapacity: 16,
		Resolver: ResolverConfig{
			SimThreshold:  0.45,
			EmbedInterval: 15,
			HistoryWindow: 5,
		},
	})
}

func TestPipelineUnknownThenRecognized(t *testing.T) {
	d := &stubDetector{detections: []Detection{{BBox: Box{50, 60, 200, 250}, Confidence: 0.9}}}
	s := &stubSearcher{} // empty gallery at first
	n := &stubNotifier{outcome: OutcomeAccepted}
	p := newTestPipeline(d, s, n)

	records := p.Process(context.Background(), testFrame())
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, int64(0), rec.TrackID)
	assert.Equal(t, [4]int{50, 60, 200, 250}, rec.BBox)
	assert.Equal(t, dto.StatusUnknown, rec.Status)
	assert.Nil(t, rec.Identity)
	assert.Nil(t, rec.Confidence)

	// Gallery now matches student 7 at distance 0.2.
	s.match = &Match{StudentID: "7", Distance: 0.2}
	records = p.Process(context.Background(), testFrame())
	require.Len(t, records, 1)
	rec = records[0]
	assert.Equal(t, int64(0), rec.TrackID, "same physical face keeps its track")
	assert.Equal(t, dto.StatusRecognized, rec.Status)
	require.NotNil(t, rec.Identity)
	assert.Equal(t, "7", *rec.Identity)
	require.NotNil(t, rec.Confidence)
	assert.InDelta(t, 0.8, *rec.Confidence, 1e-6)
	assert.Equal(t, []string{"7"}, n.calls)

	// Further frames keep the lock and never mark attendance again.
	records = p.Process(context.Background(), testFrame())
	require.Len(t, records, 1)
	assert.Equal(t, dto.StatusRecognized, records[0].Status)
	assert.Equal(t, []string{"7"}, n.calls)
}

func TestPipelineNoDetections(t *testing.T) {
	d := &stubDetector{}
	p := newTestPipeline(d, &stubSearcher{}, nil)

	records := p.Process(context.Background(), testFrame())
	assert.Empty(t, records)
}

func TestPipelineDetectorErrorDegrades(t *testing.T) {
	d := &stubDetector{err: errors.New("model not loaded")}
	p := newTestPipeline(d, &stubSearcher{}, nil)

	records := p.Process(context.Background(), testFrame())
	assert.Empty(t, records)
}

func TestPipelinePanicYieldsEmptyFrame(t *testing.T) {
	d := &stubDetector{detections: []Detection{{BBox: Box{50, 60, 200, 250}}}}
	p := newTestPipeline(d, &stubSearcher{}, nil)

	p.Process(context.Background(), testFrame())
	require.Equal(t, 1, p.TrackCount())

	d.panics = true
	records := p.Process(context.Background(), testFrame())
	assert.Empty(t, records)

	// The next frame processes normally.
	d.panics = false
	records = p.Process(context.Background(), testFrame())
	assert.Len(t, records, 1)
}

func TestPipelineDegenerateBBoxSkipped(t *testing.T) {
	d := &stubDetector{detections: []Detection{{BBox: Box{100, 100, 100, 250}}}}
	p := newTestPipeline(d, &stubSearcher{}, nil)

	records := p.Process(context.Background(), testFrame())
	assert.Empty(t, records, "zero-width detection yields no output row")
	assert.Equal(t, 1, p.TrackCount(), "the track itself is retained")
}

func TestPipelineOutOfBoundsBBoxClamped(t *testing.T) {
	d := &stubDetector{detections: []Detection{{BBox: Box{-20, -10, 100, 100}}}}
	p := newTestPipeline(d, &stubSearcher{}, nil)

	records := p.Process(context.Background(), testFrame())
	require.Len(t, records, 1)
	assert.Equal(t, [4]int{0, 0, 100, 100}, records[0].BBox)
}

func TestPipelinePoseFailureDegradesToZero(t *testing.T) {
	d := &stubDetector{detections: []Detection{{BBox: Box{50, 60, 200, 250}}}}
	p := newTestPipeline(d, &stubSearcher{}, nil)
	p.pose = &stubPose{err: errors.New("pose model missing")}

	records := p.Process(context.Background(), testFrame())
	require.Len(t, records, 1)
	assert.Zero(t, records[0].Pitch)
	assert.Zero(t, records[0].Yaw)
	assert.Zero(t, records[0].Roll)
	assert.Equal(t, string(EngagementHigh), records[0].Engagement)
}

func TestPipelineEngagementFromPose(t *testing.T) {
	d := &stubDetector{detections: []Detection{{BBox: Box{50, 60, 200, 250}}}}
	p := newTestPipeline(d, &stubSearcher{}, nil)
	p.pose = &stubPose{pitch: -2, yaw: 25, roll: 1}

	records := p.Process(context.Background(), testFrame())
	require.Len(t, records, 1)
	assert.Equal(t, string(EngagementMedium), records[0].Engagement)
	assert.InDelta(t, 25.0, records[0].Yaw, 1e-9)
}

func TestPipelineResetClearsState(t *testing.T) {
	d := &stubDetector{detections: []Detection{{BBox: Box{50, 60, 200, 250}}}}
	s := &stubSearcher{match: &Match{StudentID: "7", Distance: 0.2}}
	n := &stubNotifier{outcome: OutcomeAccepted}
	p := newTestPipeline(d, s, n)

	p.Process(context.Background(), testFrame())
	require.Len(t, n.calls, 1)
	require.Equal(t, 1, p.TrackCount())

	p.Reset()
	assert.Equal(t, 0, p.TrackCount())

	// A new session epoch: fresh track ID, attendance marks again.
	records := p.Process(context.Background(), testFrame())
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].TrackID)
	assert.Len(t, n.calls, 2)
}

func TestPipelineTwoFacesIndependentTracks(t *testing.T) {
	d := &stubDetector{detections: []Detection{
		{BBox: Box{50, 60, 200, 250}},
		{BBox: Box{400, 60, 550, 250}},
	}}
	p := newTestPipeline(d, &stubSearcher{}, nil)

	records := p.Process(context.Background(), testFrame())
	require.Len(t, records, 2)
	assert.NotEqual(t, records[0].TrackID, records[1].TrackID)
}
