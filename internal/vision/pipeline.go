package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facepass/internal/models"
	"github.com/your-org/facepass/internal/observability"
	"github.com/your-org/facepass/internal/queue"
	"github.com/your-org/facepass/internal/storage"
	"github.com/your-org/facepass/pkg/dto"
)

// FaceDetector produces bounding boxes for every face in a frame.
// Implementations must degrade to an empty list rather than fail on
// malformed input.
type FaceDetector interface {
	Detect(img image.Image) ([]Detection, error)
}

// PoseEstimator estimates head pose angles (degrees) from a face crop.
type PoseEstimator interface {
	Estimate(crop image.Image) (pitch, yaw, roll float64, err error)
}

// PipelineDeps bundles the pipeline's collaborators. Producer and Objects
// are optional; when nil, event publishing and snapshots are skipped.
type PipelineDeps struct {
	Detector FaceDetector
	Embedder FaceEmbedder
	Pose     PoseEstimator
	Searcher Searcher
	Notifier Notifier
	Producer *queue.Producer
	Objects  *storage.MinIOStore
}

// PipelineConfig holds the per-instance tunables.
type PipelineConfig struct {
	CropPadding   int
	MaxMisses     int
	MinIoU        float32
	CacheCapacity int
	Resolver      ResolverConfig
	Engagement    *EngagementClassifier
}

// Pipeline sequences detection, tracking, identity resolution and
// behaviour analysis for one frame-streaming session. Each session owns
// an independent Pipeline; all state is mutated by exactly one update
// cycle at a time, so nothing here is internally synchronized.
type Pipeline struct {
	sessionID  string
	detector   FaceDetector
	pose       PoseEstimator
	engagement *EngagementClassifier

	tracker  *Tracker
	cache    *EmbeddingCache
	resolver *Resolver

	producer *queue.Producer
	objects  *storage.MinIOStore

	cropPad int
	frameID int
}

// NewPipeline builds a pipeline instance for one session.
func NewPipeline(sessionID string, deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if cfg.CropPadding <= 0 {
		cfg.CropPadding = 30
	}
	if cfg.Engagement == nil {
		cfg.Engagement = NewEngagementClassifier(20.0, -10.0)
	}

	cache := NewEmbeddingCache(cfg.CacheCapacity)

	return &Pipeline{
		sessionID:  sessionID,
		detector:   deps.Detector,
		pose:       deps.Pose,
		engagement: cfg.Engagement,
		tracker:    NewTracker(cfg.MaxMisses, cfg.MinIoU),
		cache:      cache,
		resolver:   NewResolver(deps.Embedder, deps.Searcher, deps.Notifier, cache, cfg.Resolver),
		producer:   deps.Producer,
		objects:    deps.Objects,
		cropPad:    cfg.CropPadding,
	}
}

// Process runs one frame through the full pipeline and returns one record
// per detection-backed track. Any unexpected failure is contained here:
// the frame yields an empty result set and the next frame starts clean.
func (p *Pipeline) Process(ctx context.Context, img image.Image) (records []dto.FaceRecord) {
	p.frameID++
	frameID := p.frameID

	defer func() {
		if r := recover(); r != nil {
			slog.Error("frame processing failed",
				"session", p.sessionID, "frame", frameID, "panic", r)
			records = []dto.FaceRecord{}
		}
	}()

	start := time.Now()
	detections, err := p.detector.Detect(img)
	if err != nil {
		slog.Warn("detect faces", "session", p.sessionID, "frame", frameID, "error", err)
		detections = nil
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	if len(detections) > 0 {
		observability.FacesDetected.WithLabelValues(p.sessionID).Add(float64(len(detections)))
	}

	boxes := make([]Box, len(detections))
	for i, d := range detections {
		boxes[i] = d.BBox
	}

	start = time.Now()
	tracks := p.tracker.Update(boxes, time.Now())
	observability.InferenceDuration.WithLabelValues("track").Observe(time.Since(start).Seconds())

	records = make([]dto.FaceRecord, 0, len(tracks))

	for _, tr := range tracks {
		crop, bbox, ok := cropPadded(img, tr.BBox, p.cropPad)
		if !ok {
			slog.Debug("skipping degenerate bbox", "session", p.sessionID, "track", tr.ID)
			continue
		}

		lockedBefore := tr.Locked()

		start = time.Now()
		res := p.resolver.Resolve(ctx, tr, frameID, crop)
		observability.InferenceDuration.WithLabelValues("resolve").Observe(time.Since(start).Seconds())

		start = time.Now()
		pitch, yaw, roll := p.estimatePose(crop)
		level := p.engagement.Classify(pitch, yaw)
		observability.InferenceDuration.WithLabelValues("behave").Observe(time.Since(start).Seconds())

		rec := dto.FaceRecord{
			TrackID:    tr.ID,
			BBox:       bbox,
			Status:     dto.StatusUnknown,
			Pitch:      round2(pitch),
			Yaw:        round2(yaw),
			Roll:       round2(roll),
			Engagement: string(level),
		}
		if res.Recognized {
			id := res.StudentID
			conf := round4(res.Confidence)
			rec.Identity = &id
			rec.Confidence = &conf
			rec.Status = dto.StatusRecognized
			observability.FacesRecognized.WithLabelValues(p.sessionID).Inc()
		}
		records = append(records, rec)

		p.emitEvents(ctx, tr, lockedBefore, res, rec, crop)
	}

	p.resolver.EndFrame(p.tracker.Tracks())
	observability.FramesProcessed.WithLabelValues(p.sessionID).Inc()

	return records
}

// Reset clears all per-session identity state: track store, embedding
// cache, confidence history and the attendance dedup set. Idempotent;
// intended to run between frames, never concurrently with Process.
func (p *Pipeline) Reset() {
	p.tracker.Reset()
	p.resolver.Reset()
	p.cache.Purge()
	p.frameID = 0
	slog.Info("pipeline state reset", "session", p.sessionID)
}

// TrackCount returns the number of live tracks.
func (p *Pipeline) TrackCount() int { return p.tracker.Count() }

func (p *Pipeline) estimatePose(crop image.Image) (float64, float64, float64) {
	if p.pose == nil {
		return 0, 0, 0
	}
	pitch, yaw, roll, err := p.pose.Estimate(crop)
	if err != nil {
		slog.Debug("pose estimation failed", "session", p.sessionID, "error", err)
		return 0, 0, 0
	}
	return pitch, yaw, roll
}

// emitEvents publishes state transitions to NATS and stores an unknown-face
// snapshot. All failures degrade to a log line; events are best-effort.
func (p *Pipeline) emitEvents(ctx context.Context, tr *Track, lockedBefore bool, res Resolution, rec dto.FaceRecord, crop image.Image) {
	if p.producer == nil {
		return
	}

	publish := func(evtType models.EventType, snapshotKey string) {
		evt := models.RecognitionEvent{
			ID:          uuid.New(),
			SessionID:   p.sessionID,
			TrackID:     tr.ID,
			Type:        evtType,
			StudentID:   rec.Identity,
			Confidence:  rec.Confidence,
			BBox:        rec.BBox,
			SnapshotKey: snapshotKey,
			Timestamp:   time.Now(),
		}
		if err := p.producer.PublishEvent(ctx, p.sessionID, evt); err != nil {
			slog.Warn("publish event", "type", evtType, "session", p.sessionID, "error", err)
		}
	}

	if res.Unlocked {
		publish(models.EventIdentityUnlocked, "")
	}
	if !lockedBefore && tr.Locked() {
		publish(models.EventFaceRecognized, "")
	}
	if res.AttendanceMarked {
		publish(models.EventAttendanceMarked, "")
	}
	if res.FirstUnknown {
		publish(models.EventFaceUnknown, p.saveSnapshot(ctx, tr, crop))
	}
}

// saveSnapshot stores an unknown-face crop for later review. Returns the
// object key, or "" when storage is unavailable.
func (p *Pipeline) saveSnapshot(ctx context.Context, tr *Track, crop image.Image) string {
	if p.objects == nil {
		return ""
	}
	key := fmt.Sprintf("snapshots/%s/track_%d_%s.jpg",
		p.sessionID, tr.ID, time.Now().Format("20060102_150405"))
	if err := p.objects.PutObject(ctx, key, encodeJPEG(crop, 85), "image/jpeg"); err != nil {
		slog.Warn("save snapshot", "session", p.sessionID, "track", tr.ID, "error", err)
		return ""
	}
	return key
}

func round2(v float64) float64 {
	return float64(int(v*100+sign(v)*0.5)) / 100
}

func round4(v float64) float64 {
	return float64(int(v*10000+sign(v)*0.5)) / 10000
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
