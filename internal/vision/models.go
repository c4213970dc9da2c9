package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facepass/internal/config"
)

// ErrNoFace is returned when an enrollment image contains no detectable
// face above the detection threshold.
var ErrNoFace = errors.New("no face detected")

// Models bundles the loaded ONNX models. One Models instance is shared
// across all session pipelines; the individual wrappers synchronize
// access internally.
type Models struct {
	Detector *Detector
	Embedder *Embedder
	Pose     *HeadPoseEstimator

	cropPad int
}

// NewModels initializes the ONNX runtime and loads all models from the
// configured directory. The head-pose model is optional: when missing,
// pose output degrades to zero angles.
func NewModels(cfg config.VisionConfig, cropPad int) (*Models, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	detector, err := NewDetector(
		filepath.Join(cfg.ModelsDir, "det_10g.onnx"),
		float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	embedder, err := NewEmbedder(filepath.Join(cfg.ModelsDir, "w600k_r50.onnx"))
	if err != nil {
		detector.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	pose, err := NewHeadPoseEstimator(filepath.Join(cfg.ModelsDir, "head_pose.onnx"))
	if err != nil {
		slog.Warn("head pose model unavailable, pose angles will be zero", "error", err)
		pose = nil
	}

	return &Models{
		Detector: detector,
		Embedder: embedder,
		Pose:     pose,
		cropPad:  cropPad,
	}, nil
}

// EmbedImage decodes a still image, detects the most confident face and
// returns its embedding plus the detection confidence as a quality score.
// Used by the enrollment and one-shot recognition endpoints.
func (m *Models) EmbedImage(imageData []byte) ([]float32, float32, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, 0, fmt.Errorf("decode image: %w", err)
	}

	detections, err := m.Detector.Detect(img)
	if err != nil {
		return nil, 0, fmt.Errorf("detect: %w", err)
	}
	if len(detections) == 0 {
		return nil, 0, ErrNoFace
	}

	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	crop, _, ok := cropPadded(img, best.BBox, m.cropPad)
	if !ok {
		return nil, 0, ErrNoFace
	}

	embedding, err := m.Embedder.Embed(crop)
	if err != nil {
		return nil, 0, fmt.Errorf("embed: %w", err)
	}

	return embedding, best.Confidence, nil
}

// PoseEstimator returns the pose model or nil when it failed to load;
// a nil PoseEstimator interface would not be detected by the pipeline's
// nil check otherwise.
func (m *Models) PoseEstimator() PoseEstimator {
	if m.Pose == nil {
		return nil
	}
	return m.Pose
}

func (m *Models) Close() {
	if m.Detector != nil {
		m.Detector.Close()
	}
	if m.Embedder != nil {
		m.Embedder.Close()
	}
	if m.Pose != nil {
		m.Pose.Close()
	}
}
