package dto

// Face record status values.
const (
	StatusRecognized = "recognized"
	StatusUnknown    = "unknown"
)

// FaceRecord is one per-track output row for a processed frame.
// Identity and Confidence are null until an identity lock is held.
type FaceRecord struct {
	TrackID    int64    `json:"track_id"`
	BBox       [4]int   `json:"bbox"`
	Identity   *string  `json:"identity"`
	Confidence *float64 `json:"confidence"`
	Status     string   `json:"status"`
	Pitch      float64  `json:"pitch"`
	Yaw        float64  `json:"yaw"`
	Roll       float64  `json:"roll"`
	Engagement string   `json:"engagement"`
}
