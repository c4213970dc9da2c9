package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventFaceRecognized   EventType = "face_recognized"
	EventFaceUnknown      EventType = "face_unknown"
	EventIdentityUnlocked EventType = "identity_unlocked"
	EventAttendanceMarked EventType = "attendance_marked"
)

// RecognitionEvent is published to NATS by the pipeline and broadcast to
// dashboard WebSocket clients by the API's event consumer.
type RecognitionEvent struct {
	ID          uuid.UUID `json:"id" db:"id"`
	SessionID   string    `json:"session_id" db:"session_id"`
	TrackID     int64     `json:"track_id" db:"track_id"`
	Type        EventType `json:"type" db:"type"`
	StudentID   *string   `json:"student_id,omitempty" db:"student_id"`
	Confidence  *float64  `json:"confidence,omitempty" db:"confidence"`
	BBox        [4]int    `json:"bbox" db:"bbox"`
	SnapshotKey string    `json:"snapshot_key,omitempty" db:"snapshot_key"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}
