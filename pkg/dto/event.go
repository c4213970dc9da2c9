package dto

import (
	"time"

	"github.com/google/uuid"
)

// WSEvent is a dashboard WebSocket message carrying one recognition event.
type WSEvent struct {
	Type        string    `json:"type"` // face_recognized, face_unknown, identity_unlocked, attendance_marked
	ID          uuid.UUID `json:"id"`
	SessionID   string    `json:"session_id"`
	TrackID     int64     `json:"track_id"`
	StudentID   *string   `json:"student_id,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
	BBox        [4]int    `json:"bbox"`
	SnapshotKey string    `json:"snapshot_key,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventListResponse is the REST event-history payload.
type EventListResponse struct {
	Events []WSEvent `json:"events"`
	Total  int       `json:"total"`
}
