package dto

import "github.com/google/uuid"

// FaceResponse describes one enrolled face embedding.
type FaceResponse struct {
	ID        uuid.UUID `json:"id"`
	StudentID int64     `json:"student_id"`
	Quality   float32   `json:"quality"`
	SourceKey string    `json:"source_key"`
	CreatedAt string    `json:"created_at"`
}

// FaceListResponse is the per-student enrollment listing.
type FaceListResponse struct {
	Faces []FaceResponse `json:"faces"`
	Total int            `json:"total"`
}

// DeleteFacesResponse reports how many embeddings a student delete removed.
type DeleteFacesResponse struct {
	StudentID int64 `json:"student_id"`
	Deleted   int64 `json:"deleted"`
}

// RecognizeResponse is the result of a one-shot still-image recognition.
type RecognizeResponse struct {
	Matched   bool     `json:"matched"`
	StudentID *string  `json:"student_id,omitempty"`
	Distance  *float32 `json:"distance,omitempty"`
}
