package models

import (
	"time"

	"github.com/google/uuid"
)

// FaceEmbedding is one stored reference embedding for a student. Students
// themselves are owned by the FacePass backend; this service only keys
// embeddings by their external ID.
type FaceEmbedding struct {
	ID        uuid.UUID `json:"id" db:"id"`
	StudentID int64     `json:"student_id" db:"student_id"`
	Embedding []float32 `json:"-" db:"embedding"`
	Quality   float32   `json:"quality" db:"quality"`
	SourceKey string    `json:"source_key" db:"source_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
