package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/your-org/facepass/internal/models"
	"github.com/your-org/facepass/internal/vision"
)

// Store is the gallery persistence the service needs.
type Store interface {
	SearchNearest(ctx context.Context, embedding []float32) (studentID int64, distance float32, found bool, err error)
	AllEmbeddings(ctx context.Context) ([]models.FaceEmbedding, error)
}

// Service answers nearest-neighbour identity queries. Postgres (pgvector)
// is the source of truth; an in-memory index over the same gallery takes
// over when the database query fails, so live sessions keep recognizing
// through a database blip.
type Service struct {
	store Store
	index *Index
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		index: NewIndex(),
	}
}

// Reload rebuilds the in-memory index from the database gallery. Called
// at startup and after every enrollment change.
func (s *Service) Reload(ctx context.Context) error {
	faces, err := s.store.AllEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("reload gallery: %w", err)
	}

	entries := make([]Entry, 0, len(faces))
	for _, fe := range faces {
		entries = append(entries, Entry{
			ID:        fe.ID.String(),
			StudentID: fe.StudentID,
			Embedding: fe.Embedding,
		})
	}
	s.index.Replace(entries)

	slog.Info("search index reloaded", "embeddings", len(entries))
	return nil
}

// IndexSize returns the number of embeddings in the fallback index.
func (s *Service) IndexSize() int { return s.index.Len() }

// Search implements vision.Searcher. A nil result means no gallery entry
// exists; the caller applies its own distance threshold.
func (s *Service) Search(ctx context.Context, embedding []float32) (*vision.Match, error) {
	studentID, distance, found, err := s.store.SearchNearest(ctx, embedding)
	if err != nil {
		slog.Warn("pgvector search failed, using in-memory index", "error", err)
		studentID, distance, found = s.index.Nearest(embedding)
		if !found {
			return nil, fmt.Errorf("search: %w", err)
		}
	}
	if !found {
		return nil, nil
	}

	return &vision.Match{
		StudentID: strconv.FormatInt(studentID, 10),
		Distance:  distance,
	}, nil
}
