package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facepass/internal/config"
	"github.com/your-org/facepass/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Face Embeddings ---

func (s *PostgresStore) AddFaceEmbedding(ctx context.Context, studentID int64, embedding []float32, quality float32, sourceKey string) (*models.FaceEmbedding, error) {
	fe := &models.FaceEmbedding{
		ID:        uuid.New(),
		StudentID: studentID,
		Embedding: embedding,
		Quality:   quality,
		SourceKey: sourceKey,
	}
	vec := pgvector.NewVector(embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_embeddings (id, student_id, embedding, quality, source_key) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		fe.ID, fe.StudentID, vec, fe.Quality, fe.SourceKey,
	).Scan(&fe.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add face embedding: %w", err)
	}
	return fe, nil
}

func (s *PostgresStore) ListFaceEmbeddings(ctx context.Context, studentID int64) ([]models.FaceEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, quality, source_key, created_at FROM face_embeddings WHERE student_id = $1 ORDER BY created_at DESC`,
		studentID)
	if err != nil {
		return nil, fmt.Errorf("list face embeddings: %w", err)
	}
	defer rows.Close()

	var faces []models.FaceEmbedding
	for rows.Next() {
		var fe models.FaceEmbedding
		if err := rows.Scan(&fe.ID, &fe.StudentID, &fe.Quality, &fe.SourceKey, &fe.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face embedding: %w", err)
		}
		faces = append(faces, fe)
	}
	return faces, rows.Err()
}

// DeleteStudentEmbeddings removes every enrolled face for a student and
// returns how many were deleted.
func (s *PostgresStore) DeleteStudentEmbeddings(ctx context.Context, studentID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM face_embeddings WHERE student_id = $1`, studentID)
	if err != nil {
		return 0, fmt.Errorf("delete student embeddings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AllEmbeddings loads the full gallery, vectors included. Used to build
// the in-memory fallback index.
func (s *PostgresStore) AllEmbeddings(ctx context.Context) ([]models.FaceEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, embedding, quality, source_key, created_at FROM face_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var faces []models.FaceEmbedding
	for rows.Next() {
		var fe models.FaceEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&fe.ID, &fe.StudentID, &vec, &fe.Quality, &fe.SourceKey, &fe.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		fe.Embedding = vec.Slice()
		faces = append(faces, fe)
	}
	return faces, rows.Err()
}

// SearchNearest returns the student whose enrolled face is closest to the
// query embedding by cosine distance. found is false on an empty gallery.
func (s *PostgresStore) SearchNearest(ctx context.Context, embedding []float32) (studentID int64, distance float32, found bool, err error) {
	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx,
		`SELECT student_id, embedding <=> $1 AS distance
		 FROM face_embeddings
		 ORDER BY embedding <=> $1
		 LIMIT 1`, vec)
	if err != nil {
		return 0, 0, false, fmt.Errorf("search nearest: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, 0, false, rows.Err()
	}
	var d float64
	if err := rows.Scan(&studentID, &d); err != nil {
		return 0, 0, false, fmt.Errorf("scan nearest: %w", err)
	}
	return studentID, float32(d), true, nil
}

// --- Recognition Events ---

func (s *PostgresStore) CreateEvent(ctx context.Context, ev *models.RecognitionEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recognition_events (id, session_id, track_id, type, student_id, confidence, bbox_x1, bbox_y1, bbox_x2, bbox_y2, snapshot_key, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ev.ID, ev.SessionID, ev.TrackID, ev.Type, ev.StudentID, ev.Confidence,
		ev.BBox[0], ev.BBox[1], ev.BBox[2], ev.BBox[3], ev.SnapshotKey, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// ListEvents returns recent recognition events, newest first, optionally
// filtered by session and event type.
func (s *PostgresStore) ListEvents(ctx context.Context, sessionID string, eventType string, limit int) ([]models.RecognitionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if sessionID != "" {
		where += fmt.Sprintf(" AND session_id = $%d", argIdx)
		args = append(args, sessionID)
		argIdx++
	}
	if eventType != "" {
		where += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, eventType)
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT id, session_id, track_id, type, student_id, confidence, bbox_x1, bbox_y1, bbox_x2, bbox_y2, snapshot_key, timestamp
		 FROM recognition_events %s ORDER BY timestamp DESC LIMIT $%d`, where, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.RecognitionEvent
	for rows.Next() {
		var ev models.RecognitionEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.TrackID, &ev.Type, &ev.StudentID, &ev.Confidence,
			&ev.BBox[0], &ev.BBox[1], &ev.BBox[2], &ev.BBox[3], &ev.SnapshotKey, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
