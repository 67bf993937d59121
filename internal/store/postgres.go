package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/vidsim/vidsim/internal/models"
)

// Postgres stores segments in a single pgvector-backed table. Cosine
// distance (`<=>`) is the index metric, so reported distances lie in
// [0, 2] for unit vectors and similarity is 1 - distance.
type Postgres struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

// NewPostgres connects a long-lived, process-wide pool. The pool is
// shared by all concurrent requests; Postgres isolates them.
func NewPostgres(ctx context.Context, databaseURL string, dim int, logger *slog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, dim: dim, logger: logger}, nil
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// schemaSQL declares the segment table and its indexes for the given
// vector dimensionality. Everything is IF NOT EXISTS so repeated startups
// are no-ops.
func schemaSQL(dim int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS video_segments (
            id BIGSERIAL PRIMARY KEY,
            video_id TEXT NOT NULL,
            segment_index INTEGER NOT NULL,
            path TEXT NOT NULL,
            start_time DOUBLE PRECISION NOT NULL,
            end_time DOUBLE PRECISION NOT NULL,
            extra TEXT NOT NULL DEFAULT '',
            embedding vector(%d) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`, dim),
		"CREATE INDEX IF NOT EXISTS idx_video_segments_video_id ON video_segments(video_id)",
		"CREATE INDEX IF NOT EXISTS idx_video_segments_embedding ON video_segments USING hnsw (embedding vector_cosine_ops)",
	}
}

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaSQL(s.dim) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.logger.Debug("segment schema ensured", "dimensions", s.dim)
	return nil
}

func (s *Postgres) InsertSegment(ctx context.Context, seg models.Segment, vec []float32) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO video_segments
        (video_id, segment_index, path, start_time, end_time, extra, embedding)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		seg.VideoID, seg.SegmentIndex, seg.Path, seg.StartTime, seg.EndTime, seg.Extra,
		pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("failed to store segment: %w", err)
	}
	return nil
}

func (s *Postgres) Nearest(ctx context.Context, vec []float32, k int) ([]models.Hit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT video_id, segment_index, path, embedding <=> $1 AS distance
        FROM video_segments
        ORDER BY embedding <=> $1
        LIMIT $2`,
		pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor query: %w", err)
	}
	defer rows.Close()

	var hits []models.Hit
	for rows.Next() {
		var h models.Hit
		if err := rows.Scan(&h.VideoID, &h.SegmentIndex, &h.Path, &h.Distance); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Postgres) DeleteVideo(ctx context.Context, videoID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM video_segments WHERE video_id = $1", videoID)
	if err != nil {
		return 0, fmt.Errorf("delete segments for %q: %w", videoID, err)
	}
	return tag.RowsAffected(), nil
}
