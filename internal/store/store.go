// Package store persists frame segments with their embedding vectors and
// answers nearest-neighbor queries over them.
package store

import (
	"context"

	"github.com/vidsim/vidsim/internal/models"
)

// Store is the vector store contract consumed by the ingestion pipeline
// and the query aggregator.
type Store interface {
	// EnsureSchema is an idempotent create-if-absent of the segment
	// collection. Safe to call on every startup.
	EnsureSchema(ctx context.Context) error

	// InsertSegment persists one segment with its vector. (video_id,
	// segment_index) is caller-assigned; no uniqueness is enforced here.
	InsertSegment(ctx context.Context, seg models.Segment, vec []float32) error

	// Nearest returns up to k segments ordered by ascending distance to
	// vec, each annotated with its distance.
	Nearest(ctx context.Context, vec []float32, k int) ([]models.Hit, error)

	// DeleteVideo removes every segment stored under videoID and reports
	// how many were deleted.
	DeleteVideo(ctx context.Context, videoID string) (int64, error)
}
