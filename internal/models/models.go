package models

import "errors"

var (
	// ErrEmptyVideo is returned when no frames could be decoded from an
	// uploaded file.
	ErrEmptyVideo = errors.New("no frames extracted from video")

	// ErrEmbedding is returned when the embedding provider fails or
	// produces an invalid vector.
	ErrEmbedding = errors.New("embedding provider failure")
)

// Frame is one sampled image from a video, held in memory between
// sampling and embedding. Path points at the decoded JPEG inside the
// request's scratch directory and is only valid for the request lifetime.
type Frame struct {
	Index     int
	Timestamp float64
	Path      string
	JPEG      []byte
}

// Segment is one indexed frame of an ingested video. The embedding vector
// is stored alongside the segment but never read back as a field.
type Segment struct {
	VideoID      string
	SegmentIndex int
	Path         string
	StartTime    float64
	EndTime      float64
	Extra        string
}

// Hit is one nearest-neighbor result, annotated with its cosine distance
// to the query vector.
type Hit struct {
	VideoID      string
	SegmentIndex int
	Path         string
	Distance     float64
}

// Candidate is one ranked video in a query response.
type Candidate struct {
	VideoID       string  `json:"video_id"`
	AvgSimilarity float64 `json:"avg_similarity"`
	MaxSimilarity float64 `json:"max_similarity"`
	MatchesCount  int     `json:"matches_count"`
}
