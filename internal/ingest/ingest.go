// Package ingest turns an uploaded video into a set of indexed frame
// segments in the vector store.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/vidsim/vidsim/internal/embedder"
	"github.com/vidsim/vidsim/internal/metrics"
	"github.com/vidsim/vidsim/internal/models"
	"github.com/vidsim/vidsim/internal/sampler"
	"github.com/vidsim/vidsim/internal/store"
	"github.com/vidsim/vidsim/internal/upload"
)

// Describer annotates a sampled frame with a short description. Optional;
// a nil Describer leaves Segment.Extra empty.
type Describer interface {
	Describe(ctx context.Context, framePath string) (string, error)
}

type Config struct {
	TempDir string
	FPS     float64
	Workers int
}

// Pipeline converts one video into N indexed segments tagged with the
// video identifier and frame index.
type Pipeline struct {
	sampler   sampler.Sampler
	provider  embedder.Provider
	store     store.Store
	describer Describer
	logger    *slog.Logger
	cfg       Config
}

func NewPipeline(s sampler.Sampler, p embedder.Provider, st store.Store, d Describer, logger *slog.Logger, cfg Config) *Pipeline {
	if cfg.FPS <= 0 {
		cfg.FPS = 1
	}
	return &Pipeline{
		sampler:   s,
		provider:  p,
		store:     st,
		describer: d,
		logger:    logger,
		cfg:       cfg,
	}
}

// AddVideo samples, embeds, and stores every frame of the upload under
// videoID, returning the number of segments stored. Segment writes abort
// on the first failure: the returned count is what actually reached the
// store and the error names the failing index. Re-ingesting an existing
// videoID appends new segments at the same indices; callers that want
// replace semantics delete the video first.
func (p *Pipeline) AddVideo(ctx context.Context, r io.Reader, videoID string) (int, error) {
	start := time.Now()

	workDir, videoPath, err := upload.Save(p.cfg.TempDir, r)
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(workDir)

	frames, err := p.sampler.Sample(ctx, videoPath, workDir, p.cfg.FPS, 0)
	if err != nil {
		return 0, fmt.Errorf("sample frames: %w", err)
	}
	if len(frames) == 0 {
		return 0, models.ErrEmptyVideo
	}
	metrics.FramesSampledTotal.WithLabelValues("ingest").Add(float64(len(frames)))

	vecs, err := embedder.EmbedAll(ctx, p.provider, frames, p.cfg.Workers)
	if err != nil {
		return 0, err
	}

	spacing := 1 / p.cfg.FPS
	stored := 0
	for i, frame := range frames {
		seg := models.Segment{
			VideoID:      videoID,
			SegmentIndex: i,
			Path:         fmt.Sprintf("video_%s_frame_%d", videoID, i),
			StartTime:    frame.Timestamp,
			EndTime:      frame.Timestamp + spacing,
			Extra:        p.describe(ctx, frame),
		}
		if err := p.store.InsertSegment(ctx, seg, vecs[i]); err != nil {
			return stored, fmt.Errorf("store segment %d of %d: %w", i, len(frames), err)
		}
		stored++
	}

	metrics.VideosIngestedTotal.Inc()
	metrics.SegmentsStoredTotal.Add(float64(stored))
	metrics.RequestDuration.WithLabelValues("ingest").Observe(time.Since(start).Seconds())

	p.logger.Info("video ingested",
		"video_id", videoID, "segments", stored, "duration", time.Since(start))
	return stored, nil
}

// describe is best-effort: a caption failure degrades to an empty Extra,
// never to a failed ingestion.
func (p *Pipeline) describe(ctx context.Context, frame models.Frame) string {
	if p.describer == nil {
		return ""
	}
	desc, err := p.describer.Describe(ctx, frame.Path)
	if err != nil {
		p.logger.Warn("frame description failed", "frame", frame.Index, "error", err)
		return ""
	}
	return desc
}
