// Package query answers "find videos similar to this one" by fanning out
// one nearest-neighbor search per query frame and aggregating the
// per-frame hits into a single per-video ranking.
package query

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vidsim/vidsim/internal/embedder"
	"github.com/vidsim/vidsim/internal/metrics"
	"github.com/vidsim/vidsim/internal/models"
	"github.com/vidsim/vidsim/internal/sampler"
	"github.com/vidsim/vidsim/internal/store"
	"github.com/vidsim/vidsim/internal/upload"
)

type Config struct {
	TempDir       string
	FPS           float64
	MaxFrames     int
	Workers       int
	SearchTimeout time.Duration
}

// Aggregator issues one nearest-neighbor search per query frame and
// combines the per-frame hit lists into one ranked candidate list.
type Aggregator struct {
	sampler  sampler.Sampler
	provider embedder.Provider
	store    store.Store
	logger   *slog.Logger
	cfg      Config
}

func NewAggregator(s sampler.Sampler, p embedder.Provider, st store.Store, logger *slog.Logger, cfg Config) *Aggregator {
	if cfg.FPS <= 0 {
		cfg.FPS = 1
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 5 * time.Second
	}
	return &Aggregator{
		sampler:  s,
		provider: p,
		store:    st,
		logger:   logger,
		cfg:      cfg,
	}
}

// Search samples and embeds the query video, fans out one sub-query per
// frame, and returns at most topK candidates ranked by average
// similarity. A failed or timed-out sub-query contributes zero hits; the
// aggregation stays usable while the store is partially degraded.
func (a *Aggregator) Search(ctx context.Context, r io.Reader, topK int) ([]models.Candidate, error) {
	start := time.Now()

	workDir, videoPath, err := upload.Save(a.cfg.TempDir, r)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	frames, err := a.sampler.Sample(ctx, videoPath, workDir, a.cfg.FPS, a.cfg.MaxFrames)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, models.ErrEmptyVideo
	}
	metrics.FramesSampledTotal.WithLabelValues("query").Add(float64(len(frames)))

	vecs, err := embedder.EmbedAll(ctx, a.provider, frames, a.cfg.Workers)
	if err != nil {
		return nil, err
	}

	scores := a.fanOut(ctx, vecs, topK)
	ranked := rank(scores, topK)

	metrics.QueriesTotal.Inc()
	metrics.RequestDuration.WithLabelValues("query").Observe(time.Since(start).Seconds())

	a.logger.Info("query served",
		"frames", len(frames), "candidates", len(ranked), "duration", time.Since(start))
	return ranked, nil
}

// fanOut runs the per-frame sub-queries concurrently and accumulates
// similarity contributions per video. Accumulation order is irrelevant:
// the ranking only depends on the multiset of scores per video.
func (a *Aggregator) fanOut(ctx context.Context, vecs [][]float32, topK int) map[string][]float64 {
	var mu sync.Mutex
	scores := make(map[string][]float64)

	g := new(errgroup.Group)
	if a.cfg.Workers > 0 {
		g.SetLimit(a.cfg.Workers)
	}
	for i, vec := range vecs {
		g.Go(func() error {
			subCtx, cancel := context.WithTimeout(ctx, a.cfg.SearchTimeout)
			defer cancel()

			hits, err := a.store.Nearest(subCtx, vec, topK)
			if err != nil {
				// Degraded store for this frame only; the frame simply
				// contributes no hits.
				a.logger.Warn("sub-query failed", "frame", i, "error", err)
				metrics.SubqueryFailuresTotal.Inc()
				return nil
			}

			mu.Lock()
			for _, h := range hits {
				scores[h.VideoID] = append(scores[h.VideoID], 1-h.Distance)
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return scores
}

// rank reduces each video's score list to avg/max/count, orders by
// average similarity descending with deterministic tie-breaks (max desc,
// matches desc, video_id asc), and truncates to topK.
func rank(scores map[string][]float64, topK int) []models.Candidate {
	candidates := make([]models.Candidate, 0, len(scores))
	for videoID, list := range scores {
		sum, max := 0.0, list[0]
		for _, s := range list {
			sum += s
			if s > max {
				max = s
			}
		}
		candidates = append(candidates, models.Candidate{
			VideoID:       videoID,
			AvgSimilarity: sum / float64(len(list)),
			MaxSimilarity: max,
			MatchesCount:  len(list),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.AvgSimilarity != b.AvgSimilarity {
			return a.AvgSimilarity > b.AvgSimilarity
		}
		if a.MaxSimilarity != b.MaxSimilarity {
			return a.MaxSimilarity > b.MaxSimilarity
		}
		if a.MatchesCount != b.MatchesCount {
			return a.MatchesCount > b.MatchesCount
		}
		return a.VideoID < b.VideoID
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}
