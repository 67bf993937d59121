package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VideosIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidsim_videos_ingested_total",
		Help: "Total number of videos successfully ingested",
	})

	SegmentsStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidsim_segments_stored_total",
		Help: "Total number of frame segments written to the vector store",
	})

	FramesSampledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidsim_frames_sampled_total",
		Help: "Total number of frames sampled from uploads, by operation",
	}, []string{"op"})

	QueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidsim_queries_total",
		Help: "Total number of query_video requests served",
	})

	SubqueryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidsim_subquery_failures_total",
		Help: "Per-frame nearest-neighbor sub-queries that failed or timed out",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidsim_request_duration_seconds",
		Help:    "Duration of ingest and query pipelines",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{"op"})
)
