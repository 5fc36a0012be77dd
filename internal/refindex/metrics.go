package refindex

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// rebuildsTotal counts index rebuilds by outcome: applied, discarded
	// (superseded by a newer rebuild) or failed.
	rebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notegraph_refindex_rebuilds_total",
		Help: "Reference index rebuilds by result",
	}, []string{"result"})

	rebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notegraph_refindex_rebuild_duration_seconds",
		Help:    "Reference index rebuild duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	})

	// notesRescanned counts notes whose entries were recomputed because
	// their content changed.
	notesRescanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notegraph_refindex_notes_rescanned_total",
		Help: "Notes rescanned by reference index rebuilds",
	})

	blockResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notegraph_refindex_block_resolutions_total",
		Help: "Block reference resolutions by result",
	}, []string{"result"})
)
