package book

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal tracks book updates by kind (snapshot/delta/best).
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parity_book_updates_total",
			Help: "Total number of order book updates applied",
		},
		[]string{"kind"},
	)

	// UpdatesDroppedTotal tracks updates dropped for unknown token IDs.
	UpdatesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parity_book_updates_dropped_total",
			Help: "Total number of book updates dropped (unknown token id)",
		},
		[]string{"reason"},
	)

	// MarketsTracked tracks the number of markets held in the store.
	MarketsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parity_book_markets_tracked",
		Help: "Number of binary markets tracked in memory",
	})

	// StaleMarketsTotal counts markets observed stale at read time.
	StaleMarketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parity_book_stale_reads_total",
		Help: "Total number of reads that observed a stale market book",
	})

	// UpdateProcessingDuration tracks the time to apply a single update.
	UpdateProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "parity_book_update_processing_duration_seconds",
		Help:    "Time to apply a book update under lock",
		Buckets: []float64{0.0001, 0.0002, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
)
