package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the sync loop's Prometheus collectors.
type Metrics struct {
	CyclesTotal         *prometheus.CounterVec
	CycleErrors         *prometheus.CounterVec
	TransactionsSynced  prometheus.Counter
	AccountsRefreshed   prometheus.Counter
	SinkDeliveries      *prometheus.CounterVec
	SinkErrors          *prometheus.CounterVec
	FetchDuration       prometheus.Histogram
	CheckpointTimestamp prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "banksync_cycles_total",
			Help: "Completed sync cycles by outcome.",
		}, []string{"outcome"}),
		CycleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "banksync_cycle_errors_total",
			Help: "Cycle failures by stage.",
		}, []string{"stage"}),
		TransactionsSynced: factory.NewCounter(prometheus.CounterOpts{
			Name: "banksync_transactions_synced_total",
			Help: "New transactions persisted and dispatched.",
		}),
		AccountsRefreshed: factory.NewCounter(prometheus.CounterOpts{
			Name: "banksync_accounts_refreshed_total",
			Help: "Account rows upserted.",
		}),
		SinkDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "banksync_sink_deliveries_total",
			Help: "Successful sink deliveries by sink.",
		}, []string{"sink"}),
		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "banksync_sink_errors_total",
			Help: "Failed sink deliveries by sink.",
		}, []string{"sink"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "banksync_fetch_duration_seconds",
			Help:    "Remote fetch duration per cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		CheckpointTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "banksync_checkpoint_timestamp_seconds",
			Help: "Date of the last committed checkpoint.",
		}),
	}
}
