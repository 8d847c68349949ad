package notify

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/eqtlab/bank-syncer/pkg/metrics"
	"github.com/eqtlab/bank-syncer/syncer"
)

// Dispatcher fans one event out to every configured sink. Sinks are
// independent: a failing sink is logged and counted, never retried, and
// never blocks the other sinks or subsequent events.
type Dispatcher struct {
	sinks   []Sink
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(sinks []Sink, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		logger:  logger,
		metrics: m,
	}
}

// Deliver sends the event to all sinks concurrently and returns once every
// sink has finished, keeping per-account chronological ordering meaningful
// for consumers.
func (d *Dispatcher) Deliver(ctx context.Context, event syncer.Event) {
	if len(d.sinks) == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(len(d.sinks))

	for _, sink := range d.sinks {
		sink := sink
		p.Go(func() {
			if err := sink.Process(ctx, event); err != nil {
				d.metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
				d.logger.Error(
					"sink delivery failed",
					zap.String("sink", sink.Name()),
					zap.Int64("transaction_id", event.Transaction.ID),
					zap.Int64("account_id", event.Account.ID),
					zap.Error(err),
				)
				return
			}

			d.metrics.SinkDeliveries.WithLabelValues(sink.Name()).Inc()
			d.logger.Debug(
				"sink delivery ok",
				zap.String("sink", sink.Name()),
				zap.Int64("transaction_id", event.Transaction.ID),
			)
		})
	}

	p.Wait()
}
