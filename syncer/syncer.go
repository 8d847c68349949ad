package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eqtlab/bank-syncer/pkg/metrics"
	timeutils "github.com/eqtlab/bank-syncer/pkg/time"
)

// Syncer keeps one sync scope up to date by polling the remote source and
// fanning new transactions out to the notification sinks. One Syncer owns
// one scope; its cycle runs to completion (including the sleep) before the
// next one starts, so cycles never overlap.
type Syncer struct {
	cfg        Config
	scope      string
	storage    Storage
	source     Source
	dispatcher Dispatcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// Storage is the durable state the sync loop relies on. All per-cycle writes
// go through RunInTransaction so partial failures roll back as a whole.
type Storage interface {
	UpsertAccounts(ctx context.Context, accounts []Account) error
	UpsertTransactions(ctx context.Context, txs []Transaction) error
	// UpsertBalanceSnapshot records a balance observation; repeated
	// (account, observedAt) pairs never create a second history entry.
	UpsertBalanceSnapshot(ctx context.Context, snap BalanceSnapshot) error
	LatestCheckpoint(ctx context.Context, scope string) (Checkpoint, error)
	// CommitCheckpoint durably advances the scope's checkpoint; it never
	// regresses a committed (date, id) pair.
	CommitCheckpoint(ctx context.Context, scope string, cp Checkpoint) error
	RunInTransaction(ctx context.Context, f func(ctx context.Context, tx Storage) error) error
}

// Source is the remote banking API.
type Source interface {
	FetchAccounts(ctx context.Context, includeDisabled bool) ([]Account, error)
	FetchTransactions(ctx context.Context, window FetchWindow, pageSize int) ([]Transaction, error)
}

// Dispatcher delivers one event to every sink. Sink failures are its own
// concern and never surface here.
type Dispatcher interface {
	Deliver(ctx context.Context, event Event)
}

// nolint:lll
type Config struct {
	PollInterval    time.Duration `env:"POLL_INTERVAL, default=5m"`              // Sleep between cycles
	PageSize        int           `env:"PAGE_SIZE, default=1000"`                // Transactions fetched per page
	IncludeDisabled bool          `env:"INCLUDE_DISABLED_ACCOUNTS, default=false"` // Also refresh disabled accounts
}

func New(
	storage Storage,
	source Source,
	dispatcher Dispatcher,
	logger *zap.Logger,
	m *metrics.Metrics,
	scope string,
	cfg Config,
) *Syncer {
	return &Syncer{
		cfg:        cfg,
		scope:      scope,
		storage:    storage,
		source:     source,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    m,
	}
}

// Run executes sync cycles until ctx is canceled. A failed cycle is logged
// and retried on the next interval; the loop itself never gives up.
func (s *Syncer) Run(ctx context.Context) {
	s.logger.Info(
		"syncer started",
		zap.String("scope", s.scope),
		zap.Duration("poll_interval", s.cfg.PollInterval),
	)

	ticker := timeutils.TickWithCtx(ctx, s.cfg.PollInterval)

	for {
		if err := s.cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			s.metrics.CyclesTotal.WithLabelValues("failed").Inc()
			s.logger.Error("sync cycle failed", zap.String("scope", s.scope), zap.Error(err))
		}

		if _, ok := <-ticker; !ok {
			break
		}
	}

	s.logger.Info("syncer stopped", zap.String("scope", s.scope))
}

// cycle runs one fetch → dedupe → persist → dispatch → checkpoint pass.
// Cancellation is honored between stages, never mid network call. The
// checkpoint is read once at the start and committed once at the end, only
// after persistence succeeded.
func (s *Syncer) cycle(ctx context.Context) error {
	cp, err := s.storage.LatestCheckpoint(ctx, s.scope)
	if err != nil {
		s.metrics.CycleErrors.WithLabelValues("checkpoint").Inc()
		return fmt.Errorf("load checkpoint: %w", err)
	}

	fetchStart := time.Now()

	accounts, err := s.source.FetchAccounts(ctx, s.cfg.IncludeDisabled)
	if err != nil {
		s.metrics.CycleErrors.WithLabelValues("fetch").Inc()
		return fmt.Errorf("fetch accounts: %w", err)
	}

	batch, err := s.source.FetchTransactions(ctx, windowFor(cp), s.cfg.PageSize)
	if err != nil {
		s.metrics.CycleErrors.WithLabelValues("fetch").Inc()
		return fmt.Errorf("fetch transactions: %w", err)
	}

	s.metrics.FetchDuration.Observe(time.Since(fetchStart).Seconds())

	fresh, next := dedupe(cp, batch)
	if len(fresh) == 0 {
		s.metrics.CyclesTotal.WithLabelValues("empty").Inc()
		s.logger.Debug("no new transactions", zap.String("scope", s.scope), zap.Int("fetched", len(batch)))
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	err = s.storage.RunInTransaction(ctx, func(ctx context.Context, tx Storage) error {
		if err := tx.UpsertAccounts(ctx, accounts); err != nil {
			return err
		}

		for _, acc := range accounts {
			if acc.LastUpdate.IsZero() {
				continue
			}
			snap := BalanceSnapshot{
				AccountID:     acc.ID,
				Balance:       acc.Balance,
				ComingBalance: acc.ComingBalance,
				ObservedAt:    acc.LastUpdate,
			}
			if err := tx.UpsertBalanceSnapshot(ctx, snap); err != nil {
				return err
			}
		}

		return tx.UpsertTransactions(ctx, fresh)
	})
	if err != nil {
		s.metrics.CycleErrors.WithLabelValues("persist").Inc()
		return fmt.Errorf("persist batch: %w", err)
	}

	s.metrics.AccountsRefreshed.Add(float64(len(accounts)))
	s.metrics.TransactionsSynced.Add(float64(len(fresh)))

	if err := ctx.Err(); err != nil {
		return err // persisted but not dispatched; next run re-fetches the same range
	}

	byID := make(map[int64]Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}

	for _, tx := range fresh {
		account, ok := byID[tx.AccountID]
		if !ok {
			s.logger.Warn(
				"transaction references unknown account",
				zap.Int64("transaction_id", tx.ID),
				zap.Int64("account_id", tx.AccountID),
			)
		}
		s.dispatcher.Deliver(ctx, Event{Transaction: tx, Account: account})
	}

	if err := ctx.Err(); err != nil {
		return err // shutdown mid-dispatch: keep the old checkpoint, redeliver next run
	}

	if err := s.storage.CommitCheckpoint(ctx, s.scope, next); err != nil {
		s.metrics.CycleErrors.WithLabelValues("checkpoint").Inc()
		return fmt.Errorf("commit checkpoint: %w", err)
	}

	s.metrics.CheckpointTimestamp.Set(float64(next.LastTxDate.Unix()))
	s.metrics.CyclesTotal.WithLabelValues("synced").Inc()

	s.logger.Info(
		"sync cycle complete",
		zap.String("scope", s.scope),
		zap.Int("accounts", len(accounts)),
		zap.Int("new_transactions", len(fresh)),
		zap.Int64("checkpoint_tx_id", next.LastTxID),
		zap.Time("checkpoint_tx_date", next.LastTxDate),
	)

	return nil
}
