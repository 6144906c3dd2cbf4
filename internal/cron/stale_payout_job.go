package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	"github.com/angelmondragon/settlements-backend/pkg/logger"
	"github.com/angelmondragon/settlements-backend/pkg/metrics"
	"github.com/angelmondragon/settlements-backend/pkg/pagination"
)

const (
	stalePayoutJobName      = "stale-payout-sweep"
	defaultStaleAfter       = 72 * time.Hour
	defaultStaleSweepBatch  = 200
	maxStaleSweepIterations = 1000
)

type stalePendingReader interface {
	ListStalePending(ctx context.Context, olderThan time.Time, cursor *pagination.Cursor, limit int) ([]models.Withdrawal, *pagination.Cursor, error)
}

// StalePayoutJobParams configure the pending withdrawal sweep.
type StalePayoutJobParams struct {
	Logger     *logger.Logger
	Repo       stalePendingReader
	Metrics    *metrics.JobMetrics
	StaleAfter time.Duration
	BatchSize  int
}

// NewStalePayoutJob builds the job that surfaces withdrawals stuck in pending.
// Pending records are never expired or failed automatically; the sweep only
// reports them so an operator settles each one deliberately.
func NewStalePayoutJob(params StalePayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultStaleSweepBatch
	}
	return &stalePayoutJob{
		logg:       params.Logger,
		repo:       params.Repo,
		metrics:    params.Metrics,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		now:        time.Now,
	}, nil
}

type stalePayoutJob struct {
	logg       *logger.Logger
	repo       stalePendingReader
	metrics    *metrics.JobMetrics
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *stalePayoutJob) Name() string { return stalePayoutJobName }

func (j *stalePayoutJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	count := 0

	var cursor *pagination.Cursor
	for i := 0; i < maxStaleSweepIterations; i++ {
		withdrawals, next, err := j.repo.ListStalePending(ctx, cutoff, cursor, j.batchSize)
		if err != nil {
			return fmt.Errorf("list stale pending withdrawals: %w", err)
		}
		for _, w := range withdrawals {
			logCtx := j.logg.WithFields(ctx, map[string]any{
				"withdrawal_id":   w.ID.String(),
				"vendor_store_id": w.VendorStoreID.String(),
				"amount_cents":    w.AmountCents,
				"requested_at":    w.RequestedAt.UTC().Format(time.RFC3339),
				"pending_for":     j.now().UTC().Sub(w.RequestedAt).String(),
			})
			j.logg.Warn(logCtx, "withdrawal pending past threshold")
			count++
		}
		if next == nil {
			break
		}
		cursor = next
	}

	j.metrics.SetStalePending(stalePayoutJobName, count)
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count, "cutoff": cutoff.Format(time.RFC3339)})
	j.logg.Info(logCtx, "stale payout sweep complete")
	return nil
}
