package payouts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlements-backend/internal/ledger"
	"github.com/angelmondragon/settlements-backend/pkg/config"
	"github.com/angelmondragon/settlements-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlements-backend/pkg/errors"
	"github.com/angelmondragon/settlements-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

func setupScenarioDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := setupPayoutsTestDB(t)

	earningEvents := `
CREATE TABLE IF NOT EXISTS earning_events (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  vendor_store_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  gross_cents INTEGER NOT NULL,
  platform_fee_cents INTEGER NOT NULL,
  net_cents INTEGER NOT NULL,
  occurred_at DATETIME NOT NULL,
  created_at DATETIME,
  UNIQUE (vendor_store_id, order_id)
);`
	require.NoError(t, db.Exec(earningEvents).Error)
	return db
}

// Earn, reserve the full balance, reject a concurrent request, fail the
// settlement, and watch the reservation come back.
func TestWithdrawalLifecycleReleasesFailedReservation(t *testing.T) {
	db := setupScenarioDB(t)
	ctx := context.Background()
	vendorID := uuid.New()

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(db)})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(db),
		Ledger: ledgerSvc,
		Tx:     &gormTxRunner{db: db},
		Config: config.PayoutsConfig{
			DefaultPageSize:     10,
			MaxPageSize:         100,
			RecentPaymentsLimit: 5,
		},
		Logger: logger.New(logger.Options{ServiceName: "payouts-test"}),
	})
	require.NoError(t, err)

	_, replayed, err := ledgerSvc.RecordEarning(ctx, ledger.RecordEarningInput{
		VendorStoreID:    vendorID,
		OrderID:          uuid.New(),
		GrossCents:       10_000,
		PlatformFeeCents: 1_000,
		NetCents:         9_000,
		OccurredAt:       time.Now().UTC(),
	})
	require.NoError(t, err)
	require.False(t, replayed)

	view, err := ledgerSvc.ComputeBalance(ctx, vendorID)
	require.NoError(t, err)
	assert.Equal(t, ledger.BalanceView{
		TotalEarningsCents:  10_000,
		PlatformFeesCents:   1_000,
		TotalWithdrawnCents: 0,
		CurrentBalanceCents: 9_000,
	}, view)

	// Reserve the whole balance.
	first, created, err := svc.RequestWithdrawal(ctx, vendorID, 9_000, "k1")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, enums.WithdrawalStatusPending, first.Status)

	// Anything further must bounce while the reservation stands.
	_, _, err = svc.RequestWithdrawal(ctx, vendorID, 100, "k2")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInsufficientFunds, pkgerrors.As(err).Code())

	view, err = ledgerSvc.ComputeBalance(ctx, vendorID)
	require.NoError(t, err)
	assert.Zero(t, view.CurrentBalanceCents)
	assert.Equal(t, int64(9_000), view.TotalWithdrawnCents)

	// Failing the settlement releases the reserved amount.
	reason := "bank transfer rejected"
	settled, err := svc.SettleWithdrawal(ctx, first.ID, enums.PayoutOutcomeFailed, &reason)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusFailed, settled.Status)

	view, err = ledgerSvc.ComputeBalance(ctx, vendorID)
	require.NoError(t, err)
	assert.Equal(t, int64(9_000), view.CurrentBalanceCents)
	assert.Zero(t, view.TotalWithdrawnCents)

	// The rejected retry now fits.
	second, created, err := svc.RequestWithdrawal(ctx, vendorID, 100, "k2")
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, int64(100), second.AmountCents)

	// Replaying the failed request returns the original record untouched.
	replayedFirst, created, err := svc.RequestWithdrawal(ctx, vendorID, 9_000, "k1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, replayedFirst.ID)
	assert.Equal(t, enums.WithdrawalStatusFailed, replayedFirst.Status)
}
