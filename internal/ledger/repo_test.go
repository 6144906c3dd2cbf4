package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	"github.com/angelmondragon/settlements-backend/pkg/enums"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

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
	withdrawals := `
CREATE TABLE IF NOT EXISTS withdrawals (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  vendor_store_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  idempotency_key TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  failure_reason TEXT,
  requested_at DATETIME NOT NULL,
  settled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (vendor_store_id, idempotency_key)
);`
	require.NoError(t, db.Exec(earningEvents).Error)
	require.NoError(t, db.Exec(withdrawals).Error)
	return db
}

func newEarningEvent(vendorID, orderID uuid.UUID, gross, fee int64, occurredAt time.Time) *models.EarningEvent {
	return &models.EarningEvent{
		ID:               uuid.New(),
		VendorStoreID:    vendorID,
		OrderID:          orderID,
		GrossCents:       gross,
		PlatformFeeCents: fee,
		NetCents:         gross - fee,
		OccurredAt:       occurredAt,
	}
}

func TestAppendEarningDeduplicatesVendorOrder(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	vendorID := uuid.New()
	orderID := uuid.New()
	now := time.Now().UTC()

	first := newEarningEvent(vendorID, orderID, 10_000, 1_500, now)
	created, err := repo.AppendEarning(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	// redelivery with different amounts must not overwrite the original row
	replay := newEarningEvent(vendorID, orderID, 99_999, 0, now.Add(time.Minute))
	created, err = repo.AppendEarning(ctx, replay)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, replay.ID)
	assert.Equal(t, int64(10_000), replay.GrossCents)
	assert.Equal(t, int64(8_500), replay.NetCents)

	events, err := repo.ListEarnings(ctx, vendorID, Window{})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestAppendEarningSameOrderDifferentVendors(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		created, err := repo.AppendEarning(ctx, newEarningEvent(uuid.New(), orderID, 5_000, 500, now))
		require.NoError(t, err)
		assert.True(t, created)
	}
}

func TestListEarningsWindowAndOrder(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	vendorID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := repo.AppendEarning(ctx, newEarningEvent(vendorID, uuid.New(), 1_000*int64(i+1), 100, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	start := base.Add(time.Hour)
	end := base.Add(3 * time.Hour)
	events, err := repo.ListEarnings(ctx, vendorID, Window{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, events, 2)
	// end bound is exclusive, start inclusive
	assert.Equal(t, int64(2_000), events[0].GrossCents)
	assert.Equal(t, int64(3_000), events[1].GrossCents)
	assert.Less(t, events[0].Seq, events[1].Seq)
}

func TestSumEarningsDefaultsToZero(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)

	totals, err := repo.SumEarnings(context.Background(), uuid.New(), Window{})
	require.NoError(t, err)
	assert.Zero(t, totals.GrossCents)
	assert.Zero(t, totals.PlatformFeeCents)
	assert.Zero(t, totals.NetCents)
}

func TestSumEarningsAggregates(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	vendorID := uuid.New()
	now := time.Now().UTC()
	_, err := repo.AppendEarning(ctx, newEarningEvent(vendorID, uuid.New(), 10_000, 1_000, now))
	require.NoError(t, err)
	_, err = repo.AppendEarning(ctx, newEarningEvent(vendorID, uuid.New(), 5_000, 250, now))
	require.NoError(t, err)
	// another vendor's money stays out of the sums
	_, err = repo.AppendEarning(ctx, newEarningEvent(uuid.New(), uuid.New(), 77_777, 7, now))
	require.NoError(t, err)

	totals, err := repo.SumEarnings(ctx, vendorID, Window{})
	require.NoError(t, err)
	assert.Equal(t, int64(15_000), totals.GrossCents)
	assert.Equal(t, int64(1_250), totals.PlatformFeeCents)
	assert.Equal(t, int64(13_750), totals.NetCents)
}

func TestSumWithdrawnIgnoresFailed(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	vendorID := uuid.New()
	now := time.Now().UTC()
	rows := []models.Withdrawal{
		{ID: uuid.New(), VendorStoreID: vendorID, AmountCents: 2_000, IdempotencyKey: "a", Status: enums.WithdrawalStatusPending, RequestedAt: now},
		{ID: uuid.New(), VendorStoreID: vendorID, AmountCents: 3_000, IdempotencyKey: "b", Status: enums.WithdrawalStatusCompleted, RequestedAt: now},
		{ID: uuid.New(), VendorStoreID: vendorID, AmountCents: 9_000, IdempotencyKey: "c", Status: enums.WithdrawalStatusFailed, RequestedAt: now},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	total, err := repo.SumWithdrawn(ctx, vendorID, Window{})
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), total)
}

func TestLockVendorIsNoopOffPostgres(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)

	require.NoError(t, repo.LockVendor(context.Background(), db, uuid.New()))
}
