package ledger

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	"github.com/angelmondragon/settlements-backend/pkg/enums"
)

// Window is a half-open [Start, End) time filter. Nil bounds are unbounded.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// EarningTotals aggregates a vendor's earning events over a window.
type EarningTotals struct {
	GrossCents       int64
	PlatformFeeCents int64
	NetCents         int64
}

// Repository manages persistence for earning events and the balance inputs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	AppendEarning(ctx context.Context, event *models.EarningEvent) (bool, error)
	ListEarnings(ctx context.Context, vendorStoreID uuid.UUID, window Window) ([]models.EarningEvent, error)
	SumEarnings(ctx context.Context, vendorStoreID uuid.UUID, window Window) (EarningTotals, error)
	SumWithdrawn(ctx context.Context, vendorStoreID uuid.UUID, window Window) (int64, error)
	LockVendor(ctx context.Context, tx *gorm.DB, vendorStoreID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// AppendEarning inserts the event, treating a (vendor, order) collision as a
// replay: the row already on disk wins and is loaded back into event. Returns
// true when this call created the row.
func (r *repository) AppendEarning(ctx context.Context, event *models.EarningEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vendor_store_id"}, {Name: "order_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var existing models.EarningEvent
	if err := r.db.WithContext(ctx).
		Where("vendor_store_id = ? AND order_id = ?", event.VendorStoreID, event.OrderID).
		First(&existing).Error; err != nil {
		return false, err
	}
	*event = existing
	return false, nil
}

func (r *repository) ListEarnings(ctx context.Context, vendorStoreID uuid.UUID, window Window) ([]models.EarningEvent, error) {
	var events []models.EarningEvent
	q := r.db.WithContext(ctx).Where("vendor_store_id = ?", vendorStoreID)
	q = applyWindow(q, "occurred_at", window)
	if err := q.Order("occurred_at ASC, seq ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) SumEarnings(ctx context.Context, vendorStoreID uuid.UUID, window Window) (EarningTotals, error) {
	var totals EarningTotals
	q := r.db.WithContext(ctx).
		Model(&models.EarningEvent{}).
		Where("vendor_store_id = ?", vendorStoreID)
	q = applyWindow(q, "occurred_at", window)
	err := q.Select(
		"COALESCE(SUM(gross_cents), 0) AS gross_cents, " +
			"COALESCE(SUM(platform_fee_cents), 0) AS platform_fee_cents, " +
			"COALESCE(SUM(net_cents), 0) AS net_cents",
	).Scan(&totals).Error
	if err != nil {
		return EarningTotals{}, err
	}
	return totals, nil
}

// SumWithdrawn counts pending and completed withdrawals; failed ones return
// funds to the balance.
func (r *repository) SumWithdrawn(ctx context.Context, vendorStoreID uuid.UUID, window Window) (int64, error) {
	var total int64
	q := r.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("vendor_store_id = ? AND status <> ?", vendorStoreID, enums.WithdrawalStatusFailed)
	q = applyWindow(q, "requested_at", window)
	err := q.Select("COALESCE(SUM(amount_cents), 0)").Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// LockVendor serializes balance-check-then-write sequences for one vendor
// within the surrounding transaction. Advisory locks are a Postgres feature;
// on other dialects the unique indexes remain the only guard.
func (r *repository) LockVendor(ctx context.Context, tx *gorm.DB, vendorStoreID uuid.UUID) error {
	if tx == nil {
		tx = r.db
	}
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(?)", advisoryLockKey(vendorStoreID)).Error
}

// advisoryLockKey folds the uuid into the bigint keyspace pg_advisory_xact_lock expects.
func advisoryLockKey(id uuid.UUID) int64 {
	hi := binary.BigEndian.Uint64(id[:8])
	lo := binary.BigEndian.Uint64(id[8:])
	return int64(hi ^ lo)
}

func applyWindow(q *gorm.DB, column string, window Window) *gorm.DB {
	if window.Start != nil {
		q = q.Where(column+" >= ?", *window.Start)
	}
	if window.End != nil {
		q = q.Where(column+" < ?", *window.End)
	}
	return q
}
