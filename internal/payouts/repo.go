package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlements-backend/internal/ledger"
	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	"github.com/angelmondragon/settlements-backend/pkg/enums"
	"github.com/angelmondragon/settlements-backend/pkg/pagination"
)

// Repository manages persistence for withdrawal records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateWithdrawal(ctx context.Context, withdrawal *models.Withdrawal) error
	FindByIdempotencyKey(ctx context.Context, vendorStoreID uuid.UUID, key string) (*models.Withdrawal, error)
	FindByID(ctx context.Context, vendorStoreID, id uuid.UUID) (*models.Withdrawal, error)
	FindAnyByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, vendorStoreID uuid.UUID, window ledger.Window, offset, limit int) ([]models.Withdrawal, error)
	CountWithdrawals(ctx context.Context, vendorStoreID uuid.UUID, window ledger.Window) (int64, error)
	ListRecent(ctx context.Context, vendorStoreID uuid.UUID, limit int) ([]models.Withdrawal, error)
	ListStalePending(ctx context.Context, olderThan time.Time, cursor *pagination.Cursor, limit int) ([]models.Withdrawal, *pagination.Cursor, error)
	MarkSettled(ctx context.Context, id uuid.UUID, status enums.WithdrawalStatus, reason *string, settledAt time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payouts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateWithdrawal(ctx context.Context, withdrawal *models.Withdrawal) error {
	return r.db.WithContext(ctx).Create(withdrawal).Error
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, vendorStoreID uuid.UUID, key string) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := r.db.WithContext(ctx).
		Where("vendor_store_id = ? AND idempotency_key = ?", vendorStoreID, key).
		First(&withdrawal).Error; err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

func (r *repository) FindByID(ctx context.Context, vendorStoreID, id uuid.UUID) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := r.db.WithContext(ctx).
		Where("id = ? AND vendor_store_id = ?", id, vendorStoreID).
		First(&withdrawal).Error; err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// FindAnyByID looks a withdrawal up without vendor scoping, for settlement callers.
func (r *repository) FindAnyByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&withdrawal).Error; err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// ListWithdrawals orders by (requested_at, seq) ascending so offset pages stay
// stable while new requests append behind the last page.
func (r *repository) ListWithdrawals(ctx context.Context, vendorStoreID uuid.UUID, window ledger.Window, offset, limit int) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	q := r.db.WithContext(ctx).Where("vendor_store_id = ?", vendorStoreID)
	q = applyRequestedWindow(q, window)
	if err := q.Order("requested_at ASC, seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&withdrawals).Error; err != nil {
		return nil, err
	}
	return withdrawals, nil
}

func (r *repository) CountWithdrawals(ctx context.Context, vendorStoreID uuid.UUID, window ledger.Window) (int64, error) {
	var total int64
	q := r.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("vendor_store_id = ?", vendorStoreID)
	q = applyRequestedWindow(q, window)
	if err := q.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) ListRecent(ctx context.Context, vendorStoreID uuid.UUID, limit int) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	if err := r.db.WithContext(ctx).
		Where("vendor_store_id = ?", vendorStoreID).
		Order("seq DESC").
		Limit(limit).
		Find(&withdrawals).Error; err != nil {
		return nil, err
	}
	return withdrawals, nil
}

// ListStalePending iterates pending rows older than the threshold by keyset on
// seq, returning a resume cursor when a full page came back.
func (r *repository) ListStalePending(ctx context.Context, olderThan time.Time, cursor *pagination.Cursor, limit int) ([]models.Withdrawal, *pagination.Cursor, error) {
	var withdrawals []models.Withdrawal
	q := r.db.WithContext(ctx).
		Where("status = ? AND requested_at < ?", enums.WithdrawalStatusPending, olderThan)
	if cursor != nil {
		q = q.Where("seq > ?", cursor.Seq)
	}
	if err := q.Order("seq ASC").Limit(limit).Find(&withdrawals).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if limit > 0 && len(withdrawals) == limit {
		next = &pagination.Cursor{Seq: withdrawals[len(withdrawals)-1].Seq}
	}
	return withdrawals, next, nil
}

// MarkSettled transitions a pending withdrawal to its terminal status. The
// status guard in the WHERE clause makes the settle race-free: the first
// settlement wins and later attempts touch zero rows.
func (r *repository) MarkSettled(ctx context.Context, id uuid.UUID, status enums.WithdrawalStatus, reason *string, settledAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, enums.WithdrawalStatusPending).
		Updates(map[string]any{
			"status":         status,
			"failure_reason": reason,
			"settled_at":     settledAt,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func applyRequestedWindow(q *gorm.DB, window ledger.Window) *gorm.DB {
	if window.Start != nil {
		q = q.Where("requested_at >= ?", *window.Start)
	}
	if window.End != nil {
		q = q.Where("requested_at < ?", *window.End)
	}
	return q
}
