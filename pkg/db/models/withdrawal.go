package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlements-backend/pkg/enums"
)

// Withdrawal is a vendor payout request. The caller-supplied idempotency key
// is unique per vendor, which makes retried requests resolve to the original
// row at the storage layer. Status moves pending -> completed|failed exactly
// once; completed and failed rows are immutable.
type Withdrawal struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Seq            int64                  `gorm:"column:seq;->"`
	VendorStoreID  uuid.UUID              `gorm:"column:vendor_store_id;type:uuid;not null;uniqueIndex:uq_withdrawals_vendor_idem_key,priority:1"`
	AmountCents    int64                  `gorm:"column:amount_cents;not null"`
	IdempotencyKey string                 `gorm:"column:idempotency_key;not null;uniqueIndex:uq_withdrawals_vendor_idem_key,priority:2"`
	Status         enums.WithdrawalStatus `gorm:"column:status;type:withdrawal_status;not null;default:'pending'"`
	FailureReason  *string                `gorm:"column:failure_reason"`
	RequestedAt    time.Time              `gorm:"column:requested_at;not null"`
	SettledAt      *time.Time             `gorm:"column:settled_at"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name used by the goose migrations.
func (Withdrawal) TableName() string {
	return "withdrawals"
}
