package models

import (
	"time"

	"github.com/google/uuid"
)

// EarningEvent records the vendor-attributable money earned by one completed
// order. Rows are append-only and deduplicated on (vendor_store_id, order_id),
// so redelivered order events never double-count. Seq is assigned by the
// database at append time and is the authoritative ordering tiebreaker;
// occurred_at alone is not trusted to be strictly increasing.
type EarningEvent struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Seq              int64     `gorm:"column:seq;->"`
	VendorStoreID    uuid.UUID `gorm:"column:vendor_store_id;type:uuid;not null;uniqueIndex:uq_earning_events_vendor_order,priority:1"`
	OrderID          uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:uq_earning_events_vendor_order,priority:2"`
	GrossCents       int64     `gorm:"column:gross_cents;not null"`
	PlatformFeeCents int64     `gorm:"column:platform_fee_cents;not null"`
	NetCents         int64     `gorm:"column:net_cents;not null"`
	OccurredAt       time.Time `gorm:"column:occurred_at;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name used by the goose migrations.
func (EarningEvent) TableName() string {
	return "earning_events"
}
