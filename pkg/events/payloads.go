package events

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaidPayload is the order-completion event body the ledger consumes.
// Amounts are integer minor units; netCents must equal grossCents minus
// platformFeeCents or the consumer rejects the event.
type OrderPaidPayload struct {
	OrderID          uuid.UUID `json:"orderId"`
	VendorStoreID    uuid.UUID `json:"vendorStoreId"`
	GrossCents       int64     `json:"grossCents"`
	PlatformFeeCents int64     `json:"platformFeeCents"`
	NetCents         int64     `json:"netCents"`
	PaidAt           time.Time `json:"paidAt"`
}
