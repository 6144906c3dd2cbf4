package earnings

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlements-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/settlements-backend/pkg/errors"
	"github.com/angelmondragon/settlements-backend/pkg/events"
	"github.com/angelmondragon/settlements-backend/pkg/logger"
)

const orderPaidConsumer = "earnings-worker"

// Consumer ingests order.paid events from the marketplace and appends them to
// the vendor ledger. Appends are deduplicated twice: the Redis mark filters
// redeliveries cheaply, and the (vendor, order) unique index is the final word.
type Consumer struct {
	ledger       *ledger.Service
	subscription *pubsub.Subscriber
	idempotency  *events.IdempotencyManager
	logg         *logger.Logger
}

// NewConsumer builds the order-paid consumer.
func NewConsumer(ledgerSvc *ledger.Service, subscription *pubsub.Subscriber, manager *events.IdempotencyManager, logg *logger.Logger) (*Consumer, error) {
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		ledger:       ledgerSvc,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes[events.AttributeEventType]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != events.TypeOrderPaid {
		c.logg.Info(logCtx, "skipping non-payment event")
		return processResult{ack: true}
	}

	var envelope events.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, orderPaidConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	var payload events.OrderPaidPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		// malformed data never becomes processable; keep the mark and drop it
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"order_id":        payload.OrderID.String(),
		"vendor_store_id": payload.VendorStoreID.String(),
		"net_cents":       payload.NetCents,
	})

	occurredAt := payload.PaidAt
	if occurredAt.IsZero() {
		occurredAt = envelope.OccurredAt
	}

	_, replayed, err := c.ledger.RecordEarning(ctx, ledger.RecordEarningInput{
		VendorStoreID:    payload.VendorStoreID,
		OrderID:          payload.OrderID,
		GrossCents:       payload.GrossCents,
		PlatformFeeCents: payload.PlatformFeeCents,
		NetCents:         payload.NetCents,
		OccurredAt:       occurredAt,
	})
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodeValidation {
			// the producer sent amounts that can never reconcile; retrying won't help
			c.logg.Error(logCtx, "rejecting invalid order payment", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "recording earning failed", err)
		_ = c.idempotency.Delete(ctx, orderPaidConsumer, eventID)
		return processResult{nack: true}
	}

	if replayed {
		c.logg.Info(logCtx, "order payment already on the ledger")
	} else {
		c.logg.Info(logCtx, "order payment recorded")
	}
	return processResult{ack: true}
}
