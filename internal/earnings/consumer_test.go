package earnings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlements-backend/internal/ledger"
	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	"github.com/angelmondragon/settlements-backend/pkg/events"
	"github.com/angelmondragon/settlements-backend/pkg/logger"
)

type fakeLedgerRepo struct {
	appendErr error
	appended  []*models.EarningEvent
}

func (f *fakeLedgerRepo) WithTx(tx *gorm.DB) ledger.Repository { return f }

func (f *fakeLedgerRepo) AppendEarning(ctx context.Context, event *models.EarningEvent) (bool, error) {
	if f.appendErr != nil {
		return false, f.appendErr
	}
	f.appended = append(f.appended, event)
	return true, nil
}

func (f *fakeLedgerRepo) ListEarnings(ctx context.Context, vendorStoreID uuid.UUID, window ledger.Window) ([]models.EarningEvent, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) SumEarnings(ctx context.Context, vendorStoreID uuid.UUID, window ledger.Window) (ledger.EarningTotals, error) {
	return ledger.EarningTotals{}, nil
}

func (f *fakeLedgerRepo) SumWithdrawn(ctx context.Context, vendorStoreID uuid.UUID, window ledger.Window) (int64, error) {
	return 0, nil
}

func (f *fakeLedgerRepo) LockVendor(ctx context.Context, tx *gorm.DB, vendorStoreID uuid.UUID) error {
	return nil
}

type fakeMarkStore struct {
	setNXResult bool
	deleted     []string
}

func (f *fakeMarkStore) Get(context.Context, string) (string, error) { return "", nil }

func (f *fakeMarkStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return f.setNXResult, nil
}

func (f *fakeMarkStore) IdempotencyKey(scope, id string) string {
	return "stl:idempotency:" + scope + ":" + id
}

func (f *fakeMarkStore) Del(_ context.Context, keys ...string) error {
	f.deleted = append(f.deleted, keys...)
	return nil
}

func newTestConsumer(t *testing.T, repo ledger.Repository, store *fakeMarkStore) *Consumer {
	t.Helper()
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: repo})
	if err != nil {
		t.Fatalf("construct ledger service: %v", err)
	}
	manager, err := events.NewIdempotencyManager(store, time.Hour)
	if err != nil {
		t.Fatalf("construct idempotency manager: %v", err)
	}
	return &Consumer{
		ledger:      ledgerSvc,
		idempotency: manager,
		logg:        logger.New(logger.Options{ServiceName: "earnings-test"}),
	}
}

func orderPaidMessage(t *testing.T, payload events.OrderPaidPayload) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(events.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		ID:         "m-1",
		Data:       envelope,
		Attributes: map[string]string{events.AttributeEventType: events.TypeOrderPaid},
	}
}

func TestProcessRecordsOrderPayment(t *testing.T) {
	repo := &fakeLedgerRepo{}
	consumer := newTestConsumer(t, repo, &fakeMarkStore{setNXResult: true})

	payload := events.OrderPaidPayload{
		OrderID:          uuid.New(),
		VendorStoreID:    uuid.New(),
		GrossCents:       10_000,
		PlatformFeeCents: 1_500,
		NetCents:         8_500,
		PaidAt:           time.Now().UTC(),
	}
	result := consumer.process(context.Background(), orderPaidMessage(t, payload))
	if !result.ack || result.nack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(repo.appended) != 1 {
		t.Fatalf("expected one append, got %d", len(repo.appended))
	}
	if repo.appended[0].NetCents != 8_500 {
		t.Fatalf("unexpected net: %d", repo.appended[0].NetCents)
	}
}

func TestProcessSkipsOtherEventTypes(t *testing.T) {
	repo := &fakeLedgerRepo{}
	consumer := newTestConsumer(t, repo, &fakeMarkStore{setNXResult: true})

	msg := &pubsub.Message{
		ID:         "m-2",
		Attributes: map[string]string{events.AttributeEventType: "order.shipped"},
	}
	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatal("expected irrelevant events to be acked")
	}
	if len(repo.appended) != 0 {
		t.Fatal("irrelevant events must not touch the ledger")
	}
}

func TestProcessAcksMalformedEnvelope(t *testing.T) {
	repo := &fakeLedgerRepo{}
	consumer := newTestConsumer(t, repo, &fakeMarkStore{setNXResult: true})

	msg := &pubsub.Message{
		ID:         "m-3",
		Data:       []byte("{not json"),
		Attributes: map[string]string{events.AttributeEventType: events.TypeOrderPaid},
	}
	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatal("expected malformed envelope to be acked")
	}
}

func TestProcessAcksAlreadyProcessed(t *testing.T) {
	repo := &fakeLedgerRepo{}
	consumer := newTestConsumer(t, repo, &fakeMarkStore{setNXResult: false})

	payload := events.OrderPaidPayload{
		OrderID:       uuid.New(),
		VendorStoreID: uuid.New(),
		GrossCents:    100,
		NetCents:      100,
	}
	result := consumer.process(context.Background(), orderPaidMessage(t, payload))
	if !result.ack {
		t.Fatal("expected duplicate event to be acked")
	}
	if len(repo.appended) != 0 {
		t.Fatal("duplicate event must not touch the ledger")
	}
}

func TestProcessAcksInvalidAmounts(t *testing.T) {
	repo := &fakeLedgerRepo{}
	consumer := newTestConsumer(t, repo, &fakeMarkStore{setNXResult: true})

	payload := events.OrderPaidPayload{
		OrderID:          uuid.New(),
		VendorStoreID:    uuid.New(),
		GrossCents:       100,
		PlatformFeeCents: 50,
		NetCents:         99,
	}
	result := consumer.process(context.Background(), orderPaidMessage(t, payload))
	if !result.ack {
		t.Fatal("expected unfixable payload to be acked")
	}
	if len(repo.appended) != 0 {
		t.Fatal("invalid amounts must not reach the ledger")
	}
}

func TestProcessNacksTransientFailureAndReleasesMark(t *testing.T) {
	repo := &fakeLedgerRepo{appendErr: errors.New("connection refused")}
	store := &fakeMarkStore{setNXResult: true}
	consumer := newTestConsumer(t, repo, store)

	payload := events.OrderPaidPayload{
		OrderID:       uuid.New(),
		VendorStoreID: uuid.New(),
		GrossCents:    100,
		NetCents:      100,
	}
	result := consumer.process(context.Background(), orderPaidMessage(t, payload))
	if !result.nack {
		t.Fatal("expected transient failure to nack")
	}
	if len(store.deleted) != 1 {
		t.Fatal("expected the idempotency mark to be released for retry")
	}
}
