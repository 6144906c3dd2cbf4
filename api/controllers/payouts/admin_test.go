package payouts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	"github.com/angelmondragon/settlements-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlements-backend/pkg/errors"
)

type stubSettlementService struct {
	settleFn func(ctx context.Context, id uuid.UUID, outcome enums.PayoutOutcome, reason *string) (*models.Withdrawal, error)
}

func (s *stubSettlementService) SettleWithdrawal(ctx context.Context, id uuid.UUID, outcome enums.PayoutOutcome, reason *string) (*models.Withdrawal, error) {
	if s.settleFn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return s.settleFn(ctx, id, outcome, reason)
}

func TestAdminPayoutSettleCompletes(t *testing.T) {
	paymentID := uuid.New()
	settledAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var gotOutcome enums.PayoutOutcome
	service := &stubSettlementService{
		settleFn: func(_ context.Context, id uuid.UUID, outcome enums.PayoutOutcome, _ *string) (*models.Withdrawal, error) {
			gotOutcome = outcome
			return &models.Withdrawal{
				ID:          id,
				AmountCents: 9_050,
				Status:      outcome.Status(),
				SettledAt:   &settledAt,
			}, nil
		},
	}
	handler := AdminPayoutSettle(service, testLogger())

	body, _ := json.Marshal(settlePaymentRequest{Outcome: "completed"})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payouts/"+paymentID.String()+"/settle", bytes.NewReader(body))
	req = withURLParam(req, "paymentId", paymentID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if gotOutcome != enums.PayoutOutcomeCompleted {
		t.Fatalf("unexpected outcome %s", gotOutcome)
	}
	var envelope paymentEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Status != string(enums.WithdrawalStatusCompleted) {
		t.Fatalf("unexpected status %s", envelope.Status)
	}
	if envelope.Amount != "90.50" {
		t.Fatalf("expected 90.50 got %s", envelope.Amount)
	}
}

func TestAdminPayoutSettleRejectsUnknownOutcome(t *testing.T) {
	handler := AdminPayoutSettle(&stubSettlementService{}, testLogger())

	body := []byte(`{"outcome":"refunded"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payouts/"+uuid.NewString()+"/settle", bytes.NewReader(body))
	req = withURLParam(req, "paymentId", uuid.NewString())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestAdminPayoutSettleMapsTerminalConflict(t *testing.T) {
	service := &stubSettlementService{
		settleFn: func(context.Context, uuid.UUID, enums.PayoutOutcome, *string) (*models.Withdrawal, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal already settled")
		},
	}
	handler := AdminPayoutSettle(service, testLogger())

	body, _ := json.Marshal(settlePaymentRequest{Outcome: "failed", Reason: strPtr("rail rejected")})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payouts/"+uuid.NewString()+"/settle", bytes.NewReader(body))
	req = withURLParam(req, "paymentId", uuid.NewString())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeStateConflict) {
		t.Fatalf("unexpected code %s", payload.Error.Code)
	}
}

func strPtr(value string) *string {
	return &value
}
