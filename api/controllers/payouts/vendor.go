package payouts

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlements-backend/api/controllers/vendorcontext"
	"github.com/angelmondragon/settlements-backend/api/responses"
	"github.com/angelmondragon/settlements-backend/api/validators"
	"github.com/angelmondragon/settlements-backend/internal/ledger"
	payoutsvc "github.com/angelmondragon/settlements-backend/internal/payouts"
	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlements-backend/pkg/errors"
	"github.com/angelmondragon/settlements-backend/pkg/logger"
	"github.com/angelmondragon/settlements-backend/pkg/pagination"
	"github.com/angelmondragon/settlements-backend/pkg/types"
)

type payoutService interface {
	RequestWithdrawal(ctx context.Context, vendorStoreID uuid.UUID, amountCents int64, idempotencyKey string) (*models.Withdrawal, bool, error)
	GetWithdrawal(ctx context.Context, vendorStoreID, id uuid.UUID) (*models.Withdrawal, error)
	ListHistory(ctx context.Context, vendorStoreID uuid.UUID, params payoutsvc.HistoryParams) (payoutsvc.HistoryPage, error)
	Summarize(ctx context.Context, vendorStoreID uuid.UUID, window ledger.Window) (payoutsvc.Summary, error)
}

type createPaymentRequest struct {
	AmountCents    int64  `json:"amount_cents" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" validate:"required,min=1,max=255"`
}

type paymentResponse struct {
	ID            uuid.UUID  `json:"id"`
	VendorStoreID uuid.UUID  `json:"vendor_store_id"`
	Amount        string     `json:"amount"`
	AmountCents   int64      `json:"amount_cents"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	RequestedAt   time.Time  `json:"requested_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

// paymentEnvelope flattens the record's fields next to the success flag; the
// dashboard reads them at the top level.
type paymentEnvelope struct {
	Success bool `json:"success"`
	paymentResponse
}

type historyEnvelope struct {
	Success    bool              `json:"success"`
	Payments   []paymentResponse `json:"payments"`
	Pagination pagination.Page   `json:"pagination"`
}

type summaryEnvelope struct {
	Success             bool              `json:"success"`
	TotalEarnings       string            `json:"totalEarnings"`
	TotalEarningsCents  int64             `json:"totalEarningsCents"`
	PlatformFees        string            `json:"platformFees"`
	PlatformFeesCents   int64             `json:"platformFeesCents"`
	TotalWithdrawn      string            `json:"totalWithdrawn"`
	TotalWithdrawnCents int64             `json:"totalWithdrawnCents"`
	CurrentBalance      string            `json:"currentBalance"`
	CurrentBalanceCents int64             `json:"currentBalanceCents"`
	RecentPayments      []paymentResponse `json:"recentPayments"`
}

// VendorPayoutCreate reserves funds for a new payout. A retried request with
// the same idempotency key returns the original record with a 200 instead of
// a 201.
func VendorPayoutCreate(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		storeID, err := vendorcontext.ResolveVendorStoreID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, created, err := svc.RequestWithdrawal(r.Context(), storeID, payload.AmountCents, payload.IdempotencyKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := paymentEnvelope{Success: true, paymentResponse: newPaymentResponse(payment)}
		if created {
			responses.WriteSuccessStatus(w, http.StatusCreated, resp)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// VendorPayoutDetail returns a single payment scoped to the caller's store.
func VendorPayoutDetail(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		storeID, err := vendorcontext.ResolveVendorStoreID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID, err := parsePaymentID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.GetWithdrawal(r.Context(), storeID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, paymentEnvelope{Success: true, paymentResponse: newPaymentResponse(payment)})
	}
}

// VendorPayoutHistory lists the store's payments oldest first, paginated.
func VendorPayoutHistory(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		storeID, err := vendorcontext.ResolveVendorStoreID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 1, 1, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		window, err := parseWindow(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListHistory(r.Context(), storeID, payoutsvc.HistoryParams{
			Page:   page,
			Limit:  limit,
			Window: window,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payments := make([]paymentResponse, 0, len(result.Items))
		for i := range result.Items {
			payments = append(payments, newPaymentResponse(&result.Items[i]))
		}

		responses.WriteSuccess(w, historyEnvelope{
			Success:    true,
			Payments:   payments,
			Pagination: result.Page,
		})
	}
}

// VendorPayoutSummary returns windowed totals plus the live balance snapshot.
func VendorPayoutSummary(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		storeID, err := vendorcontext.ResolveVendorStoreID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		window, err := parseWindow(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summarize(r.Context(), storeID, window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		recent := make([]paymentResponse, 0, len(summary.RecentPayments))
		for i := range summary.RecentPayments {
			recent = append(recent, newPaymentResponse(&summary.RecentPayments[i]))
		}

		responses.WriteSuccess(w, summaryEnvelope{
			Success:             true,
			TotalEarnings:       types.CentsToDecimalString(summary.TotalEarningsCents),
			TotalEarningsCents:  summary.TotalEarningsCents,
			PlatformFees:        types.CentsToDecimalString(summary.PlatformFeesCents),
			PlatformFeesCents:   summary.PlatformFeesCents,
			TotalWithdrawn:      types.CentsToDecimalString(summary.TotalWithdrawnCents),
			TotalWithdrawnCents: summary.TotalWithdrawnCents,
			CurrentBalance:      types.CentsToDecimalString(summary.CurrentBalanceCents),
			CurrentBalanceCents: summary.CurrentBalanceCents,
			RecentPayments:      recent,
		})
	}
}

func newPaymentResponse(payment *models.Withdrawal) paymentResponse {
	if payment == nil {
		return paymentResponse{}
	}
	return paymentResponse{
		ID:            payment.ID,
		VendorStoreID: payment.VendorStoreID,
		Amount:        types.CentsToDecimalString(payment.AmountCents),
		AmountCents:   payment.AmountCents,
		Status:        string(payment.Status),
		FailureReason: payment.FailureReason,
		RequestedAt:   payment.RequestedAt,
		SettledAt:     payment.SettledAt,
	}
}

func parsePaymentID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id")
	}
	return id, nil
}

// parseWindow reads the optional startDate/endDate filters; the window is
// half-open [start, end).
func parseWindow(r *http.Request) (ledger.Window, error) {
	start, err := validators.ParseQueryTime(r, "startDate")
	if err != nil {
		return ledger.Window{}, err
	}
	end, err := validators.ParseQueryTime(r, "endDate")
	if err != nil {
		return ledger.Window{}, err
	}
	if start != nil && end != nil && start.After(*end) {
		return ledger.Window{}, pkgerrors.New(pkgerrors.CodeValidation, "startDate must not be after endDate")
	}
	return ledger.Window{Start: start, End: end}, nil
}
