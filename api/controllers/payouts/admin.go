package payouts

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlements-backend/api/responses"
	"github.com/angelmondragon/settlements-backend/api/validators"
	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	"github.com/angelmondragon/settlements-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlements-backend/pkg/errors"
	"github.com/angelmondragon/settlements-backend/pkg/logger"
)

type settlementService interface {
	SettleWithdrawal(ctx context.Context, id uuid.UUID, outcome enums.PayoutOutcome, reason *string) (*models.Withdrawal, error)
}

type settlePaymentRequest struct {
	Outcome string  `json:"outcome" validate:"required,oneof=completed failed"`
	Reason  *string `json:"reason,omitempty"`
}

// AdminPayoutSettle records the settlement rail's verdict on a pending payment.
func AdminPayoutSettle(svc settlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		paymentID, err := parsePaymentID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload settlePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := enums.ParsePayoutOutcome(strings.TrimSpace(payload.Outcome))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outcome"))
			return
		}

		payment, err := svc.SettleWithdrawal(r.Context(), paymentID, outcome, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, paymentEnvelope{Success: true, paymentResponse: newPaymentResponse(payment)})
	}
}
