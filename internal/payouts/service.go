package payouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlements-backend/internal/ledger"
	"github.com/angelmondragon/settlements-backend/pkg/config"
	"github.com/angelmondragon/settlements-backend/pkg/db"
	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	"github.com/angelmondragon/settlements-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlements-backend/pkg/errors"
	"github.com/angelmondragon/settlements-backend/pkg/logger"
	"github.com/angelmondragon/settlements-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// HistoryParams selects one page of a vendor's withdrawal history.
type HistoryParams struct {
	Page   int
	Limit  int
	Window ledger.Window
}

// HistoryPage is one page of withdrawal records plus the pagination envelope.
type HistoryPage struct {
	Items []models.Withdrawal
	Page  pagination.Page
}

// Summary is the vendor dashboard view: windowed totals, the live balance and
// the most recent payments regardless of window.
type Summary struct {
	TotalEarningsCents  int64
	PlatformFeesCents   int64
	TotalWithdrawnCents int64
	CurrentBalanceCents int64
	RecentPayments      []models.Withdrawal
}

// ServiceParams groups dependencies for the payouts service.
type ServiceParams struct {
	Repo   Repository
	Ledger *ledger.Service
	Tx     txRunner
	Config config.PayoutsConfig
	Logger *logger.Logger
}

// Service orchestrates withdrawal requests, settlement, history and summaries.
type Service struct {
	repo   Repository
	ledger *ledger.Service
	tx     txRunner
	cfg    config.PayoutsConfig
	logg   *logger.Logger
}

// NewService builds a payouts service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		repo:   params.Repo,
		ledger: params.Ledger,
		tx:     params.Tx,
		cfg:    params.Config,
		logg:   params.Logger,
	}, nil
}

// RequestWithdrawal reserves funds for a vendor payout. The idempotency key
// makes retries converge on the first accepted record: a reused key returns
// the original row untouched, whatever its status. Returns true when this
// call created the withdrawal.
func (s *Service) RequestWithdrawal(ctx context.Context, vendorStoreID uuid.UUID, amountCents int64, idempotencyKey string) (*models.Withdrawal, bool, error) {
	if vendorStoreID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "vendor store id required")
	}
	if idempotencyKey == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}
	if amountCents <= 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	// Fast path: a reused key short-circuits before any balance work.
	existing, err := s.repo.FindByIdempotencyKey(ctx, vendorStoreID, idempotencyKey)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup idempotency key")
	}
	if existing != nil {
		return existing, false, nil
	}

	withdrawal := &models.Withdrawal{
		ID:             uuid.New(),
		VendorStoreID:  vendorStoreID,
		AmountCents:    amountCents,
		IdempotencyKey: idempotencyKey,
		Status:         enums.WithdrawalStatusPending,
		RequestedAt:    time.Now().UTC(),
	}

	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerRepo := s.ledger.Repo().WithTx(tx)
		if err := ledgerRepo.LockVendor(ctx, tx, vendorStoreID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock vendor ledger")
		}

		balance, err := s.ledger.ComputeBalanceWith(ctx, ledgerRepo, vendorStoreID)
		if err != nil {
			return err
		}
		if amountCents > balance.CurrentBalanceCents {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "withdrawal exceeds current balance").
				WithDetails(map[string]any{
					"requestedCents": amountCents,
					"balanceCents":   balance.CurrentBalanceCents,
				})
		}

		if err := s.repo.WithTx(tx).CreateWithdrawal(ctx, withdrawal); err != nil {
			return err
		}
		return nil
	})
	if txErr == nil {
		return withdrawal, true, nil
	}

	// A concurrent retry with the same key can slip past the fast path; the
	// unique index breaks the tie and the winner's row is the answer.
	if db.IsUniqueViolation(txErr, "uq_withdrawals_vendor_idem_key") {
		winner, err := s.repo.FindByIdempotencyKey(ctx, vendorStoreID, idempotencyKey)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refetch after idempotency race")
		}
		return winner, false, nil
	}

	if typed := pkgerrors.As(txErr); typed != nil {
		return nil, false, typed
	}
	return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "request withdrawal")
}

// SettleWithdrawal moves a pending withdrawal to completed or failed. Terminal
// records reject the transition; the first settlement wins under concurrency.
func (s *Service) SettleWithdrawal(ctx context.Context, id uuid.UUID, outcome enums.PayoutOutcome, reason *string) (*models.Withdrawal, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id required")
	}
	if !outcome.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payout outcome %q", outcome))
	}
	if outcome == enums.PayoutOutcomeFailed && (reason == nil || *reason == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason required for failed outcome")
	}
	if outcome == enums.PayoutOutcomeCompleted {
		reason = nil
	}

	settledAt := time.Now().UTC()
	affected, err := s.repo.MarkSettled(ctx, id, outcome.Status(), reason, settledAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle withdrawal")
	}

	record, err := s.repo.FindAnyByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}

	if affected == 0 {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"withdrawal_id": id.String(),
			"status":        record.Status.String(),
			"outcome":       string(outcome),
		})
		s.logg.Warn(ctx, "settlement rejected for terminal withdrawal")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal already settled").
			WithDetails(map[string]any{"status": record.Status.String()})
	}
	return record, nil
}

// GetWithdrawal returns one withdrawal scoped to the vendor. Another vendor's
// record is indistinguishable from a missing one.
func (s *Service) GetWithdrawal(ctx context.Context, vendorStoreID, id uuid.UUID) (*models.Withdrawal, error) {
	if vendorStoreID == uuid.Nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor store id and withdrawal id required")
	}
	record, err := s.repo.FindByID(ctx, vendorStoreID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}
	return record, nil
}

// ListHistory pages through a vendor's withdrawals oldest first. The count and
// the rows share one predicate so totals always reconcile with the page.
func (s *Service) ListHistory(ctx context.Context, vendorStoreID uuid.UUID, params HistoryParams) (HistoryPage, error) {
	if vendorStoreID == uuid.Nil {
		return HistoryPage{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor store id required")
	}

	page := pagination.NormalizePage(params.Page)
	limit := pagination.ClampLimit(params.Limit, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	total, err := s.repo.CountWithdrawals(ctx, vendorStoreID, params.Window)
	if err != nil {
		return HistoryPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count withdrawals")
	}

	items, err := s.repo.ListWithdrawals(ctx, vendorStoreID, params.Window, pagination.Offset(page, limit), limit)
	if err != nil {
		return HistoryPage{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}

	return HistoryPage{
		Items: items,
		Page:  pagination.NewPage(page, limit, total),
	}, nil
}

// Summarize builds the dashboard view. The sums respect the window; the
// current balance never does, and the recent payments ignore it too.
func (s *Service) Summarize(ctx context.Context, vendorStoreID uuid.UUID, window ledger.Window) (Summary, error) {
	if vendorStoreID == uuid.Nil {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor store id required")
	}

	ledgerRepo := s.ledger.Repo()
	totals, err := ledgerRepo.SumEarnings(ctx, vendorStoreID, window)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum earnings")
	}
	withdrawn, err := ledgerRepo.SumWithdrawn(ctx, vendorStoreID, window)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum withdrawals")
	}
	balance, err := s.ledger.ComputeBalance(ctx, vendorStoreID)
	if err != nil {
		return Summary{}, err
	}

	recentLimit := s.cfg.RecentPaymentsLimit
	if recentLimit <= 0 {
		recentLimit = 5
	}
	recent, err := s.repo.ListRecent(ctx, vendorStoreID, recentLimit)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recent withdrawals")
	}

	return Summary{
		TotalEarningsCents:  totals.GrossCents,
		PlatformFeesCents:   totals.PlatformFeeCents,
		TotalWithdrawnCents: withdrawn,
		CurrentBalanceCents: balance.CurrentBalanceCents,
		RecentPayments:      recent,
	}, nil
}
