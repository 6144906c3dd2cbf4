package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlements-backend/pkg/errors"
)

// RecordEarningInput carries one paid order's money split for the vendor.
type RecordEarningInput struct {
	VendorStoreID    uuid.UUID
	OrderID          uuid.UUID
	GrossCents       int64
	PlatformFeeCents int64
	NetCents         int64
	OccurredAt       time.Time
}

// BalanceView is the derived state of a vendor's ledger. Nothing is stored;
// every field is recomputed from earning events and withdrawals.
type BalanceView struct {
	TotalEarningsCents  int64
	PlatformFeesCents   int64
	TotalWithdrawnCents int64
	CurrentBalanceCents int64
}

// ServiceParams groups dependencies for the ledger service.
type ServiceParams struct {
	Repo Repository
}

// Service owns earning ingestion and balance derivation.
type Service struct {
	repo Repository
}

// NewService builds a ledger service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// Repo exposes the underlying repository for collaborators that need to share
// a transaction with their own writes.
func (s *Service) Repo() Repository {
	return s.repo
}

// RecordEarning validates and appends one earning event. Returns the stored
// event and whether this call was a replay of an already-recorded order.
func (s *Service) RecordEarning(ctx context.Context, input RecordEarningInput) (*models.EarningEvent, bool, error) {
	if input.VendorStoreID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "vendor store id required")
	}
	if input.OrderID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.GrossCents < 0 || input.PlatformFeeCents < 0 || input.NetCents < 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "amounts must be non-negative")
	}
	if input.NetCents != input.GrossCents-input.PlatformFeeCents {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "net must equal gross minus platform fee")
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	event := &models.EarningEvent{
		ID:               uuid.New(),
		VendorStoreID:    input.VendorStoreID,
		OrderID:          input.OrderID,
		GrossCents:       input.GrossCents,
		PlatformFeeCents: input.PlatformFeeCents,
		NetCents:         input.NetCents,
		OccurredAt:       occurredAt,
	}

	created, err := s.repo.AppendEarning(ctx, event)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append earning event")
	}
	return event, !created, nil
}

// ListEarnings returns a vendor's earning events inside the window, oldest first.
func (s *Service) ListEarnings(ctx context.Context, vendorStoreID uuid.UUID, window Window) ([]models.EarningEvent, error) {
	if vendorStoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor store id required")
	}
	events, err := s.repo.ListEarnings(ctx, vendorStoreID, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list earning events")
	}
	return events, nil
}

// ComputeBalance derives the vendor's balance from the full unwindowed
// history. A vendor with no activity gets the zero view.
func (s *Service) ComputeBalance(ctx context.Context, vendorStoreID uuid.UUID) (BalanceView, error) {
	if vendorStoreID == uuid.Nil {
		return BalanceView{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor store id required")
	}
	return s.computeBalance(ctx, s.repo, vendorStoreID)
}

// ComputeBalanceWith derives the balance through the given repository, letting
// callers pin the read inside their own transaction.
func (s *Service) ComputeBalanceWith(ctx context.Context, repo Repository, vendorStoreID uuid.UUID) (BalanceView, error) {
	if repo == nil {
		repo = s.repo
	}
	return s.computeBalance(ctx, repo, vendorStoreID)
}

func (s *Service) computeBalance(ctx context.Context, repo Repository, vendorStoreID uuid.UUID) (BalanceView, error) {
	totals, err := repo.SumEarnings(ctx, vendorStoreID, Window{})
	if err != nil {
		return BalanceView{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum earnings")
	}
	withdrawn, err := repo.SumWithdrawn(ctx, vendorStoreID, Window{})
	if err != nil {
		return BalanceView{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum withdrawals")
	}
	// totalEarnings is the gross sum; the fee column keeps the identity
	// currentBalance = totalEarnings - platformFees - totalWithdrawn intact.
	return BalanceView{
		TotalEarningsCents:  totals.GrossCents,
		PlatformFeesCents:   totals.PlatformFeeCents,
		TotalWithdrawnCents: withdrawn,
		CurrentBalanceCents: totals.NetCents - withdrawn,
	}, nil
}
