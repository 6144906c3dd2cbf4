package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlements-backend/api/controllers"
	payoutcontrollers "github.com/angelmondragon/settlements-backend/api/controllers/payouts"
	"github.com/angelmondragon/settlements-backend/api/middleware"
	"github.com/angelmondragon/settlements-backend/internal/ledger"
	payoutsvc "github.com/angelmondragon/settlements-backend/internal/payouts"
	"github.com/angelmondragon/settlements-backend/pkg/auth/session"
	"github.com/angelmondragon/settlements-backend/pkg/config"
	"github.com/angelmondragon/settlements-backend/pkg/db/models"
	"github.com/angelmondragon/settlements-backend/pkg/enums"
	"github.com/angelmondragon/settlements-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/settlements-backend/pkg/redis"
)

// PayoutService is everything the HTTP layer needs from the payouts domain.
type PayoutService interface {
	RequestWithdrawal(ctx context.Context, vendorStoreID uuid.UUID, amountCents int64, idempotencyKey string) (*models.Withdrawal, bool, error)
	GetWithdrawal(ctx context.Context, vendorStoreID, id uuid.UUID) (*models.Withdrawal, error)
	ListHistory(ctx context.Context, vendorStoreID uuid.UUID, params payoutsvc.HistoryParams) (payoutsvc.HistoryPage, error)
	Summarize(ctx context.Context, vendorStoreID uuid.UUID, window ledger.Window) (payoutsvc.Summary, error)
	SettleWithdrawal(ctx context.Context, id uuid.UUID, outcome enums.PayoutOutcome, reason *string) (*models.Withdrawal, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *pkgredis.Client,
	sessionChecker session.AccessSessionChecker,
	payoutService PayoutService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	pingers := map[string]controllers.Pinger{}
	if dbP != nil {
		pingers["database"] = dbP
	}
	var idempotencyStore pkgredis.IdempotencyStore
	if redisClient != nil {
		pingers["redis"] = redisClient
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})

	r.Route("/api/v1/vendor", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
		r.Use(middleware.StoreContext(logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Post("/payouts", payoutcontrollers.VendorPayoutCreate(payoutService, logg))
		r.Get("/payouts/history", payoutcontrollers.VendorPayoutHistory(payoutService, logg))
		r.Get("/payouts/summary", payoutcontrollers.VendorPayoutSummary(payoutService, logg))
		r.Get("/payouts/{paymentId}", payoutcontrollers.VendorPayoutDetail(payoutService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Post("/payouts/{paymentId}/settle", payoutcontrollers.AdminPayoutSettle(payoutService, logg))
	})

	return r
}
