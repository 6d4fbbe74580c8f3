package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/eupaygrid/eupaygrid/internal/config"
	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/ledger"
	"github.com/eupaygrid/eupaygrid/internal/middleware"
	"github.com/eupaygrid/eupaygrid/internal/outbox"
	"github.com/eupaygrid/eupaygrid/internal/projection"
	"github.com/eupaygrid/eupaygrid/internal/replay"
	"github.com/eupaygrid/eupaygrid/internal/reserve"
	"github.com/eupaygrid/eupaygrid/internal/settlement"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. A nil DB wires the
// in-memory stores, which is only permitted in development. The returned relay
// is started by the server and drains the outbox until shutdown.
func Setup(app *fiber.App, d Deps) (*outbox.Relay, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Actor())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	// Core components: the append-only journal, the balance projection, the
	// outbox, and the institution directory.
	backend := settlement.NewStaticBackend(d.Cfg.SettlementLayer)
	var (
		journal      ledger.Store
		proj         projection.Projector
		events       outbox.Store
		dirRepo      directory.Repository
		settleStore  settlement.Store
		reserveStore reserve.Store
	)
	if d.DB != nil {
		journal = ledger.NewPostgresStore(d.DB)
		proj = projection.NewPostgresProjector(d.DB)
		events = outbox.NewPostgresStore(d.DB)
		dirRepo = directory.NewPostgresRepository(d.DB)
		settleStore = settlement.NewPostgresStore(d.DB, backend)
		reserveStore = reserve.NewPostgresStore(d.DB)
	} else {
		locks := projection.NewKeyLock()
		journal = ledger.NewInMemory()
		proj = projection.NewInMemory()
		events = outbox.NewInMemory()
		dirRepo = directory.NewMemoryRepository()
		settleStore = settlement.NewMemoryStore(journal, proj, events, dirRepo, locks, backend)
		reserveStore = reserve.NewMemoryStore(journal, proj, events, dirRepo, locks)
	}

	gate := projection.NewGate()
	dirSvc := directory.NewService(dirRepo)
	settleSvc := settlement.NewService(dirSvc, settleStore, gate, d.Cfg.AllowedCurrencies)
	reserveSvc := reserve.NewService(dirSvc, reserveStore, gate, d.Cfg.AllowedCurrencies)
	replaySvc := replay.NewService(journal, proj, gate, d.Logger)

	dirHandler := directory.NewHandler(dirSvc)
	settleHandler := settlement.NewHandler(settleSvc)
	reserveHandler := reserve.NewHandler(reserveSvc)

	api := app.Group("/api/v1")

	api.Post("/institutions", dirHandler.Create)
	api.Get("/institutions", dirHandler.List)
	api.Get("/institutions/:institutionId", dirHandler.Get)
	api.Post("/institutions/:institutionId/approve", dirHandler.Approve)
	api.Post("/institutions/:institutionId/suspend", dirHandler.Suspend)
	api.Post("/institutions/:institutionId/freeze", dirHandler.Freeze)
	api.Post("/institutions/:institutionId/unfreeze", dirHandler.Unfreeze)
	api.Get("/admin/actions", dirHandler.Actions)

	api.Post("/transfers", settleHandler.Submit)
	api.Get("/transfers", settleHandler.List)
	api.Get("/transfers/:transferId", settleHandler.Get)
	api.Get("/settlements/events", settleHandler.Events)

	api.Post("/reserves/deposit", reserveHandler.Record)

	RegisterLedgerRoutes(api, journal, replaySvc)
	RegisterBalanceRoutes(api, proj, dirSvc)
	RegisterEventRoutes(api, events)

	relay := outbox.NewRelay(events, outbox.NewLogPublisher(d.Logger), d.Cfg.OutboxRelayPeriod, d.Logger)
	return relay, nil
}
