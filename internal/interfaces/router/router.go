package router

import (
	"time"

	"jv-billing-backend/internal/application/audit"
	ccsvc "jv-billing-backend/internal/application/cashcall"
	"jv-billing-backend/internal/application/codegen"
	healthsvc "jv-billing-backend/internal/application/health"
	jibsvc "jv-billing-backend/internal/application/jib"
	"jv-billing-backend/internal/application/notifications"
	"jv-billing-backend/internal/application/registry"
	reportsvc "jv-billing-backend/internal/application/reporting"
	"jv-billing-backend/internal/config"
	"jv-billing-backend/internal/constants"
	"jv-billing-backend/internal/infrastructure/database"
	cchandler "jv-billing-backend/internal/interfaces/handlers/cashcall"
	healthhandler "jv-billing-backend/internal/interfaces/handlers/health"
	jibhandler "jv-billing-backend/internal/interfaces/handlers/jib"
	reporthandler "jv-billing-backend/internal/interfaces/handlers/reporting"
	"jv-billing-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp builds the Fiber app: global middleware, operational endpoints and, when a
// database is configured, the billing API.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	sessionHandler, rdb, err := middleware.Session(middleware.SessionConfig{
		RedisURL:   cfg.RedisURL,
		CookieName: cfg.SessionCookie,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	app.Use(middleware.HealthMarker(rdb))
	app.Use(sessionHandler)

	var notifier notifications.Notifier = notifications.LogNotifier{}
	deps := healthsvc.Deps{Redis: rdb}
	if cfg.RabbitMQURL != "" {
		pub := &notifications.AMQPPublisher{URL: cfg.RabbitMQURL, Queue: cfg.NotifyQueue}
		notifier = pub
		deps.Broker = pub
	}

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := database.AutoMigrate(db); err != nil {
				return nil, nil, nil, err
			}
			log.Info().Msg("database migrated")
		}
		deps.DB = &gormDBPinger{db: db}
		deps.Gorm = db
	}

	hh := &healthhandler.Handlers{Deps: deps, HealthAdminKey: cfg.HealthAdminKey}
	app.Get("/", hh.Root)
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if db == nil {
		log.Warn().Msg("DATABASE_URL not set; billing routes disabled")
		return app, nil, rdb, nil
	}

	var seq codegen.Sequencer = codegen.GormSequencer{}
	if cfg.CodeSequencer == "redis" {
		seq = &codegen.RedisSequencer{Rdb: rdb}
	}
	codes := &codegen.Generator{Sequencer: seq}
	reg := &registry.GormRegistry{DB: db}

	// JIBs
	js := &jibsvc.Service{
		DB:               db,
		Registry:         reg,
		Codes:            codes,
		Notifier:         notifier,
		Tolerance:        cfg.AllocationTolerance,
		PaymentTermsDays: cfg.PaymentTermsDays,
		CodeMaxRetries:   cfg.CodeMaxRetries,
		DBMaxRetries:     cfg.DBMaxRetries,
	}
	jh := &jibhandler.Handlers{Service: js}
	jg := app.Group("/api/v1/jibs", middleware.RequireAuth())
	jg.Post("/create-jib", middleware.AuthorizePermission(constants.ManageBilling), jh.CreateJIB)
	jg.Get("/get-jibs", middleware.AuthorizePermission(constants.ViewBilling), jh.GetJIBs)
	jg.Get("/get-jib/:id", middleware.AuthorizePermission(constants.ViewBilling), jh.GetJIB)
	jg.Get("/get-payments/:id", middleware.AuthorizePermission(constants.ViewBilling), jh.GetPayments)
	jg.Post("/add-line-item/:id", middleware.AuthorizePermission(constants.ManageBilling), jh.AddLineItem)
	jg.Put("/edit-line-item/:item_id", middleware.AuthorizePermission(constants.ManageBilling), jh.EditLineItem)
	jg.Delete("/remove-line-item/:item_id", middleware.AuthorizePermission(constants.ManageBilling), jh.RemoveLineItem)
	jg.Post("/finalize-jib/:id", middleware.AuthorizePermission(constants.ApproveBilling), jh.FinalizeJIB)
	jg.Post("/cancel-jib/:id", middleware.AuthorizePermission(constants.ApproveBilling), jh.CancelJIB)
	jg.Post("/record-payment/:share_id", middleware.AuthorizePermission(constants.RecordPayments), jh.RecordPayment)
	jg.Post("/dispute-share/:share_id", middleware.AuthorizePermission(constants.ManageDisputes), jh.DisputeShare)
	jg.Post("/resolve-dispute/:share_id", middleware.AuthorizePermission(constants.ManageDisputes), jh.ResolveDispute)

	// Cash calls
	cs := &ccsvc.Service{
		DB:             db,
		Registry:       reg,
		Codes:          codes,
		Notifier:       notifier,
		Tolerance:      cfg.AllocationTolerance,
		CodeMaxRetries: cfg.CodeMaxRetries,
		DBMaxRetries:   cfg.DBMaxRetries,
	}
	ch := &cchandler.Handlers{Service: cs}
	cg := app.Group("/api/v1/cash-calls", middleware.RequireAuth())
	cg.Post("/create-cash-call", middleware.AuthorizePermission(constants.ManageCashCalls), ch.CreateCashCall)
	cg.Get("/get-cash-calls", middleware.AuthorizePermission(constants.ViewBilling), ch.GetCashCalls)
	cg.Get("/get-cash-call/:id", middleware.AuthorizePermission(constants.ViewBilling), ch.GetCashCall)
	cg.Put("/edit-cash-call/:id", middleware.AuthorizePermission(constants.ManageCashCalls), ch.EditCashCall)
	cg.Post("/issue-cash-call/:id", middleware.AuthorizePermission(constants.ApproveBilling), ch.IssueCashCall)
	cg.Post("/cancel-cash-call/:id", middleware.AuthorizePermission(constants.ApproveBilling), ch.CancelCashCall)
	cg.Post("/record-funding/:response_id", middleware.AuthorizePermission(constants.RecordPayments), ch.RecordFunding)
	cg.Post("/declare-default/:response_id", middleware.AuthorizePermission(constants.DeclareDefaults), ch.DeclareDefault)
	cg.Post("/excuse-response/:response_id", middleware.AuthorizePermission(constants.DeclareDefaults), ch.ExcuseResponse)

	// Reports and notification scans
	rs := &reportsvc.Service{
		DB:       db,
		Notifier: notifier,
		Deduper:  &notifications.RedisDeduper{Rdb: rdb, TTL: time.Duration(cfg.OverdueNotifyTTLHours) * time.Hour},
	}
	rh := &reporthandler.Handlers{Service: rs, Audit: &audit.Service{DB: db}}
	rg := app.Group("/api/v1/reports", middleware.RequireAuth(), middleware.AuthorizePermission(constants.ViewBilling))
	rg.Get("/partner-statement/:partner_id", rh.PartnerStatement)
	rg.Get("/overdue", rh.Overdue)
	rg.Get("/contract-summary/:contract_id", rh.ContractSummary)
	rg.Get("/audit/:entity_id", rh.AuditTrail)
	app.Post("/api/v1/notifications/notify-overdue",
		middleware.RequireAuth(), middleware.AuthorizePermission(constants.RunNotifications), rh.NotifyOverdue)

	return app, db, rdb, nil
}
