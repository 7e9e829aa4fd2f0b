package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"knot-backend/internal/api"
	"knot-backend/internal/auth"
	"knot-backend/internal/config"
	"knot-backend/internal/contact"
	"knot-backend/internal/email"
	"knot-backend/internal/instrument"
	"knot-backend/internal/leads"
	"knot-backend/internal/logging"
	"knot-backend/internal/messaging"
	"knot-backend/internal/migration"
	"knot-backend/internal/payments"
	"knot-backend/internal/questionnaire"
	"knot-backend/internal/storage"
	"knot-backend/internal/store"
	"knot-backend/internal/store/memory"
	"knot-backend/internal/users"
	"knot-backend/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.Int("port", cfg.Server.Port), zap.String("store", cfg.Mongo.Driver))
	if cfg.Auth.JWTSecret == "changeme-secret" {
		log.Warn("using the default JWT secret; set KNOT_AUTH_JWT_SECRET")
	}

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := instrument.NewMetrics(reg)

	// 3. Primary store
	var repos *store.Repositories
	if cfg.Mongo.IsMemory() {
		log.Warn("using in-memory store; data is lost on restart")
		repos = memory.New()
	} else {
		db, err := store.Connect(ctx, cfg.Mongo)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Close(closeCtx)
		}()
		if err := db.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
		repos = db.Repositories()
		log.Info("mongo connected", zap.String("database", cfg.Mongo.Database))
	}

	// 4. Analytics events
	var (
		events  instrument.Recorder = instrument.NoopRecorder{}
		querier instrument.EventQuerier
	)
	if cfg.Events.Enabled {
		pool, err := instrument.Connect(ctx, cfg.Events)
		if err != nil {
			return fmt.Errorf("connect events db: %w", err)
		}
		defer pool.Close()
		buffer := instrument.NewEventBuffer(pool, log, cfg.Events.BufferSize, cfg.Events.FlushIntervalMs)
		defer buffer.Stop()
		retention := instrument.NewRetentionJob(pool, log, cfg.Events.RetentionDays)
		retention.Start()
		defer retention.Stop()
		events, querier = buffer, pool
		log.Info("events sink enabled", zap.String("host", cfg.Events.Host))
	}

	// 5. Blob storage, email, outbound webhooks
	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	var sender email.Sender = email.NewLogSender(log)
	if cfg.Email.Enabled() {
		smtp, err := email.NewSMTPSender(cfg.Email)
		if err != nil {
			return fmt.Errorf("smtp: %w", err)
		}
		go func() {
			verifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			if err := smtp.Verify(verifyCtx); err != nil {
				log.Warn("smtp relay unreachable", zap.Error(err))
				return
			}
			log.Info("smtp relay verified", zap.String("host", cfg.Email.Host))
		}()
		sender = smtp
	}
	mailer, err := email.NewMailer(sender, cfg.Email.BaseURL, cfg.Email.AdminEmail, metrics, log)
	if err != nil {
		return err
	}

	hooks, err := webhook.NewDispatcher(cfg.Webhooks, metrics, log)
	if err != nil {
		return fmt.Errorf("webhooks: %w", err)
	}
	defer hooks.Close()

	// 6. Services
	catalog, err := questionnaire.Default()
	if err != nil {
		return fmt.Errorf("question catalog: %w", err)
	}
	questionnaireSvc := questionnaire.NewService(repos, catalog, events, metrics, log)

	scorer, err := leads.NewScorer(cfg.LeadScoring.Rules)
	if err != nil {
		return fmt.Errorf("lead scoring: %w", err)
	}
	leadSvc := leads.NewService(repos.Leads, leads.Deps{
		Scorer:   scorer,
		Files:    files,
		Matches:  questionnaireSvc,
		Notifier: hooks,
		Events:   events,
		Metrics:  metrics,
	}, log)

	authSvc := auth.NewService(repos, questionnaireSvc, mailer, events, auth.Options{
		JWTSecret:   cfg.Auth.JWTSecret,
		TrialDays:   cfg.Auth.TrialDays,
		AdminEmails: cfg.Auth.AdminEmails,
	}, log)
	if cfg.Auth.AdminPassword != "" && len(cfg.Auth.AdminEmails) > 0 {
		if err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminName, cfg.Auth.AdminEmails[0], cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	userSvc := users.NewService(repos.Users, files, mailer, metrics, users.Options{
		TrialDays:       cfg.Auth.TrialDays,
		NotifyThreshold: cfg.Matching.NotifyThreshold,
	}, log)
	messagingSvc := messaging.NewService(repos, events, log)
	contactSvc := contact.NewService(repos.Contacts, mailer, events, log)
	migrationSvc := migration.NewService(repos, events, metrics, log)

	var gateway payments.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = payments.NewStripeGateway(cfg.Stripe.SecretKey)
	}
	plans, err := payments.DefaultPlans()
	if err != nil {
		return fmt.Errorf("plan catalog: %w", err)
	}
	paymentSvc := payments.NewService(repos.Users, plans, gateway, mailer, cfg.Stripe, events, log)

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler(log),
		BodyLimit:    cfg.Server.BodyLimit,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.CORSOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(metrics.Middleware())

	// 8. Health check and metrics
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "timestamp": time.Now().UTC()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	if cfg.Storage.Driver != "s3" {
		app.Static("/uploads/"+storage.KindPicture, filepath.Join(cfg.Storage.LocalPath, storage.KindPicture))
	}

	// 9. Routes
	authMW := auth.Middleware(cfg.Auth.JWTSecret)
	optionalMW := auth.OptionalMiddleware(cfg.Auth.JWTSecret)
	adminMW := auth.RequireAdmin()

	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(authSvc), authMW)
	leads.RegisterRoutes(app, leads.NewHandler(leadSvc, cfg.Storage.MaxFileSize), authMW, adminMW)
	questionnaire.RegisterRoutes(app, questionnaire.NewHandler(questionnaireSvc), optionalMW, authMW, adminMW)
	users.RegisterRoutes(app, users.NewHandler(userSvc, cfg.Storage.MaxFileSize,
		cfg.Matching.DefaultLimit, cfg.Matching.MaxLimit), authMW, adminMW)
	messaging.RegisterRoutes(app, messaging.NewHandler(messagingSvc), authMW)
	contact.RegisterRoutes(app, contact.NewHandler(contactSvc), authMW, adminMW)
	payments.RegisterRoutes(app, payments.NewHandler(paymentSvc), authMW)
	migration.RegisterRoutes(app, migration.NewHandler(migrationSvc), authMW, adminMW)
	app.Get("/api/admin/events", authMW, adminMW, instrument.NewEventHandler(querier).List)

	// 10. Background jobs
	if cfg.FollowUp.Enabled {
		followUps := leads.NewFollowUpScheduler(repos.Leads, mailer, cfg.Email.AdminEmail,
			cfg.FollowUp.Interval, cfg.FollowUp.Batch, log)
		followUps.Start()
		defer followUps.Stop()
	}

	// 11. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", addr), zap.Int("webhooks", hooks.Len()))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down")
	return app.ShutdownWithTimeout(10 * time.Second)
}
