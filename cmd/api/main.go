package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/crm"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/dispatch"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/events"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/followup"
	apphttp "github.com/VentilardorArnor/Avantti-Vitor/internal/http"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/http/router"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/pricing"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/scheduler"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/webhook"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/whatsapp"
	"github.com/VentilardorArnor/Avantti-Vitor/migrations"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/config"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/db"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/metrics"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.Files)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		var poolErr error
		pool, poolErr = db.NewPool(ctx, cfg)
		return poolErr
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()
	m := metrics.New()

	ladder, err := followup.LoadLadder(cfg.FollowupLadderPath)
	if err != nil {
		log.Error("failed to load followup ladder", "error", err)
		panic("failed to load followup ladder: " + err.Error())
	}

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to create delay queue client", "error", err)
		panic("failed to create delay queue client: " + err.Error())
	}
	defer func() {
		_ = queueClient.Close()
	}()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	locks := conversation.NewLeadLocks()
	conversationModule := conversation.NewModule(pool, locks, eventBus, val, log)
	conversationService := conversationModule.Service()
	conversationStore := repository.New(pool)

	followupScheduler := followup.NewScheduler(
		conversationStore, locks, queueClient, ladder, followup.NewClock(), eventBus, log, m,
	)
	conversationService.SetEscalationCanceller(followupScheduler)

	whatsappClient := whatsapp.NewClient(cfg, log)
	crmClient := crm.NewClient(cfg, log)
	pricingRepo := pricing.New(pool)

	dispatchModule := dispatch.NewModule(
		conversationService, crmClient, whatsappClient, pricingRepo, followupScheduler, val, log,
	)
	webhookModule := webhook.NewModule(conversationService, cfg, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			conversationModule,
			dispatchModule,
			webhookModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}
