package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/events"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/followup"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/scheduler"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/whatsapp"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/config"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/db"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting followup worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid redis url", "error", err)
		panic("invalid redis url: " + err.Error())
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() {
		_ = redisClient.Close()
	}()

	eventBus := events.NewInMemoryBus(log)
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

	store := repository.New(pool)
	locks := conversation.NewLeadLocks()
	clock := followup.NewClock()

	followupScheduler := followup.NewScheduler(store, locks, queueClient, ladder, clock, eventBus, log, m)
	delivery := whatsapp.NewClient(cfg, log)
	guard := followup.NewRedisGuard(redisClient)

	executor := followup.NewExecutor(
		store, locks, followupScheduler, delivery, guard, ladder, clock,
		eventBus, log, m, cfg.DeliveryAttemptTimeout,
	)

	worker, err := scheduler.NewWorker(cfg, executor, log)
	if err != nil {
		log.Error("failed to create worker", "error", err)
		panic("failed to create worker: " + err.Error())
	}

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped", "error", err)
		panic("worker stopped: " + err.Error())
	}
	log.Info("worker shut down cleanly")
}
