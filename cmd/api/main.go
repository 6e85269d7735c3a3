package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/asyncstatus"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/compensation"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/config"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/coupon"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/eventlog"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/handler"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/lock"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/outbox"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/repository"
	"github.com/fairyhunter13/order-saga-coupon-system/internal/saga"
	"github.com/fairyhunter13/order-saga-coupon-system/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	initLogger(cfg)
	for _, w := range cfg.WarnIfDefaultCredentials() {
		log.Warn().Msg(w)
	}

	ctx := context.Background()

	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	redisClient := goredislib.NewClient(&goredislib.Options{Addr: cfg.Lock.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	publisher, err := eventlog.NewPublisher(cfg.EventLog.BrokerList())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to event log brokers")
	}

	// Repository stores (§4 throughout).
	userStore := repository.NewUserStore(pool)
	productStore := repository.NewProductStore(pool)
	couponStore := repository.NewCouponStore(pool)
	userCouponStore := repository.NewUserCouponStore(pool)
	orderStore := repository.NewOrderStore(pool)
	outboxStore := repository.NewOutboxStore(pool)
	failedCompensationStore := repository.NewFailedCompensationStore(pool)

	// KV-Lock over Redis (§4.1) for the two contended resources the
	// coupon partitioned log does not already serialize.
	locker := lock.NewRedisLocker(redisClient)

	// Outbox dispatcher (§4.5): a single long-lived task per process.
	// CreateOrderStep's after-commit hook wakes it immediately rather
	// than waiting a full poll interval.
	dispatcher := outbox.NewDispatcher(
		outboxStore,
		publisher,
		cfg.EventLog.OrderTopic,
		cfg.EventLog.OrderTopicPartitions,
		time.Duration(cfg.Outbox.PollIntervalMS)*time.Millisecond,
		cfg.Outbox.BatchSize,
		cfg.Outbox.MaxRetries,
	)

	// Saga steps (§4.3) in fixed order, then the orchestrator with its
	// compensation handler and terminal-event sink.
	stepWait := time.Duration(cfg.Saga.StepWaitMS) * time.Millisecond
	stepLease := time.Duration(cfg.Saga.StepLeaseMS) * time.Millisecond

	deductInventory := saga.NewDeductInventoryStep(pool, productStore, orderStore, locker, stepWait, stepLease)
	deductBalance := saga.NewDeductBalanceStep(pool, userStore, orderStore, locker, stepWait, stepLease)
	useCoupon := saga.NewUseCouponStep(pool, userCouponStore)
	createOrder := saga.NewCreateOrderStep(pool, orderStore, outboxStore, dispatcher.Wake)

	compensationHandler := compensation.NewHandler(failedCompensationStore, compensation.NewLoggingAlertSink())
	orchestrator, err := saga.NewOrchestrator(
		[]saga.Step{deductInventory, deductBalance, useCoupon, createOrder},
		compensationHandler,
		saga.NewLoggingEventSink(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build saga orchestrator")
	}

	// Coupon request pipeline (§4.6): async enqueue/poll plus the
	// issue_sync shortcut, both backed by the same transactional core.
	asyncStatusStore := asyncstatus.New(
		redisClient,
		time.Duration(cfg.AsyncStatus.TTLPendingMS)*time.Millisecond,
		time.Duration(cfg.AsyncStatus.TTLTerminalMS)*time.Millisecond,
	)
	// 5 minutes is long enough to absorb a stampede of requests for the
	// same coupon_id without leaving a newly-created coupon invisible
	// for long.
	existenceCache := coupon.NewExistenceCache(redisClient, couponStore, 5*time.Minute)
	couponPipeline := coupon.NewPipeline(
		pool, couponStore, userCouponStore, outboxStore,
		publisher, asyncStatusStore,
		cfg.EventLog.CouponTopic, cfg.Coupon.Partitions,
	).WithExistenceCache(existenceCache).
		WithEnqueueTimeout(time.Duration(cfg.Coupon.EnqueueTimeoutMS) * time.Millisecond)

	// One partition-pinned consumer + worker per partition (§4.6/§5):
	// manual partition assignment, no consumer-group rebalancing, so
	// FCFS-per-coupon ordering is never disturbed by a rebalance.
	partitionClients, err := coupon.NewPartitionClients(cfg.EventLog.BrokerList(), cfg.EventLog.CouponTopic, int32(cfg.Coupon.Partitions))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create coupon partition consumers")
	}
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	for i, client := range partitionClients {
		w := coupon.NewWorker(
			pool, couponStore, userCouponStore, outboxStore,
			client, publisher, asyncStatusStore,
			cfg.EventLog.CouponTopic, int32(cfg.Coupon.Partitions), int32(i),
			cfg.Coupon.MaxRetries, time.Duration(cfg.Coupon.WorkerDeadlineMS)*time.Millisecond,
		)
		go w.Run(workerCtx)
	}

	dispatcherCtx, cancelDispatcher := context.WithCancel(ctx)
	go dispatcher.Run(dispatcherCtx)

	app := fiber.New(fiber.Config{
		AppName:      "Order Saga Coupon System",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())

	validate := validator.New()

	orderHandler := handler.NewOrderHandler(orchestrator, orderStore, couponStore, validate)
	couponHandler := handler.NewCouponHandler(couponStore, validate)
	claimHandler := handler.NewClaimHandler(couponPipeline, validate)
	healthHandler := handler.NewHealthHandler(pool)

	app.Get("/health", healthHandler.Check)

	app.Post("/api/orders", orderHandler.CreateOrder)
	app.Post("/api/orders/:order_id/cancel", orderHandler.CancelOrder)

	app.Post("/api/coupons", couponHandler.CreateCoupon)
	app.Get("/api/coupons/:coupon_id", couponHandler.GetCoupon)

	app.Post("/api/coupons/claim", claimHandler.EnqueueClaim)
	app.Get("/api/coupons/claim/:request_id", claimHandler.ClaimStatus)
	app.Post("/api/coupons/claim/sync", claimHandler.ClaimSync)

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Stop background workers in reverse start order: coupon workers,
	// then the outbox dispatcher, before tearing down their shared
	// connections.
	log.Info().Msg("stopping coupon workers...")
	cancelWorkers()
	for _, client := range partitionClients {
		client.Close()
	}

	log.Info().Msg("stopping outbox dispatcher...")
	cancelDispatcher()

	log.Info().Msg("closing event log connections...")
	publisher.Close()

	log.Info().Msg("closing redis connection...")
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("error closing redis connection")
	}

	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("database connections closed")
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
