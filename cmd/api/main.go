package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/auth"
	"github.com/ariefcatur/go-order-lifecycle/internal/config"
	"github.com/ariefcatur/go-order-lifecycle/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/memstore"
	"github.com/ariefcatur/go-order-lifecycle/internal/observability"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/postgres"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(cfg.ServiceName)
	deps := orders.ServiceDeps{Logger: logger, Recorder: metrics}

	// Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		deps.Store = memstore.Seeded()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db, logger); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		deps.Store = &orders.Repo{DB: db}
	}

	// Redis (optional)
	var idem httpx.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb, err := redisx.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable; cache and idempotency disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			defer rdb.Close()
			deps.Cache = redisx.NewOrderCache(rdb, logger)
			idem = redisx.NewIdempotency(rdb, 2*cfg.RequestTimeout)
		}
	}

	// Kafka producer (optional)
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, logger)
		prod.Start(ctx)
		deps.Events = kafkax.NewOrderEvents(prod, cfg.ServiceName)
	}

	svc, err := orders.NewService(ctx, deps)
	if err != nil {
		return fmt.Errorf("order service: %w", err)
	}

	var authn func(http.Handler) http.Handler
	if cfg.AuthDisabled {
		logger.Warn("authentication disabled; every request acts as an administrator")
		authn = auth.Static(auth.Identity{UserID: 1, Email: "admin@localhost", IsAdmin: true})
	} else {
		authn = auth.NewVerifier(cfg.JWTSecret).Middleware
	}

	router := httpx.NewRouter(httpx.RouterDeps{Logger: logger, Metrics: metrics})
	(&httpx.OrdersHandler{Service: svc, Idempotency: idem, Timeout: cfg.RequestTimeout}).Register(router, authn)
	(&httpx.StatusesHandler{Service: svc, Timeout: cfg.RequestTimeout}).Register(router, authn)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if prod != nil {
		prod.Close() // flush buffered events, then close the writer
		prod.WaitClosed()
	}
	return nil
}
