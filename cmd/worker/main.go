package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/gavel-auctioneer/internal/adapters/database"
	adapterevents "github.com/floroz/gavel-auctioneer/internal/adapters/events"
	"github.com/floroz/gavel-auctioneer/internal/config"
	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
	"github.com/floroz/gavel-auctioneer/internal/domain/repair"
	"github.com/floroz/gavel-auctioneer/internal/lifecycle"
	"github.com/floroz/gavel-auctioneer/migrations"
	"github.com/floroz/gavel-auctioneer/pkg/clock"
	pkgdb "github.com/floroz/gavel-auctioneer/pkg/database"
	pkgevents "github.com/floroz/gavel-auctioneer/pkg/events"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireBroker(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Postgres
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("unable to create connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("unable to ping database: %w", err)
	}
	logger.Info("Postgres Connected")

	if cfg.MigrateOnStart {
		if err := pkgdb.Migrate(ctx, pool, migrations.FS); err != nil {
			return err
		}
		logger.Info("Migrations applied")
	}

	// 2. RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer amqpConn.Close()

	publisher, err := pkgevents.NewRabbitMQPublisher(amqpConn)
	if err != nil {
		return fmt.Errorf("failed to create RabbitMQ publisher: %w", err)
	}
	defer publisher.Close()
	logger.Info("RabbitMQ Connected")

	// 3. Repositories
	clk := clock.Real{}
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.LockTimeout)
	itemRepo := database.NewPostgresItemRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	accountRepo := database.NewPostgresAccountRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)
	processedRepo := database.NewPostgresProcessedEventRepository(pool)

	// 4. Sweep reconciler
	resolver := closing.NewResolver(txManager, itemRepo, bidRepo, accountRepo, outboxRepo, clk, logger)
	sweeper := lifecycle.NewSweeper(itemRepo, resolver, clk, lifecycle.SweepConfig{
		Period:      cfg.SweepPeriod,
		BatchSize:   cfg.SweepBatchSize,
		Concurrency: cfg.SweepConcurrency,
	}, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 5. Outbox relay
	relay := pkgevents.NewOutboxRelay(
		outboxRepo,
		publisher,
		txManager,
		cfg.OutboxBatchSize,
		cfg.OutboxInterval,
		pkgevents.Exchange,
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Outbox Relay...")
		return relay.Run(gctx)
	})

	// 6. Repair of winner debits that failed at closing
	repairs := repair.NewService(txManager, accountRepo, processedRepo, logger)
	consumer := adapterevents.NewDebitRepairConsumer(amqpConn, repairs, logger)
	g.Go(func() error { return consumer.Run(gctx) })

	// 7. Metrics
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down worker...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
