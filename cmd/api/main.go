package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/gavel-auctioneer/internal/adapters/api"
	"github.com/floroz/gavel-auctioneer/internal/adapters/database"
	"github.com/floroz/gavel-auctioneer/internal/adapters/websocket"
	"github.com/floroz/gavel-auctioneer/internal/config"
	"github.com/floroz/gavel-auctioneer/internal/domain/bids"
	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	"github.com/floroz/gavel-auctioneer/internal/lifecycle"
	"github.com/floroz/gavel-auctioneer/internal/notify"
	"github.com/floroz/gavel-auctioneer/migrations"
	"github.com/floroz/gavel-auctioneer/pkg/auth"
	"github.com/floroz/gavel-auctioneer/pkg/clock"
	pkgdb "github.com/floroz/gavel-auctioneer/pkg/database"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("Auction API stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Auction API stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
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

	// 2. Repositories
	clk := clock.Real{}
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.LockTimeout)
	itemRepo := database.NewPostgresItemRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	accountRepo := database.NewPostgresAccountRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	// 3. Closing: timers armed here, the worker's sweep covers what they miss
	resolver := closing.NewResolver(txManager, itemRepo, bidRepo, accountRepo, outboxRepo, clk, logger)
	scheduler := lifecycle.NewScheduler(ctx, resolver, clk, cfg.CloseTimeout, logger)
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)

	// 4. Live bid fan-out, across instances when Redis is configured
	hub := notify.NewHub(cfg.HubBuffer, logger)
	var notifier bids.Notifier = hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("unable to ping redis: %w", err)
		}
		logger.Info("Redis Connected")

		bridge := notify.NewRedisBridge(rdb, hub, cfg.RedisChannel, logger)
		notifier = bridge
		g.Go(func() error { return bridge.Run(gctx) })
	}

	// 5. Services
	itemService := items.NewService(itemRepo, scheduler, clk, cfg.AuctionDuration, logger)
	bidService := bids.NewAuctionService(txManager, bidRepo, itemRepo, outboxRepo, notifier, clk, logger)

	// 6. Handlers
	var handlerOpts []connect.HandlerOption
	if cfg.JWTPublicKeyPath != "" {
		verifier, err := loadVerifier(cfg.JWTPublicKeyPath, cfg.JWTIssuer)
		if err != nil {
			return err
		}
		handlerOpts = append(handlerOpts, connect.WithInterceptors(auth.NewAuthInterceptor(verifier)))
	} else {
		logger.Warn("JWT_PUBLIC_KEY_PATH is not set, every caller is anonymous")
	}

	auctionHandler := api.NewAuctionHandler(itemService, bidService, accountRepo, clk, logger)
	path, handler := auctionHandler.Handler(handlerOpts...)

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	mux.Handle(websocket.Route, websocket.NewHandler(hub, cfg.WSOriginPatterns, logger))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// 7. Server. Request contexts derive from ctx so live feeds end on shutdown.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		logger.Info("Starting Auction API", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down Auction API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func loadVerifier(path, issuer string) (*auth.Verifier, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key: %w", err)
	}
	verifier, err := auth.NewVerifier(pemBytes, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT public key: %w", err)
	}
	return verifier, nil
}
