package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"

	"github.com/splax/userdesk/internal/app/migrate"
	httpx "github.com/splax/userdesk/internal/http"
	"github.com/splax/userdesk/internal/repository"
	"github.com/splax/userdesk/internal/repository/memory"
	"github.com/splax/userdesk/internal/repository/postgres"
	"github.com/splax/userdesk/internal/service/user"
	"github.com/splax/userdesk/internal/ws"
	"github.com/splax/userdesk/pkg/config"
	"github.com/splax/userdesk/pkg/logger"
	"github.com/splax/userdesk/pkg/webhook"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (err error) {
	repo, storeHealth, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := ws.NewHub()
	defer hub.Close()

	events := user.Fanout{hub}
	if cfg.WebhookURL != "" {
		emitter, err := webhook.NewEmitter(cfg.WebhookURL, cfg.WebhookToken, nil, log)
		if err != nil {
			return fmt.Errorf("configure webhook: %w", err)
		}
		defer emitter.Wait()
		events = append(events, emitter)
		log.Info("user events forwarded to webhook", "url", cfg.WebhookURL)
	}

	users := user.New(repo, events, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router, err := httpx.NewRouter(log, users, hub, limiter, httpx.Options{
		Environment:    cfg.Environment,
		WriteRateLimit: cfg.WriteRateLimit,
		StoreHealth:    storeHealth,
	})
	if err != nil {
		limiter.Close()
		return fmt.Errorf("build router: %w", err)
	}
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreBackend, "environment", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("graceful shutdown: %w", shutdownErr))
		}
		if serveErr := <-errorCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			err = multierr.Append(err, serveErr)
		}
		log.Info("api server stopped")
		return err
	case serveErr := <-errorCh:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", serveErr)
		}
		return nil
	}
}

// openStore selects the configured backend. The postgres backend migrates its schema first.
func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.UserRepository, func(context.Context) error, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory, "":
		log.Info("using in-memory store")
		return memory.New(), nil, func() {}, nil
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("configure migrations: %w", err)
		}
		if err := runner.Ping(ctx); err != nil {
			runner.Close()
			return nil, nil, nil, err
		}
		if err := runner.Ensure(ctx); err != nil {
			runner.Close()
			return nil, nil, nil, err
		}
		repo := postgres.New(pool)
		return repo, repo.Ping, runner.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
