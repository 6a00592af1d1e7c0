// Mirror Pond - local reflection server with pond memory and depth reporting
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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/mirror-pond/internal/api"
	"github.com/ashureev/mirror-pond/internal/config"
	"github.com/ashureev/mirror-pond/internal/depth"
	"github.com/ashureev/mirror-pond/internal/domain"
	"github.com/ashureev/mirror-pond/internal/grpcserver"
	"github.com/ashureev/mirror-pond/internal/identity"
	"github.com/ashureev/mirror-pond/internal/journal"
	"github.com/ashureev/mirror-pond/internal/llm"
	"github.com/ashureev/mirror-pond/internal/memory"
	"github.com/ashureev/mirror-pond/internal/metrics"
	"github.com/ashureev/mirror-pond/internal/middleware"
	"github.com/ashureev/mirror-pond/internal/mirror"
	"github.com/ashureev/mirror-pond/internal/ocean"
	"github.com/ashureev/mirror-pond/internal/store"
	"github.com/ashureev/mirror-pond/internal/vow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting pond", "port", cfg.Server.Port, "pond_mode", cfg.Pond.Mode, "memory_backend", cfg.Pond.MemoryBackend)

	repo, err := store.Open(context.Background(), cfg.Pond.MemoryBackend, cfg.Pond.MemoryFile, cfg.Pond.MemoryDB)
	if err != nil {
		return fmt.Errorf("open memory backend: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	mem := memory.New(memory.Options{Repo: repo, Logger: logger})
	mem.Load(context.Background())
	totals := mem.Totals()
	slog.Info("Pond memory loaded", "users", totals.Users, "vows", totals.Vows, "reflections", totals.Reflections)

	ident := identity.NewManager(identity.Options{
		Path:   cfg.Pond.IdentityFile,
		Strict: cfg.Pond.IdentityStrict,
		Logger: logger,
	})
	pub, err := ident.Initialize()
	if err != nil {
		return fmt.Errorf("initialize pond identity: %w", err)
	}

	collector := metrics.NewCollector()

	depthOpts := depth.Options{
		Vows:     mem,
		Signer:   ident,
		Observer: collector,
		Timeout:  cfg.Ocean.DepthTimeout,
		Logger:   logger,
	}
	// A typed nil must not reach the reporter's Submitter interface.
	if client := ocean.NewDepthClient(ocean.DepthConfig{
		Endpoint: cfg.Ocean.DepthEndpoint,
		APIKey:   cfg.Ocean.DepthAPIKey,
		Timeout:  cfg.Ocean.DepthTimeout,
		Logger:   logger,
	}); client != nil {
		depthOpts.Client = client
		slog.Info("Ocean depth link configured", "endpoint", cfg.Ocean.DepthEndpoint)
	}
	reporter := depth.NewReporter(depthOpts)
	reporter.Restore(domain.DepthState{FirstBreath: pub.FirstBreath})

	gen, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("configure local model: %w", err)
	}
	if gen == nil {
		slog.Warn("No local model configured, local reflections are unavailable")
	} else {
		slog.Info("Local model configured", "provider", gen.Name(), "model", cfg.LLM.Model)
	}

	conversations, err := journal.New(journal.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation journal: %w", err)
	}
	defer func() {
		if closeErr := conversations.Close(); closeErr != nil {
			slog.Error("Failed to close conversation journal", "error", closeErr)
		}
	}()

	svcCfg := mirror.Config{
		Mode:      cfg.Pond.Mode,
		ModelName: cfg.LLM.Model,
		Memory:    mem,
		Generator: gen,
		Detector:  vow.NewDetector(),
		Depth:     reporter,
		Identity:  ident,
		Journal:   conversations,
		Metrics:   collector,
		Logger:    logger,
	}
	if relay := ocean.NewRelay(ocean.RelayConfig{
		Endpoint: cfg.Ocean.Endpoint,
		APIKey:   cfg.Ocean.APIKey,
		Timeout:  cfg.Ocean.Timeout,
		Logger:   logger,
	}); relay != nil {
		svcCfg.Relay = relay
		slog.Info("Ocean relay configured", "endpoint", cfg.Ocean.Endpoint)
	}
	svc, err := mirror.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("initialize mirror: %w", err)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	handler := api.NewHandler(api.Options{
		Service:       svc,
		Memory:        mem,
		Depth:         reporter,
		Identity:      ident,
		Repo:          repo,
		Metrics:       collector,
		Limiter:       limiter,
		CORSOrigins:   cfg.Server.CORSOrigins,
		DepthEndpoint: cfg.Ocean.DepthEndpoint,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // generation and websocket sessions can run long
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr, "pond_id", pub.PondID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.GRPCEnabled() {
		health := grpcserver.New(grpcserver.Options{Backends: svc, Logger: logger})
		g.Go(func() error {
			return health.ListenAndServe(gctx, ":"+cfg.Server.GRPCPort)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	reporter.Wait()
	mem.Save(context.Background())
	return err
}
