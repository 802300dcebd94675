package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"duochat/auth"
	"duochat/config"
	"duochat/database"
	"duochat/handlers"
	"duochat/logging"
	"duochat/messaging"
	"duochat/metrics"
	"duochat/realtime"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, envLoaded, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	if !envLoaded {
		logger.Info("no .env file found, using environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database ready", zap.String("driver", store.Driver()))

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	m, err := newMetrics(cfg)
	if err != nil {
		return err
	}
	otel.SetMeterProvider(m.Provider())
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.Shutdown(flushCtx); err != nil {
			logger.Warn("metrics shutdown", zap.Error(err))
		}
	}()

	registry := realtime.NewRegistry()
	typing := realtime.NewTyping(cfg.TypingIdle, store, registry, m, logger.Named("typing"))
	defer typing.Close()
	presence := realtime.NewPresence(registry, store, typing, m, logger.Named("presence"))
	// no session survives a restart
	if err := presence.Reset(ctx); err != nil {
		return err
	}

	h := handlers.New(handlers.Deps{
		Store:    store,
		Tokens:   tokens,
		Gate:     auth.NewGatekeeper(tokens, store),
		Registry: registry,
		Presence: presence,
		Typing:   typing,
		Router:   messaging.NewRouter(store, registry, cfg.HistoryLimit, m, logger.Named("router")),
		Ledger:   messaging.NewLedger(store),
		Metrics:  m,
		Logger:   logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Routes(cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	registry.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	return nil
}

// newMetrics adds a periodic stdout exporter when an interval is configured.
func newMetrics(cfg *config.Config) (*metrics.Metrics, error) {
	if cfg.MetricsInterval <= 0 {
		return metrics.New()
	}
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.MetricsInterval))
	return metrics.New(sdkmetric.WithReader(reader))
}
