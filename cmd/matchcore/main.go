package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/matchcore/internal/config"
	"github.com/efreitasn/matchcore/internal/engine"
	"github.com/efreitasn/matchcore/internal/handler"
	"github.com/efreitasn/matchcore/internal/queue"
	"github.com/efreitasn/matchcore/internal/service"
	"github.com/efreitasn/matchcore/internal/store"
	"github.com/efreitasn/matchcore/internal/stream"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Engine with the configured markets.
	eng := engine.New(cfg.QuoteAsset)
	for _, m := range cfg.Markets {
		if err := eng.AddMarket(m); err != nil {
			logger.Error("failed to add market", slog.String("market", m), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trades := store.NewTradeStore(cfg.TradeHistory)
	hub := stream.NewHub(logger)
	go hub.Run(ctx)

	dispatcher := service.NewDispatcher(eng, trades, hub, logger)
	router := handler.NewRouter(dispatcher, trades, hub, logger)

	// Fatal errors from background components end the process.
	fatal := make(chan error, 2)

	var consumer *queue.Consumer
	consumerDone := make(chan struct{})
	if cfg.KafkaEnabled() {
		consumer = queue.NewKafkaConsumer(queue.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			CommandTopic: cfg.KafkaCommandTopic,
			GroupID:      cfg.KafkaGroupID,
			ResultTopic:  cfg.KafkaResultTopic,
		}, dispatcher, logger)
		go func() {
			defer close(consumerDone)
			logger.Info("queue consumer starting",
				slog.String("topic", cfg.KafkaCommandTopic),
				slog.String("group_id", cfg.KafkaGroupID),
			)
			if err := consumer.Run(ctx); err != nil {
				fatal <- fmt.Errorf("queue consumer: %w", err)
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("quote_asset", eng.QuoteAsset()),
			slog.Any("markets", eng.Markets()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Wait for SIGINT/SIGTERM or a fatal component error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-fatal:
		logger.Error("fatal error", slog.String("error", err.Error()))
		exitCode = 1
	}

	// Graceful shutdown: stop HTTP server, then the consumer and hub.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	if consumer != nil {
		stopConsumer(shutdownCtx, consumerDone, consumer, logger)
	}

	logger.Info("server stopped")
	if exitCode != 0 {
		shutdownCancel()
		os.Exit(exitCode)
	}
}

// stopConsumer waits for the consumer's Run to return, so an in-flight
// message is finished before the reader and writer close, then closes it.
// It stops waiting when ctx is done.
func stopConsumer(ctx context.Context, done <-chan struct{}, c io.Closer, logger *slog.Logger) {
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("queue consumer did not stop before the shutdown timeout")
	}
	if err := c.Close(); err != nil {
		logger.Error("queue consumer close error", slog.String("error", err.Error()))
	}
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
}
