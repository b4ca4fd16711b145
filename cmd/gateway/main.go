// Command gateway runs the synchronous submission API (spec.md §6.1):
// POST /submit, GET /metadata/{request_id}, GET /health.
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

	"github.com/evalmesh/pipeline/internal/broker"
	"github.com/evalmesh/pipeline/internal/config"
	"github.com/evalmesh/pipeline/internal/domain"
	"github.com/evalmesh/pipeline/internal/handler"
	"github.com/evalmesh/pipeline/internal/httpserver"
	"github.com/evalmesh/pipeline/internal/observability"
	"github.com/evalmesh/pipeline/internal/wiring"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	states, err := wiring.NewStateStore(cfg)
	if err != nil {
		slog.Error("state store init failed", slog.Any("error", err))
		os.Exit(1)
	}

	publisher, err := wiring.NewPublisher(ctx, cfg)
	if err != nil {
		slog.Error("publisher init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Error("failed to close publisher", slog.Any("error", err))
		}
	}()

	submitter := &handler.GatewaySubmitter{
		States:    states,
		Publisher: publisher,
		Topics:    broker.TopicNames{Inference: "inference", Judge: "judge"},
	}

	healthy := func(ctx domain.Context) bool { return states.IsHealthy(ctx) }
	srv := httpserver.NewServer(submitter, states, healthy)
	router := httpserver.BuildRouter(cfg, srv)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway starting", slog.Int("port", cfg.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("gateway server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
