// Command inferenceworker consumes the inference topic, invokes the
// target model under evaluation, and publishes to the judge topic
// (spec.md §4.3's "Inference handler").
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/evalmesh/pipeline/internal/broker"
	"github.com/evalmesh/pipeline/internal/config"
	"github.com/evalmesh/pipeline/internal/handler"
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

	model := wiring.NewModelClient(cfg)

	h := &handler.InferenceHandler{
		States:    states,
		Model:     model,
		Publisher: publisher,
		Topics:    broker.TopicNames{Inference: "inference", Judge: "judge"},
	}

	consumer, err := wiring.NewInferenceConsumer(ctx, cfg, h.Handle)
	if err != nil {
		slog.Error("consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		slog.Info("inference worker starting")
		if err := consumer.Start(ctx); err != nil {
			slog.Error("inference consumer stopped", slog.Any("error", err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ConsumerCloseGrace)
	defer cancel()
	if err := consumer.Close(shutdownCtx); err != nil {
		slog.Error("consumer close error", slog.Any("error", err))
	}
}
