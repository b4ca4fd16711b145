// Command judgeworker consumes the judge topic, scores the target
// model's response, and writes the terminal archive row (spec.md §4.3's
// "Judge handler").
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

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

	archiveRepo, err := wiring.NewArchive(ctx, cfg)
	if err != nil {
		slog.Error("archive init failed", slog.Any("error", err))
		os.Exit(1)
	}

	judge := wiring.NewJudgeClient(cfg)

	cleanup, err := wiring.NewArchiveCleanup(ctx, cfg)
	if err != nil {
		slog.Error("archive cleanup init failed", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go cleanup.RunPeriodic(cleanupCtx, cfg.ArchiveCleanupInterval)

	h := &handler.JudgeHandler{
		States:  states,
		Judge:   judge,
		Archive: archiveRepo,
	}

	consumer, err := wiring.NewJudgeConsumer(ctx, cfg, h.Handle)
	if err != nil {
		slog.Error("consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		slog.Info("judge worker starting")
		if err := consumer.Start(ctx); err != nil {
			slog.Error("judge consumer stopped", slog.Any("error", err))
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
