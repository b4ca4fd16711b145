// Command pipelinectl is a one-shot operational helper, grounded on the
// teacher's cmd/ragseed: load config, run a setup step against real infra,
// report the result and exit. It ensures the archive schema exists and
// reports reachability of the configured state store, archive, and
// message broker so an operator can verify a deployment before traffic.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/evalmesh/pipeline/internal/archive"
	"github.com/evalmesh/pipeline/internal/config"
	"github.com/evalmesh/pipeline/internal/wiring"
)

func main() {
	migrate := flag.Bool("migrate", true, "create the archive_records table if missing")
	checkHealth := flag.Bool("check", true, "probe state store and archive connectivity")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *migrate {
		if err := runMigrate(ctx, cfg); err != nil {
			log.Fatalf("migrate failed: %v", err)
		}
		log.Println("archive schema ensured")
	}

	if *checkHealth {
		if err := runCheck(ctx, cfg); err != nil {
			log.Fatalf("health check failed: %v", err)
		}
		log.Println("all dependencies reachable")
	}

	log.Printf("pipelinectl OK (broker=%s)", cfg.MessagingBroker)
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	pool, err := archive.NewPgxPool(ctx, cfg.ArchiveDBURL)
	if err != nil {
		return fmt.Errorf("op=pipelinectl.migrate: %w", err)
	}
	defer pool.Close()

	if err := archive.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("op=pipelinectl.migrate: %w", err)
	}
	return nil
}

func runCheck(ctx context.Context, cfg config.Config) error {
	var errs []error

	states, err := wiring.NewStateStore(cfg)
	if err != nil {
		errs = append(errs, fmt.Errorf("state store: %w", err))
	} else if !states.IsHealthy(ctx) {
		errs = append(errs, errors.New("state store: not healthy"))
	}

	archiveRepo, err := wiring.NewArchive(ctx, cfg)
	if err != nil {
		errs = append(errs, fmt.Errorf("archive: %w", err))
	} else if _, err := archiveRepo.List(ctx, 1, 0, ""); err != nil {
		errs = append(errs, fmt.Errorf("archive: %w", err))
	}

	publisher, err := wiring.NewPublisher(ctx, cfg)
	if err != nil {
		errs = append(errs, fmt.Errorf("broker: %w", err))
	} else {
		_ = publisher.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("op=pipelinectl.check: %w", errors.Join(errs...))
	}
	return nil
}
