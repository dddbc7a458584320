package main

// Periodically resets usage windows that have ended:
//   go run ./cmd/worker

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"resume-tailor/internal/bootstrap"
	"resume-tailor/internal/shared/config"
	"resume-tailor/internal/shared/storage/db"
	"resume-tailor/internal/shared/telemetry"
	"resume-tailor/internal/usage"
)

const (
	defaultIntervalSeconds = 300
	defaultBatchSize       = 200
)

// roller is the slice of usage.Service the worker drives.
type roller interface {
	RollOver(ctx context.Context, batch int) (int, error)
}

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbOpts := db.DefaultWorkerOptions()
	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{SkipRouter: true, DBOptions: &dbOpts})
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()
	if app.DB == nil {
		log.Fatal("worker requires DATABASE_URL")
	}

	interval := time.Duration(envInt("WORKER_INTERVAL_SECONDS", defaultIntervalSeconds)) * time.Second
	batch := envInt("WORKER_BATCH_SIZE", defaultBatchSize)
	telemetry.Info("worker.started", map[string]any{"interval": interval.String(), "batch": batch})

	run(ctx, app.UsageService, interval, batch)
	telemetry.Info("worker.stopped", nil)
}

var _ roller = (*usage.Service)(nil)

// run sweeps immediately, then on every tick until ctx ends.
func run(ctx context.Context, r roller, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sweep(ctx, r, batch)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sweep drains due profiles in batches. A short batch means nothing is left.
func sweep(ctx context.Context, r roller, batch int) int {
	total := 0
	for {
		n, err := r.RollOver(ctx, batch)
		total += n
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				telemetry.Error("worker.rollover_failed", map[string]any{"error": err.Error(), "reset": total})
			}
			return total
		}
		if n < batch {
			break
		}
	}
	if total > 0 {
		telemetry.Info("worker.rollover", map[string]any{"reset": total})
	}
	return total
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return def
	}
	return val
}
