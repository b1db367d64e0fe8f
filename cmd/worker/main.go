package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"hr-bulk-import/internal/config"
	"hr-bulk-import/internal/importer"
	"hr-bulk-import/internal/logging"
	"hr-bulk-import/internal/queue"
	"hr-bulk-import/internal/ratelimit"
	"hr-bulk-import/internal/remote"
	"hr-bulk-import/internal/source"
	"hr-bulk-import/internal/store"
	"hr-bulk-import/internal/telemetry"
	"hr-bulk-import/internal/validation"
	workerproc "hr-bulk-import/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	jobs, closeStore, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.JobStore).Msg("open job store")
	}
	defer closeStore()
	if !store.Shared(jobs) {
		log.Fatal().Str("backend", cfg.JobStore).Msg("worker needs a job store shared with the api: set JOB_STORE=redis or postgres")
	}

	q := queue.NewRedisQueue(cfg)
	defer q.Client().Close()

	sources, err := source.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init upload storage")
	}

	var opts []remote.Option
	if cfg.CreateRatePerSec > 0 {
		pacer := ratelimit.NewTokenBucket(q.Client(), cfg.CreateBurst, cfg.CreateRatePerSec, time.Hour)
		opts = append(opts, remote.WithPacer(pacer.Pacer("rl:remote:create")))
	}
	rc := remote.New(cfg.RemoteBaseURL, cfg.RemoteToken, cfg.RemoteTimeout, opts...)
	imp := importer.New(jobs, validation.DefaultRegistry(cfg.SuggestionLimit), rc, rc, log,
		importer.WithProgressEvery(cfg.ProgressEvery))

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	processor := workerproc.NewProcessorWithID(cfg, q, jobs, sources, imp, log, workerID)
	metrics := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := processor.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		return metrics.Shutdown(shutdownCtx)
	})

	log.Info().
		Str("worker_id", workerID).
		Dur("visibility", cfg.VisibilityTimeout).
		Dur("poll_interval", cfg.WorkerPollInterval).
		Dur("backoff_max", cfg.BackoffMax).
		Msg("worker started")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		return
	}
	log.Info().Msg("worker stopped")
}
