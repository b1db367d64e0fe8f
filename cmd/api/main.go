package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "hr-bulk-import/internal/api"
	"hr-bulk-import/internal/config"
	"hr-bulk-import/internal/importer"
	"hr-bulk-import/internal/logging"
	"hr-bulk-import/internal/queue"
	"hr-bulk-import/internal/ratelimit"
	"hr-bulk-import/internal/remote"
	"hr-bulk-import/internal/source"
	"hr-bulk-import/internal/store"
	"hr-bulk-import/internal/validation"
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

	q := queue.NewRedisQueue(cfg)
	if err := q.Client().Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable: async imports and rate limiting will fail")
	}
	limiter := ratelimit.NewTokenBucket(q.Client(), cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	var opts []remote.Option
	if cfg.CreateRatePerSec > 0 {
		pacer := ratelimit.NewTokenBucket(q.Client(), cfg.CreateBurst, cfg.CreateRatePerSec, time.Hour)
		opts = append(opts, remote.WithPacer(pacer.Pacer("rl:remote:create")))
	}
	rc := remote.New(cfg.RemoteBaseURL, cfg.RemoteToken, cfg.RemoteTimeout, opts...)

	sources, err := source.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init upload storage")
	}

	imp := importer.New(jobs, validation.DefaultRegistry(cfg.SuggestionLimit), rc, rc, log,
		importer.WithProgressEvery(cfg.ProgressEvery))

	server := api.New(cfg, api.Deps{
		Jobs:     jobs,
		Importer: imp,
		Queue:    q,
		Sources:  sources,
		Limiter:  limiter,
		Log:      log,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("port", cfg.HTTPPort).Str("job_store", cfg.JobStore).Str("remote", cfg.RemoteBaseURL).Msg("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = q.Client().Close()
}
