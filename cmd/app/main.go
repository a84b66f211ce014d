package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/inkboost/internal/assemble"
	cfgpkg "github.com/local/inkboost/internal/config"
	"github.com/local/inkboost/internal/dispatcher"
	"github.com/local/inkboost/internal/limiter"
	logpkg "github.com/local/inkboost/internal/logger"
	"github.com/local/inkboost/internal/metrics"
	"github.com/local/inkboost/internal/orchestrator"
	"github.com/local/inkboost/internal/queue"
	"github.com/local/inkboost/internal/raster"
	"github.com/local/inkboost/internal/statuscheck"
	"github.com/local/inkboost/internal/storage"
	"github.com/local/inkboost/internal/store"
)

func main() {
	// .env is optional; real environment wins.
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	if err := logpkg.Init(logpkg.OptionsFrom(cfg)); err != nil {
		log.Fatal().Err(err).Msg("logger init failed")
	}
	defer logpkg.Close()
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("storage init failed")
	}

	rasterizer := raster.NewFitzRasterizer(cfg.Render.DPI)
	asm := assemble.New(rasterizer, assemble.PDFEncoder{DPI: cfg.Render.OutputDPI}, assemble.Config{
		Workers: cfg.Render.Workers,
		Timeout: cfg.Render.DocumentTimeout,
	})

	deps := orchestrator.Dependencies{
		Storage:   blobs,
		Assembler: asm,
		Slots:     limiter.New(cfg.Render.MaxSyncDocuments),
	}
	checks := statuscheck.Options{Storage: blobs, Rasterizer: rasterizer}

	// Queue and status share one Redis connection. Without Redis only
	// synchronous previews are served.
	var worker *dispatcher.Worker
	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.DLQStream)
	if err != nil {
		log.Error().Err(err).Msg("redis unavailable; job API disabled")
	} else {
		defer rq.Close()
		rs := store.NewFromClient(rq.Client(), cfg.Queue.StatusTTL)
		deps.Queue = rq
		deps.Status = rs
		checks.Redis = rq

		if cfg.Worker.Enabled {
			host, _ := os.Hostname()
			worker = dispatcher.New(dispatcher.Config{
				Concurrency:   cfg.Worker.Concurrency,
				PollTimeout:   cfg.Worker.PollTimeout,
				Consumer:      "inkboost-" + host,
				DepthInterval: 15 * time.Second,
			}, dispatcher.Deps{Queue: rq, Status: rs, Storage: blobs, Assembler: asm})
			worker.Start()
		}
	}
	deps.Checker = statuscheck.New(checks)

	orch := orchestrator.New(deps, orchestrator.Options{
		PreviewPages:   cfg.Render.PreviewPages,
		MaxUploadBytes: cfg.Render.MaxUploadBytes,
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Int("dpi", cfg.Render.DPI).Str("storage", cfg.Storage.Backend).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if worker != nil {
		if err := worker.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("worker stop timed out; in-flight jobs requeued")
		}
	}
	log.Info().Msg("shutdown complete")
}
