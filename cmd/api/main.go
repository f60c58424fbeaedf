package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mealgen/internal/bootstrap"
	"mealgen/internal/http/handlers"
	httpapi "mealgen/internal/http/httpapi"
	"mealgen/internal/infra"
)

const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire pipeline")
	}

	go rt.Tracker.RunJanitor(ctx, time.Minute)

	app := handlers.NewApp(rt.Coordinator, rt.Metrics, rt.Items, logger)
	app.Objects = rt.Files
	app.Ping = rt.Ping

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMin:    cfg.RateLimitPerMin,
		Prometheus:         rt.Prometheus.Handler(),
		Static:             http.FileServer(http.Dir(rt.Files.BasePath())),
	})

	server := infra.NewHTTPServer(cfg, router, logger)
	server.OnShutdown(app.CloseStreams)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// Batches stop at their next chunk boundary while the listener drains;
	// the pool and tracker are released only after both are done.
	pipelineDone := make(chan error, 1)
	go func() { pipelineDone <- rt.Coordinator.Shutdown(shutdownCtx) }()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := <-pipelineDone; err != nil {
		logger.Error().Err(err).Msg("batches did not finish before shutdown deadline")
	}
	rt.Close()
	logger.Info().Msg("server stopped")
}
