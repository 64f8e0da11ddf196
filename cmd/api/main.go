package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/bootstrap"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/http/handlers"
	httpapi "github.com/abdulwaheed16/shopster-server-sub000/internal/http/httpapi"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra/geoip"
)

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	rt, err := bootstrap.Build(ctx, cfg, dbpool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer rt.Close()

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, country detection disabled")
	}
	defer resolver.Close()

	if cfg.CallbackSecret == "" {
		logger.Warn().Msg("CALLBACK_SECRET is empty: /ads/n8n-callback accepts unauthenticated requests")
	}

	// Background loops stop when runCtx is cancelled.
	runCtx, stopRun := context.WithCancel(ctx)
	var background sync.WaitGroup

	if rt.Relay != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			if err := rt.Relay.Listen(runCtx); err != nil {
				logger.Error().Err(err).Msg("events relay stopped")
			}
		}()
	}

	if cfg.WorkerEnabled {
		pool := rt.Pool(cfg, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			if err := pool.Run(runCtx); err != nil {
				logger.Error().Err(err).Msg("worker pool stopped")
			}
		}()
	} else {
		logger.Info().Msg("in-process worker disabled, run cmd/worker to drain the queue")
	}

	app := handlers.NewApp(rt.Service, rt.Events, dbpool, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		CallbackSecret:  cfg.CallbackSecret,
		AllowedOrigins:  cfg.AllowedOrigins,
		DefaultLocale:   "en",
		CountryLookup:   resolver.Lookup(),
		SubmitPerMinute: cfg.RateLimitPerMin,
		StaticDir:       rt.StaticDir,
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	stopRun()
	background.Wait()
	rt.Service.Wait()
	logger.Info().Msg("server stopped")
}
