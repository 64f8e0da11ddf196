package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/bootstrap"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
)

// The worker drains generate-ad jobs without serving HTTP. Run it with
// WORKER_ENABLED=false on the API so only one kind of process claims jobs,
// or alongside it to add capacity.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	rt, err := bootstrap.Build(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build pipeline")
	}
	defer rt.Close()

	if rt.Relay == nil {
		logger.Warn().Msg("worker: EVENTS_BACKEND=memory, status events will not reach API subscribers")
	}

	if err := rt.Pool(cfg, logger).Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}
	rt.Service.Wait()
	logger.Info().Msg("worker: shutdown complete")
}
