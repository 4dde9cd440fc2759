package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tip-dispatcher/internal/app"
	"tip-dispatcher/internal/infra/config"
	applog "tip-dispatcher/internal/infra/log"
	"tip-dispatcher/internal/infra/metrics"
	"tip-dispatcher/internal/usecase/jobs"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	store, err := app.OpenStore(ctx, cfg, false)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к хранилищу")
	}
	defer store.Close()

	client, err := app.Redis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к Redis")
	}
	if client != nil {
		defer client.Close()
	}

	q, closeQueue, err := app.Queue(cfg, client)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось инициализировать очередь")
	}
	if q == nil {
		logger.Fatal().Err(app.ErrInlineQueue).Msg("worker: нечего обрабатывать")
	}
	defer closeQueue()

	registry, err := app.Dispatchers(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось настроить бэкенды доставки")
	}
	_, distributor := app.Services(store, registry)
	runner := jobs.NewRunner(distributor, app.Cache(client), cfg.Scheduler.LeaseTTL, logger, "worker")
	worker := jobs.NewWorker(q, runner, logger)

	logger.Info().Str("queue", cfg.Queues.Driver).Msg("worker: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("worker: остановлен")
}
