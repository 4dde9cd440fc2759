package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tip-dispatcher/internal/app"
	"tip-dispatcher/internal/infra/config"
	applog "tip-dispatcher/internal/infra/log"
	"tip-dispatcher/internal/infra/metrics"
	"tip-dispatcher/internal/usecase/jobs"
	"tip-dispatcher/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	store, err := app.OpenStore(ctx, cfg, true)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к хранилищу")
	}
	defer store.Close()

	client, err := app.Redis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к Redis")
	}
	if client == nil {
		logger.Warn().Msg("scheduler: REDIS_ADDR не задан, дедупликация работает только внутри процесса")
	} else {
		defer client.Close()
	}
	leases := app.Cache(client)

	q, closeQueue, err := app.Queue(cfg, client)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать очередь")
	}
	defer closeQueue()

	var trigger schedule.Trigger
	if q != nil {
		trigger = schedule.EnqueueTrigger(q)
		logger.Info().Str("queue", cfg.Queues.Driver).Msg("scheduler: срабатывания передаются в очередь")
	} else {
		registry, err := app.Dispatchers(cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось настроить бэкенды доставки")
		}
		_, distributor := app.Services(store, registry)
		runner := jobs.NewRunner(distributor, leases, cfg.Scheduler.LeaseTTL, logger, "scheduler")
		trigger = runner.Trigger
		logger.Info().Msg("scheduler: рассылка выполняется в процессе планировщика")
	}

	svc := schedule.NewService(store, leases, trigger, applog.Component(logger, "schedule"),
		schedule.WithLocation(cfg.Location()),
	)

	logger.Info().Str("tz", cfg.TZ).Dur("resync", cfg.Scheduler.Resync).Msg("scheduler: запуск")
	if err := svc.Run(ctx, cfg.Scheduler.Resync); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("scheduler: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("scheduler: остановлен")
}
