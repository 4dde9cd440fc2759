package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tip-dispatcher/internal/app"
	"tip-dispatcher/internal/infra/config"
	httpinfra "tip-dispatcher/internal/infra/http"
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

	store, err := app.OpenStore(ctx, cfg, false)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к хранилищу")
	}
	defer store.Close()

	client, err := app.Redis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к Redis")
	}
	if client != nil {
		defer client.Close()
	}
	q, closeQueue, err := app.Queue(cfg, client)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось инициализировать очередь")
	}
	defer closeQueue()

	registry, err := app.Dispatchers(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось настроить бэкенды доставки")
	}
	selector, distributor := app.Services(store, registry)
	runner := jobs.NewRunner(distributor, app.Cache(client), cfg.Scheduler.LeaseTTL, logger, "api")

	if cfg.API.Token == "" {
		logger.Warn().Msg("api: API_TOKEN не задан, ручной запуск рассылки закрыт")
	}

	srv := httpinfra.NewServer(applog.Component(logger, "http"))
	httpinfra.NewAPI(runner, q, selector, store, logger).Mount(srv.Router, cfg.API.Token)

	go func() {
		logger.Info().Msg("api: старт")
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
