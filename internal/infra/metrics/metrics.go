package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tip-dispatcher/internal/domain"
)

var (
	DistributionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distributions_total",
		Help: "Запуски распространителей по типу и итоговому состоянию",
	}, []string{"type", "state"})

	TipsDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tips_dispatched_total",
		Help: "Количество отправленных советов",
	}, []string{"type"})

	DistributeSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "distribute_seconds",
		Help:    "Длительность одного запуска распространителя",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	ScheduleTriggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_triggers_total",
		Help: "Срабатывания расписания",
	}, []string{"result"})

	ScheduledDistributors = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduled_distributors",
		Help: "Количество распространителей с активным расписанием",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		DistributionsTotal,
		TipsDispatchedTotal,
		DistributeSeconds,
		ScheduleTriggersTotal,
		ScheduledDistributors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveOutcome учитывает результат запуска распространителя.
func ObserveOutcome(out domain.Outcome) {
	typ := string(out.Type)
	if typ == "" {
		typ = "unknown"
	}
	state := string(out.State)
	if state == "" {
		state = string(domain.StateIdle)
	}
	DistributionsTotal.WithLabelValues(typ, state).Inc()
	DistributeSeconds.WithLabelValues(typ).Observe(out.Duration.Seconds())
	if out.Dispatched {
		TipsDispatchedTotal.WithLabelValues(typ).Add(float64(len(out.Tips)))
	}
}

// ObserveTrigger учитывает срабатывание расписания с результатом из usecase/schedule.
func ObserveTrigger(result string) {
	ScheduleTriggersTotal.WithLabelValues(result).Inc()
}
