package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/products"
	"github.com/vladislavdragonenkov/orders/internal/service/bus"
	"github.com/vladislavdragonenkov/orders/internal/service/orders"
	"github.com/vladislavdragonenkov/orders/internal/service/outbox"
	"github.com/vladislavdragonenkov/orders/internal/version"
)

// Run собирает приложение и блокируется до отмены ctx: хранилище по
// cfg.StorageDriver, шина команд поверх Kafka, outbox worker и HTTP-сервер
// метрик и health-проверок.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	orderMetrics := metrics.NewOrderMetrics()

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewCheckerFunc("postgres", func() error {
			return deps.Store.Ping(context.Background())
		}))
	}
	healthHandler.RegisterChecker("outbox", &outboxBacklogChecker{
		repo:       deps.OutboxRepo,
		maxPending: cfg.OutboxMaxPending,
	})

	brokers := cfg.Brokers()
	producer, err := initKafkaProducer(brokers, logger)
	if err != nil {
		return fmt.Errorf("init kafka producer: %w", err)
	}
	defer closeKafka(producer, logger)

	// Без брокеров шина команд не поднимается: остаются метрики и health,
	// валидация товаров идёт через встроенный mock-каталог.
	var validator domain.ProductValidator = products.NewMock()
	var requester *kafka.Requester
	if producer != nil {
		requester, err = kafka.NewRequester(brokers, producer)
		if err != nil {
			return fmt.Errorf("init bus requester: %w", err)
		}
		if err := requester.Start(ctx); err != nil {
			return fmt.Errorf("start bus requester: %w", err)
		}
		validator = products.NewClient(requester, cfg.ProductsTopic, products.WithMetrics(orderMetrics))
	} else {
		logger.Warn("kafka brokers are not configured, command bus is disabled")
	}

	service := orders.NewService(
		deps.Repo,
		validator,
		logger.WithField("layer", "service"),
		orders.WithOutbox(deps.OutboxRepo),
		orders.WithStatusHistory(deps.HistoryRepo),
		orders.WithMetrics(orderMetrics),
	)

	var responder *kafka.Responder
	if producer != nil {
		handler := bus.NewOrderHandler(service, logger.WithField("layer", "bus"))
		responder, err = kafka.NewResponder(brokers, cfg.GroupID, producer, handler.Routes(), bus.MapError, producer)
		if err != nil {
			return fmt.Errorf("init bus responder: %w", err)
		}
		if err := responder.Start(ctx); err != nil {
			return fmt.Errorf("start bus responder: %w", err)
		}
		logger.WithField("group_id", cfg.GroupID).Info("command bus started")
	}

	if producer != nil {
		worker := outbox.NewWorker(
			deps.OutboxRepo,
			outbox.NewKafkaPublisher(producer, kafka.TopicOrderEvents),
			outbox.WithDLQPublisher(outbox.NewKafkaPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go worker.Run(ctx)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем сервис")

	if responder != nil {
		if err := responder.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop bus responder")
		}
	}
	if requester != nil {
		if err := requester.Close(); err != nil {
			logger.WithError(err).Warn("failed to stop bus requester")
		}
	}
	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}

// outboxBacklogChecker сигнализирует degraded, когда backlog outbox
// превышает настроенный порог.
type outboxBacklogChecker struct {
	repo       domain.OutboxRepository
	maxPending int
}

func (c *outboxBacklogChecker) Check() healthcheck.Check {
	start := time.Now()
	stats, err := c.repo.Stats()
	elapsed := time.Since(start)

	check := healthcheck.Check{
		Name:       "outbox",
		Status:     healthcheck.StatusHealthy,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		check.Status = healthcheck.StatusUnhealthy
		check.Message = err.Error()
		return check
	}
	if c.maxPending > 0 && stats.PendingCount > c.maxPending {
		check.Status = healthcheck.StatusDegraded
		check.Message = fmt.Sprintf("outbox backlog %d exceeds threshold %d", stats.PendingCount, c.maxPending)
	}
	return check
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проверок.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
