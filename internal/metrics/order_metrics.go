package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики основных операций сервиса заказов.
type OrderMetrics struct {
	// Счётчики операций
	ordersCreated prometheus.Counter
	statusChanged *prometheus.CounterVec
	createFailed  *prometheus.CounterVec

	// Гистограммы времени выполнения
	operationDuration *prometheus.HistogramVec
	productValidation prometheus.Histogram

	// Gauge для запросов к шине в полёте
	busRequestsInFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики и регистрирует их в default registerer.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		}),
		statusChanged: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_status_changed_total",
			Help: "Total number of order status transitions grouped by target status",
		}, []string{"status"}),
		createFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_create_failed_total",
			Help: "Total number of failed order creations grouped by reason",
		}, []string{"reason"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_operation_duration_seconds",
			Help:    "Duration of order service operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		productValidation: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "orders_product_validation_duration_seconds",
			Help:    "Duration of product validation round-trips in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		busRequestsInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orders_bus_requests_in_flight",
			Help: "Current number of outbound bus requests awaiting a reply",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(prometheus.Counter); ok2 {
				return existing
			}
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*prometheus.CounterVec); ok2 {
				return existing
			}
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(prometheus.Gauge); ok2 {
				return existing
			}
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(prometheus.Histogram); ok2 {
				return existing
			}
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*prometheus.HistogramVec); ok2 {
				return existing
			}
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordStatusChanged увеличивает счётчик переходов в указанный статус.
func (m *OrderMetrics) RecordStatusChanged(status string) {
	m.statusChanged.WithLabelValues(status).Inc()
}

// RecordCreateFailed увеличивает счётчик неудачных созданий заказов.
func (m *OrderMetrics) RecordCreateFailed(reason string) {
	m.createFailed.WithLabelValues(reason).Inc()
}

// ObserveOperation записывает время выполнения операции сервиса.
func (m *OrderMetrics) ObserveOperation(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveProductValidation записывает время round-trip валидации товаров.
func (m *OrderMetrics) ObserveProductValidation(duration time.Duration) {
	m.productValidation.Observe(duration.Seconds())
}

// RecordBusRequestStarted увеличивает количество запросов к шине в полёте.
func (m *OrderMetrics) RecordBusRequestStarted() {
	m.busRequestsInFlight.Inc()
}

// RecordBusRequestFinished уменьшает количество запросов к шине в полёте.
func (m *OrderMetrics) RecordBusRequestFinished() {
	m.busRequestsInFlight.Dec()
}
