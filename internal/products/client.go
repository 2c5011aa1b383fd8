package products

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

const defaultRequestTimeout = 5 * time.Second

// requester — контракт RPC-слоя шины; выделен для подмены в тестах.
type requester interface {
	Request(ctx context.Context, topic string, payload interface{}) (json.RawMessage, error)
}

// Client — реализация ProductValidator поверх request/reply шины.
// Один вызов Validate — один блокирующий round-trip к product-сервису.
type Client struct {
	requester requester
	topic     string
	timeout   time.Duration
	logger    *log.Entry
	metrics   *metrics.OrderMetrics
}

// Option настраивает Client.
type Option func(*Client)

// WithTopic переопределяет топик запросов к product-сервису.
func WithTopic(topic string) Option {
	return func(c *Client) {
		if topic != "" {
			c.topic = topic
		}
	}
}

// WithTimeout задаёт потолок ожидания ответа, если ctx без дедлайна.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMetrics подключает метрики валидации.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient создаёт клиент product-сервиса поверх requester.
func NewClient(req requester, topic string, options ...Option) *Client {
	client := &Client{
		requester: req,
		topic:     topic,
		timeout:   defaultRequestTimeout,
		logger:    log.WithField("component", "products-client"),
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// Validate отправляет список идентификаторов и возвращает полные записи
// товаров. Любая ошибка обмена или неизвестный id на стороне product-сервиса
// проваливает весь вызов.
func (c *Client) Validate(ctx context.Context, productIDs []int64) ([]domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("product ids are required")
	}

	// Внутренних retry нет: дедлайн управляется транспортом либо этим таймаутом.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.metrics != nil {
		c.metrics.RecordBusRequestStarted()
		defer c.metrics.RecordBusRequestFinished()
	}

	start := time.Now()
	raw, err := c.requester.Request(ctx, c.topic, productIDs)
	if c.metrics != nil {
		c.metrics.ObserveProductValidation(time.Since(start))
	}
	if err != nil {
		c.logger.WithError(err).WithField("product_ids", productIDs).Warn("product validation failed")
		return nil, fmt.Errorf("validate products: %w", err)
	}

	var result []domain.Product
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode product validation reply: %w", err)
	}

	return result, nil
}

var _ domain.ProductValidator = (*Client)(nil)
