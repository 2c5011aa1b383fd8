package domain

import (
	"context"
	"time"
)

// ProductValidator описывает взаимодействие с внешним product-сервисом.
type ProductValidator interface {
	// Validate отправляет список идентификаторов товаров и возвращает полные
	// записи {id, name, price}. Если хотя бы один id неизвестен, весь вызов
	// завершается ошибкой — частичного результата не бывает.
	Validate(ctx context.Context, productIDs []int64) ([]Product, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// StatusHistoryRepository хранит историю смен статуса заказа.
type StatusHistoryRepository interface {
	Append(change StatusChange) error
	List(orderID string) ([]StatusChange, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
