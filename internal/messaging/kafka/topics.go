package kafka

import "time"

// Топики входящих команд orders-сервиса: шина работает в режиме
// request/reply, каждая команда ожидает ответ в reply-топик запросившего.
const (
	TopicCreateOrder  = "orders.create"
	TopicFindAll      = "orders.find_all"
	TopicFindOne      = "orders.find_one"
	TopicChangeStatus = "orders.change_status"
)

const (
	// TopicValidateProducts — запрос к внешнему product-сервису.
	TopicValidateProducts = "products.validate"
	// TopicOrderEvents — исходящие события заказов (через outbox).
	TopicOrderEvents = "orders.events"
	// TopicReplies — базовый топик ответов; каждый инстанс дополняет его
	// собственным суффиксом, чтобы не перехватывать чужие ответы.
	TopicReplies = "orders.replies"
	// TopicDeadLetterQueue — DLQ для сообщений, которые не удалось обработать.
	TopicDeadLetterQueue = "orders.dlq"
)

// Заголовки RPC-конверта и retry-логики consumer.
const (
	HeaderCorrelationID = "x-correlation-id"
	HeaderReplyTo       = "x-reply-to"
	HeaderRetryCount    = "x-retry-count"
)

// EventType определяет тип события заказа.
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
)

// OrderEvent представляет событие жизненного цикла заказа.
type OrderEvent struct {
	EventType   EventType `json:"event_type"`
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	TotalAmount float64   `json:"total_amount"`
	TotalItems  int32     `json:"total_items"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа.
func NewOrderEvent(eventType EventType, orderID, status string, totalAmount float64, totalItems int32) *OrderEvent {
	return &OrderEvent{
		EventType:   eventType,
		OrderID:     orderID,
		Status:      status,
		TotalAmount: totalAmount,
		TotalItems:  totalItems,
		Timestamp:   time.Now().UTC(),
	}
}
