package outbox

import (
	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
)

// KafkaPublisher адаптирует kafka.Producer под domain.OutboxPublisher.
// События заказов партиционируются по aggregate_id, чтобы сохранить
// порядок событий одного заказа.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaPublisher создаёт publisher событий заказов.
// Пустой topic означает топик по умолчанию orders.events.
func NewKafkaPublisher(producer *kafka.Producer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = kafka.TopicOrderEvents
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish отправляет событие в настроенный топик.
func (p *KafkaPublisher) Publish(event domain.OutboxMessage) error {
	return p.producer.Publish(p.topic, event.AggregateID, event.Payload, nil)
}

var _ domain.OutboxPublisher = (*KafkaPublisher)(nil)
