package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Шина работает по схеме request/reply поверх асинхронного транспорта:
// запрос несёт correlation id и reply-топик, ответ приходит отдельным
// сообщением, а вызывающая сторона блокируется на канале до ответа или
// истечения контекста.

// publisher — минимальный контракт отправки сообщений; выделен для тестов.
type publisher interface {
	Publish(topic string, key string, value []byte, headers []sarama.RecordHeader) error
}

// RemoteError — ошибка, возвращённая удалённой стороной в RPC-ответе.
type RemoteError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
}

// ReplyEnvelope — конверт RPC-ответа: либо data, либо error.
type ReplyEnvelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *RemoteError    `json:"error,omitempty"`
}

// Requester отправляет запросы в шину и сопоставляет ответы по correlation id.
// Безопасен для конкурентного использования.
type Requester struct {
	publisher  publisher
	replyTopic string
	consumer   *Consumer
	logger     *log.Entry

	mu      sync.Mutex
	pending map[string]chan ReplyEnvelope
}

// NewRequester создаёт requester с собственным reply-топиком и consumer group:
// каждый инстанс слушает только свои ответы.
func NewRequester(brokers []string, producer *Producer) (*Requester, error) {
	instance := shortID()
	r := &Requester{
		publisher:  producer,
		replyTopic: fmt.Sprintf("%s.%s", TopicReplies, instance),
		logger:     log.WithField("component", "bus-requester"),
		pending:    make(map[string]chan ReplyEnvelope),
	}

	consumer, err := NewConsumer(brokers, "orders-requester-"+instance, []string{r.replyTopic}, r.handleReply)
	if err != nil {
		return nil, fmt.Errorf("create reply consumer: %w", err)
	}
	r.consumer = consumer

	return r, nil
}

// Start запускает consumer reply-топика.
func (r *Requester) Start(ctx context.Context) error {
	return r.consumer.Start(ctx)
}

// Close останавливает consumer reply-топика.
func (r *Requester) Close() error {
	if r.consumer == nil {
		return nil
	}
	return r.consumer.Stop()
}

// ReplyTopic возвращает топик, в который придут ответы этому инстансу.
func (r *Requester) ReplyTopic() string {
	return r.replyTopic
}

// Request отправляет payload в topic и блокируется до ответа или отмены ctx.
func (r *Requester) Request(ctx context.Context, topic string, payload interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal bus request: %w", err)
	}

	correlationID := uuid.NewString()
	ch := make(chan ReplyEnvelope, 1)

	r.mu.Lock()
	r.pending[correlationID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, correlationID)
		r.mu.Unlock()
	}()

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderCorrelationID), Value: []byte(correlationID)},
		{Key: []byte(HeaderReplyTo), Value: []byte(r.replyTopic)},
	}
	if err := r.publisher.Publish(topic, correlationID, data, headers); err != nil {
		return nil, fmt.Errorf("publish bus request: %w", err)
	}

	select {
	case envelope := <-ch:
		if envelope.Error != nil {
			return nil, envelope.Error
		}
		return envelope.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleReply доставляет ответ ожидающему вызову по correlation id.
// Чужие и опоздавшие ответы подтверждаются без обработки.
func (r *Requester) handleReply(_ context.Context, message *sarama.ConsumerMessage) error {
	correlationID := headerValue(message, HeaderCorrelationID)
	if correlationID == "" {
		r.logger.WithField("topic", message.Topic).Warn("reply without correlation id")
		return nil
	}

	r.mu.Lock()
	ch, ok := r.pending[correlationID]
	r.mu.Unlock()
	if !ok {
		r.logger.WithField("correlation_id", correlationID).Debug("late or unknown reply")
		return nil
	}

	var envelope ReplyEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		r.logger.WithError(err).WithField("correlation_id", correlationID).Warn("malformed reply payload")
		envelope = ReplyEnvelope{Error: &RemoteError{Status: http.StatusInternalServerError, Message: "malformed reply payload"}}
	}

	select {
	case ch <- envelope:
	default:
		// Канал буферизован на один ответ; дубликат игнорируем.
	}
	return nil
}

// HandlerFunc обрабатывает payload запроса и возвращает результат для ответа.
type HandlerFunc func(ctx context.Context, payload []byte) (interface{}, error)

// ErrorMapper переводит ошибку обработчика в RemoteError ответа.
type ErrorMapper func(err error) RemoteError

// Responder принимает запросы из набора топиков и публикует ответы
// в reply-топик из заголовков запроса.
type Responder struct {
	consumer  *Consumer
	publisher publisher
	routes    map[string]HandlerFunc
	mapError  ErrorMapper
	logger    *log.Entry
}

// NewResponder создаёт responder поверх consumer group.
// Сообщения без reply-метаданных после исчерпания retry уходят в DLQ.
func NewResponder(brokers []string, groupID string, producer *Producer, routes map[string]HandlerFunc, mapError ErrorMapper, dlqProducer *Producer) (*Responder, error) {
	if mapError == nil {
		mapError = func(error) RemoteError {
			return RemoteError{Status: http.StatusInternalServerError, Message: "internal error"}
		}
	}

	r := &Responder{
		publisher: producer,
		routes:    routes,
		mapError:  mapError,
		logger:    log.WithField("component", "bus-responder"),
	}

	topics := make([]string, 0, len(routes))
	for topic := range routes {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	consumer, err := NewConsumerWithDLQ(brokers, groupID, topics, r.handle, dlqProducer, 3)
	if err != nil {
		return nil, fmt.Errorf("create request consumer: %w", err)
	}
	r.consumer = consumer

	return r, nil
}

// Start запускает consumer входящих запросов.
func (r *Responder) Start(ctx context.Context) error {
	return r.consumer.Start(ctx)
}

// Stop останавливает consumer входящих запросов.
func (r *Responder) Stop() error {
	return r.consumer.Stop()
}

// handle обрабатывает один запрос. Ошибка обработчика превращается в
// error-ответ и считается успешной обработкой; ошибкой сообщения являются
// только отсутствие reply-метаданных и неудачная публикация ответа.
func (r *Responder) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	correlationID := headerValue(message, HeaderCorrelationID)
	replyTo := headerValue(message, HeaderReplyTo)
	if correlationID == "" || replyTo == "" {
		return fmt.Errorf("bus request without reply metadata: topic=%s", message.Topic)
	}

	handler, ok := r.routes[message.Topic]
	if !ok {
		return fmt.Errorf("no handler registered for topic %s", message.Topic)
	}

	var envelope ReplyEnvelope
	result, err := handler(ctx, message.Value)
	if err != nil {
		remote := r.mapError(err)
		envelope.Error = &remote
	} else {
		data, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			r.logger.WithError(marshalErr).WithField("topic", message.Topic).Error("failed to marshal reply data")
			envelope.Error = &RemoteError{Status: http.StatusInternalServerError, Message: "internal error"}
		} else {
			envelope.Data = data
		}
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal reply envelope: %w", err)
	}

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderCorrelationID), Value: []byte(correlationID)},
	}
	if err := r.publisher.Publish(replyTo, correlationID, body, headers); err != nil {
		return fmt.Errorf("publish reply: %w", err)
	}

	return nil
}

func headerValue(message *sarama.ConsumerMessage, key string) string {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}

func shortID() string {
	return uuid.NewString()[:8]
}
