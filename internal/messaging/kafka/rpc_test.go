package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	topic   string
	key     string
	value   []byte
	headers []sarama.RecordHeader
}

type stubPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	notify    chan publishedMessage
	err       error
}

func newStubPublisher() *stubPublisher {
	return &stubPublisher{notify: make(chan publishedMessage, 8)}
}

func (s *stubPublisher) Publish(topic string, key string, value []byte, headers []sarama.RecordHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	msg := publishedMessage{topic: topic, key: key, value: value, headers: headers}
	s.published = append(s.published, msg)
	s.notify <- msg
	return nil
}

func (s *stubPublisher) last(t *testing.T) publishedMessage {
	t.Helper()
	select {
	case msg := <-s.notify:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message was published")
		return publishedMessage{}
	}
}

func newTestRequester(pub *stubPublisher) *Requester {
	return &Requester{
		publisher:  pub,
		replyTopic: TopicReplies + ".test",
		logger:     log.WithField("component", "bus-requester"),
		pending:    make(map[string]chan ReplyEnvelope),
	}
}

func headerByKey(headers []sarama.RecordHeader, key string) string {
	for _, header := range headers {
		if string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}

func TestRequester_Request_Success(t *testing.T) {
	t.Parallel()

	pub := newStubPublisher()
	requester := newTestRequester(pub)

	type result struct {
		data json.RawMessage
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		data, err := requester.Request(context.Background(), TopicValidateProducts, []int64{1, 2})
		resultCh <- result{data: data, err: err}
	}()

	request := pub.last(t)
	require.Equal(t, TopicValidateProducts, request.topic)
	require.JSONEq(t, `[1,2]`, string(request.value))

	correlationID := headerByKey(request.headers, HeaderCorrelationID)
	require.NotEmpty(t, correlationID)
	require.Equal(t, requester.ReplyTopic(), headerByKey(request.headers, HeaderReplyTo))

	reply, err := json.Marshal(ReplyEnvelope{Data: json.RawMessage(`[{"id":1,"name":"Keyboard","price":49.9}]`)})
	require.NoError(t, err)

	require.NoError(t, requester.handleReply(context.Background(), &sarama.ConsumerMessage{
		Topic: requester.ReplyTopic(),
		Value: reply,
		Headers: []*sarama.RecordHeader{
			{Key: []byte(HeaderCorrelationID), Value: []byte(correlationID)},
		},
	}))

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		require.JSONEq(t, `[{"id":1,"name":"Keyboard","price":49.9}]`, string(res.data))
	case <-time.After(time.Second):
		t.Fatal("request did not complete")
	}
}

func TestRequester_Request_RemoteError(t *testing.T) {
	t.Parallel()

	pub := newStubPublisher()
	requester := newTestRequester(pub)

	errCh := make(chan error, 1)
	go func() {
		_, err := requester.Request(context.Background(), TopicFindOne, map[string]string{"id": "abc"})
		errCh <- err
	}()

	request := pub.last(t)
	correlationID := headerByKey(request.headers, HeaderCorrelationID)

	reply, err := json.Marshal(ReplyEnvelope{Error: &RemoteError{Status: 404, Message: "Order with id #abc not found"}})
	require.NoError(t, err)

	require.NoError(t, requester.handleReply(context.Background(), &sarama.ConsumerMessage{
		Value: reply,
		Headers: []*sarama.RecordHeader{
			{Key: []byte(HeaderCorrelationID), Value: []byte(correlationID)},
		},
	}))

	select {
	case err := <-errCh:
		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		require.Equal(t, 404, remote.Status)
		require.Equal(t, "Order with id #abc not found", remote.Message)
	case <-time.After(time.Second):
		t.Fatal("request did not complete")
	}
}

func TestRequester_Request_ContextCancelled(t *testing.T) {
	t.Parallel()

	pub := newStubPublisher()
	requester := newTestRequester(pub)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := requester.Request(ctx, TopicFindAll, nil)
		errCh <- err
	}()

	pub.last(t)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("request did not abort on cancel")
	}
}

func TestRequester_HandleReply_UnknownCorrelation(t *testing.T) {
	t.Parallel()

	requester := newTestRequester(newStubPublisher())

	// Опоздавший ответ подтверждается без ошибки.
	err := requester.handleReply(context.Background(), &sarama.ConsumerMessage{
		Value: []byte(`{"data":{}}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(HeaderCorrelationID), Value: []byte("unknown")},
		},
	})
	require.NoError(t, err)
}

func newTestResponder(pub *stubPublisher, routes map[string]HandlerFunc, mapError ErrorMapper) *Responder {
	if mapError == nil {
		mapError = func(error) RemoteError {
			return RemoteError{Status: http.StatusInternalServerError, Message: "internal error"}
		}
	}
	return &Responder{
		publisher: pub,
		routes:    routes,
		mapError:  mapError,
		logger:    log.WithField("component", "bus-responder"),
	}
}

func requestMessage(topic, correlationID, replyTo string, payload []byte) *sarama.ConsumerMessage {
	var headers []*sarama.RecordHeader
	if correlationID != "" {
		headers = append(headers, &sarama.RecordHeader{Key: []byte(HeaderCorrelationID), Value: []byte(correlationID)})
	}
	if replyTo != "" {
		headers = append(headers, &sarama.RecordHeader{Key: []byte(HeaderReplyTo), Value: []byte(replyTo)})
	}
	return &sarama.ConsumerMessage{Topic: topic, Value: payload, Headers: headers}
}

func TestResponder_Handle_Success(t *testing.T) {
	t.Parallel()

	pub := newStubPublisher()
	responder := newTestResponder(pub, map[string]HandlerFunc{
		TopicFindOne: func(_ context.Context, payload []byte) (interface{}, error) {
			require.JSONEq(t, `{"id":"abc"}`, string(payload))
			return map[string]string{"id": "abc", "status": "PENDING"}, nil
		},
	}, nil)

	err := responder.handle(context.Background(), requestMessage(TopicFindOne, "corr-1", "replies.a", []byte(`{"id":"abc"}`)))
	require.NoError(t, err)

	reply := pub.last(t)
	require.Equal(t, "replies.a", reply.topic)
	require.Equal(t, "corr-1", reply.key)
	require.Equal(t, "corr-1", headerByKey(reply.headers, HeaderCorrelationID))

	var envelope ReplyEnvelope
	require.NoError(t, json.Unmarshal(reply.value, &envelope))
	require.Nil(t, envelope.Error)
	require.JSONEq(t, `{"id":"abc","status":"PENDING"}`, string(envelope.Data))
}

func TestResponder_Handle_HandlerErrorBecomesErrorReply(t *testing.T) {
	t.Parallel()

	pub := newStubPublisher()
	responder := newTestResponder(pub, map[string]HandlerFunc{
		TopicChangeStatus: func(context.Context, []byte) (interface{}, error) {
			return nil, errors.New("boom")
		},
	}, func(error) RemoteError {
		return RemoteError{Status: 500, Message: "Internal server error"}
	})

	// Ошибка обработчика не считается ошибкой сообщения: ответ опубликован.
	err := responder.handle(context.Background(), requestMessage(TopicChangeStatus, "corr-2", "replies.b", []byte(`{}`)))
	require.NoError(t, err)

	reply := pub.last(t)
	var envelope ReplyEnvelope
	require.NoError(t, json.Unmarshal(reply.value, &envelope))
	require.NotNil(t, envelope.Error)
	require.Equal(t, 500, envelope.Error.Status)
	require.Equal(t, "Internal server error", envelope.Error.Message)
}

func TestResponder_Handle_MissingReplyMetadata(t *testing.T) {
	t.Parallel()

	responder := newTestResponder(newStubPublisher(), map[string]HandlerFunc{
		TopicCreateOrder: func(context.Context, []byte) (interface{}, error) {
			return nil, nil
		},
	}, nil)

	err := responder.handle(context.Background(), requestMessage(TopicCreateOrder, "", "", []byte(`{}`)))
	require.Error(t, err)
}

func TestResponder_Handle_UnknownTopic(t *testing.T) {
	t.Parallel()

	responder := newTestResponder(newStubPublisher(), map[string]HandlerFunc{}, nil)

	err := responder.handle(context.Background(), requestMessage("orders.unknown", "corr-3", "replies.c", nil))
	require.Error(t, err)
}
