package main

import (
	"testing"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
)

func dlqMessage(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic: kafka.TopicDeadLetterQueue,
		Value: []byte(value),
	}
}

func TestExtractReplayMessage_ConsumerPayload(t *testing.T) {
	t.Parallel()

	msg := dlqMessage(`{
		"original_topic": "orders.create",
		"original_key":   "corr-1",
		"original_value": "{\"items\":[]}"
	}`)

	replay, ok := extractReplayMessage(msg, kafka.TopicOrderEvents)
	if !ok {
		t.Fatal("expected consumer payload to be recognized")
	}
	if replay.topic != "orders.create" {
		t.Errorf("expected original topic, got %s", replay.topic)
	}
	if replay.key != "corr-1" {
		t.Errorf("unexpected key: %s", replay.key)
	}
	if string(replay.value) != `{"items":[]}` {
		t.Errorf("unexpected value: %s", replay.value)
	}
}

func TestExtractReplayMessage_ConsumerPayloadFallbackTopic(t *testing.T) {
	t.Parallel()

	msg := dlqMessage(`{"original_key": "k", "original_value": "body"}`)

	replay, ok := extractReplayMessage(msg, kafka.TopicOrderEvents)
	if !ok {
		t.Fatal("expected payload to be recognized")
	}
	if replay.topic != kafka.TopicOrderEvents {
		t.Errorf("expected fallback topic, got %s", replay.topic)
	}
}

func TestExtractReplayMessage_OutboxPayload(t *testing.T) {
	t.Parallel()

	msg := dlqMessage(`{
		"outbox_id":    "out-1",
		"aggregate_id": "order-1",
		"event_type":   "order.created",
		"payload":      {"orderId": "order-1"}
	}`)

	replay, ok := extractReplayMessage(msg, kafka.TopicOrderEvents)
	if !ok {
		t.Fatal("expected outbox payload to be recognized")
	}
	if replay.topic != kafka.TopicOrderEvents {
		t.Errorf("outbox replay must target default topic, got %s", replay.topic)
	}
	if replay.key != "order-1" {
		t.Errorf("expected aggregate id as key, got %s", replay.key)
	}
}

func TestExtractReplayMessage_OutboxPayloadKeyFallback(t *testing.T) {
	t.Parallel()

	msg := dlqMessage(`{"outbox_id": "out-2", "payload": {"x": 1}}`)

	replay, ok := extractReplayMessage(msg, kafka.TopicOrderEvents)
	if !ok {
		t.Fatal("expected outbox payload to be recognized")
	}
	if replay.key != "out-2" {
		t.Errorf("expected outbox id as key fallback, got %s", replay.key)
	}
}

func TestExtractReplayMessage_Unsupported(t *testing.T) {
	t.Parallel()

	cases := []string{
		`not json`,
		`{}`,
		`{"some": "other", "shape": true}`,
		``,
	}
	for _, raw := range cases {
		if _, ok := extractReplayMessage(dlqMessage(raw), kafka.TopicOrderEvents); ok {
			t.Errorf("expected %q to be skipped", raw)
		}
	}
}

func TestParseBrokers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"kafka:9092", 1},
		{"a:9092, b:9092", 2},
		{", ,", 0},
	}
	for _, tc := range cases {
		if got := len(parseBrokers(tc.raw)); got != tc.want {
			t.Errorf("parseBrokers(%q) returned %d brokers, want %d", tc.raw, got, tc.want)
		}
	}
}
