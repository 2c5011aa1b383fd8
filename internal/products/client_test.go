package products

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
)

type stubRequester struct {
	lastTopic   string
	lastPayload interface{}
	reply       json.RawMessage
	err         error
	hadDeadline bool
}

func (s *stubRequester) Request(ctx context.Context, topic string, payload interface{}) (json.RawMessage, error) {
	s.lastTopic = topic
	s.lastPayload = payload
	_, s.hadDeadline = ctx.Deadline()
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

func TestClient_Validate_Success(t *testing.T) {
	t.Parallel()

	stub := &stubRequester{
		reply: json.RawMessage(`[{"id":1,"name":"Keyboard","price":49.9},{"id":2,"name":"Mouse","price":19.9}]`),
	}
	client := NewClient(stub, kafka.TopicValidateProducts)

	result, err := client.Validate(context.Background(), []int64{1, 2})
	require.NoError(t, err)

	require.Equal(t, kafka.TopicValidateProducts, stub.lastTopic)
	require.Equal(t, []int64{1, 2}, stub.lastPayload)
	require.Len(t, result, 2)
	require.Equal(t, "Keyboard", result[0].Name)
	require.InDelta(t, 19.9, result[1].Price, 1e-9)
}

func TestClient_Validate_EmptyIDs(t *testing.T) {
	t.Parallel()

	client := NewClient(&stubRequester{}, kafka.TopicValidateProducts)

	_, err := client.Validate(context.Background(), nil)
	require.Error(t, err)
}

func TestClient_Validate_RequesterError(t *testing.T) {
	t.Parallel()

	stub := &stubRequester{err: errors.New("no brokers available")}
	client := NewClient(stub, kafka.TopicValidateProducts)

	_, err := client.Validate(context.Background(), []int64{1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "validate products")
}

func TestClient_Validate_MalformedReply(t *testing.T) {
	t.Parallel()

	stub := &stubRequester{reply: json.RawMessage(`{"unexpected":"shape"}`)}
	client := NewClient(stub, kafka.TopicValidateProducts)

	_, err := client.Validate(context.Background(), []int64{1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode product validation reply")
}

func TestClient_Validate_AppliesTimeoutWithoutDeadline(t *testing.T) {
	t.Parallel()

	stub := &stubRequester{reply: json.RawMessage(`[]`)}
	client := NewClient(stub, kafka.TopicValidateProducts, WithTimeout(time.Second))

	_, err := client.Validate(context.Background(), []int64{1})
	require.NoError(t, err)
	require.True(t, stub.hadDeadline, "client must bound the request with a deadline")
}
