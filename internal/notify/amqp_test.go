package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	exchange, key string
	msg           amqp091.Publishing
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func TestAMQPNotifierPublishes(t *testing.T) {
	ch := &fakeChannel{}
	a := &AMQPNotifier{channel: ch, exchange: DefaultExchange}

	err := a.Notify(context.Background(), "u9", Payload{Kind: KindPsychometricResult, Text: "A+"})
	require.NoError(t, err)

	assert.Equal(t, DefaultExchange, ch.exchange)
	assert.Equal(t, "notify.psychometric_result", ch.key)
	assert.Equal(t, amqp091.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "u9", ch.msg.Headers["recipient"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(ch.msg.Body, &body))
	assert.Equal(t, "A+", body["text"])
	assert.NoError(t, a.Close())
}
