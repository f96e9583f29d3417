package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/glimte/warren-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCServe(t *testing.T) {
	t.Run("declares the request queue durable and subscribes with manual ack", func(t *testing.T) {
		ch := newMockChannel()
		rpc := newTestRPC(ch)

		err := rpc.Serve(context.Background(), "echo", func(ctx context.Context, msg *contracts.Message, reply ReplyFunc) {})

		require.NoError(t, err)
		require.Equal(t, 1, ch.declareCount("echo"))
		assert.True(t, ch.declaredQueues[0].durable)
		require.Equal(t, 1, ch.consumerCount("echo"))
		assert.False(t, ch.consumers["echo"][0].autoAck)
	})

	t.Run("reply publishes to the reply address and acks the request", func(t *testing.T) {
		ch := newMockChannel()
		rpc := newTestRPC(ch)

		err := rpc.Serve(context.Background(), "echo", func(ctx context.Context, msg *contracts.Message, reply ReplyFunc) {
			assert.NoError(t, reply(ctx, msg.Payload))
		})
		require.NoError(t, err)

		ch.deliver("echo", amqp.Delivery{
			Body:          []byte(`{"x":5}`),
			CorrelationId: "corr-1",
			ReplyTo:       "client.reply.abc",
			DeliveryTag:   7,
		})

		published := ch.publishedTo("", "client.reply.abc")
		require.Len(t, published, 1)
		assert.Equal(t, "corr-1", published[0].msg.CorrelationId)
		assert.JSONEq(t, `{"x":5}`, string(published[0].msg.Body))
		assert.Equal(t, []uint64{7}, ch.ackedTags())
	})

	t.Run("calling reply twice publishes and acks only once", func(t *testing.T) {
		ch := newMockChannel()
		rpc := newTestRPC(ch)

		var first, second error
		err := rpc.Serve(context.Background(), "echo", func(ctx context.Context, msg *contracts.Message, reply ReplyFunc) {
			first = reply(ctx, "one")
			second = reply(ctx, "two")
		})
		require.NoError(t, err)

		ch.deliver("echo", amqp.Delivery{
			CorrelationId: "corr-1",
			ReplyTo:       "client.reply.abc",
			DeliveryTag:   3,
		})

		assert.NoError(t, first)
		assert.NoError(t, second)
		assert.Len(t, ch.publishedTo("", "client.reply.abc"), 1)
		assert.Equal(t, []uint64{3}, ch.ackedTags())
	})

	t.Run("request without a reply address still reaches the handler", func(t *testing.T) {
		ch := newMockChannel()
		rpc := newTestRPC(ch)

		var got *contracts.Message
		err := rpc.Serve(context.Background(), "echo", func(ctx context.Context, msg *contracts.Message, reply ReplyFunc) {
			got = msg
			assert.NoError(t, reply(ctx, "ignored"))
		})
		require.NoError(t, err)

		ch.deliver("echo", amqp.Delivery{
			Body:        []byte(`"orphan"`),
			DeliveryTag: 4,
		})

		require.NotNil(t, got)
		assert.Equal(t, "orphan", got.Payload)
		// the reply function only acknowledges; nothing is published
		assert.Empty(t, ch.published)
		assert.Equal(t, []uint64{4}, ch.ackedTags())
	})

	t.Run("request without a correlation id gets the no-op reply too", func(t *testing.T) {
		ch := newMockChannel()
		rpc := newTestRPC(ch)

		err := rpc.Serve(context.Background(), "echo", func(ctx context.Context, msg *contracts.Message, reply ReplyFunc) {
			assert.NoError(t, reply(ctx, "ignored"))
		})
		require.NoError(t, err)

		ch.deliver("echo", amqp.Delivery{
			ReplyTo:     "client.reply.abc",
			DeliveryTag: 5,
		})

		assert.Empty(t, ch.published)
		assert.Equal(t, []uint64{5}, ch.ackedTags())
	})

	t.Run("reply publish failure leaves the request unacked", func(t *testing.T) {
		ch := newMockChannel()
		rpc := newTestRPC(ch)

		var replyErr error
		err := rpc.Serve(context.Background(), "echo", func(ctx context.Context, msg *contracts.Message, reply ReplyFunc) {
			replyErr = reply(ctx, "pong")
		})
		require.NoError(t, err)

		ch.publishErr = errors.New("broker unreachable")
		ch.deliver("echo", amqp.Delivery{
			CorrelationId: "corr-1",
			ReplyTo:       "client.reply.abc",
			DeliveryTag:   6,
		})

		assert.ErrorContains(t, replyErr, "broker unreachable")
		assert.Empty(t, ch.ackedTags())
	})
}
