package messaging

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type declaredQueue struct {
	name       string
	durable    bool
	autoDelete bool
	exclusive  bool
}

type declaredExchange struct {
	name    string
	kind    string
	durable bool
}

type queueBinding struct {
	queue      string
	routingKey string
	exchange   string
}

type publishedMessage struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

type mockConsumer struct {
	autoAck   bool
	exclusive bool
	handler   func(amqp.Delivery)
}

// mockChannel is a hand-rolled ChannelOps for tests. With routing enabled it
// behaves like a tiny in-memory broker: publishes to the default exchange go
// to the consumer on the queue named by the routing key, and publishes to a
// declared exchange fan out to every bound queue's consumers.
type mockChannel struct {
	mu sync.Mutex

	declareQueueErr    error
	declareExchangeErr error
	bindErr            error
	publishErr         error
	consumeErr         error
	ackErr             error

	declaredQueues    []declaredQueue
	declaredExchanges []declaredExchange
	bindings          []queueBinding
	published         []publishedMessage
	consumers         map[string][]mockConsumer
	acked             []uint64

	nextTag uint64
	route   bool
}

func newMockChannel() *mockChannel {
	return &mockChannel{
		consumers: make(map[string][]mockConsumer),
	}
}

func (m *mockChannel) DeclareQueue(ctx context.Context, name string, durable, autoDelete, exclusive bool, args amqp.Table) (amqp.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.declareQueueErr != nil {
		return amqp.Queue{}, m.declareQueueErr
	}

	m.declaredQueues = append(m.declaredQueues, declaredQueue{
		name:       name,
		durable:    durable,
		autoDelete: autoDelete,
		exclusive:  exclusive,
	})
	return amqp.Queue{Name: name}, nil
}

func (m *mockChannel) DeclareExchange(ctx context.Context, name, kind string, durable, autoDelete bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.declareExchangeErr != nil {
		return m.declareExchangeErr
	}

	m.declaredExchanges = append(m.declaredExchanges, declaredExchange{
		name:    name,
		kind:    kind,
		durable: durable,
	})
	return nil
}

func (m *mockChannel) BindQueue(ctx context.Context, queue, routingKey, exchange string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bindErr != nil {
		return m.bindErr
	}

	m.bindings = append(m.bindings, queueBinding{
		queue:      queue,
		routingKey: routingKey,
		exchange:   exchange,
	})
	return nil
}

func (m *mockChannel) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	m.mu.Lock()

	if m.publishErr != nil {
		m.mu.Unlock()
		return m.publishErr
	}

	m.published = append(m.published, publishedMessage{
		exchange:   exchange,
		routingKey: routingKey,
		msg:        msg,
	})

	if !m.route {
		m.mu.Unlock()
		return nil
	}

	// Resolve target handlers while holding the lock, then invoke them
	// released: handlers publish and ack back through this mock.
	type pending struct {
		handler  func(amqp.Delivery)
		delivery amqp.Delivery
	}
	var targets []pending

	queues := []string{routingKey}
	if exchange != "" {
		queues = nil
		for _, b := range m.bindings {
			if b.exchange == exchange {
				queues = append(queues, b.queue)
			}
		}
	}

	for _, queue := range queues {
		for _, consumer := range m.consumers[queue] {
			m.nextTag++
			targets = append(targets, pending{
				handler: consumer.handler,
				delivery: amqp.Delivery{
					Body:          msg.Body,
					ContentType:   msg.ContentType,
					CorrelationId: msg.CorrelationId,
					ReplyTo:       msg.ReplyTo,
					Headers:       msg.Headers,
					Exchange:      exchange,
					RoutingKey:    routingKey,
					DeliveryTag:   m.nextTag,
					Timestamp:     msg.Timestamp,
				},
			})
		}
	}
	m.mu.Unlock()

	for _, t := range targets {
		t.handler(t.delivery)
	}
	return nil
}

func (m *mockChannel) Consume(ctx context.Context, queue string, autoAck, exclusive bool, handler func(amqp.Delivery)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consumeErr != nil {
		return m.consumeErr
	}

	m.consumers[queue] = append(m.consumers[queue], mockConsumer{
		autoAck:   autoAck,
		exclusive: exclusive,
		handler:   handler,
	})
	return nil
}

func (m *mockChannel) Ack(deliveryTag uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ackErr != nil {
		return m.ackErr
	}

	m.acked = append(m.acked, deliveryTag)
	return nil
}

// deliver injects a delivery straight into the consumers on a queue,
// bypassing routing.
func (m *mockChannel) deliver(queue string, d amqp.Delivery) {
	m.mu.Lock()
	consumers := append([]mockConsumer(nil), m.consumers[queue]...)
	m.mu.Unlock()

	for _, c := range consumers {
		c.handler(d)
	}
}

func (m *mockChannel) declareCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, q := range m.declaredQueues {
		if q.name == name {
			count++
		}
	}
	return count
}

func (m *mockChannel) consumerCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.consumers[queue])
}

func (m *mockChannel) publishedTo(exchange, routingKey string) []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []publishedMessage
	for _, p := range m.published {
		if p.exchange == exchange && p.routingKey == routingKey {
			out = append(out, p)
		}
	}
	return out
}

func (m *mockChannel) ackedTags() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.acked...)
}
