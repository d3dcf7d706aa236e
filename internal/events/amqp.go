package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/pos-checkout/internal/domain/order"
)

const publishTimeout = 3 * time.Second

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes order events to a topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
	now      func() time.Time
}

// NewAMQPPublisher returns a publisher writing to exchange over ch.
func NewAMQPPublisher(ch Channel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, now: time.Now}
}

// DialAMQP connects to the broker at url and declares the durable topic
// exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}

	p := NewAMQPPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

// PublishOrderCreated publishes a persistent order.created message keyed by
// the event name.
func (p *AMQPPublisher) PublishOrderCreated(ctx context.Context, o *order.Order) error {
	env := newEnvelope(p.now())

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	EncodeOrderCreated(e, env, o)
	body := append([]byte(nil), e.Bytes()...)

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := p.ch.PublishWithContext(ctx, p.exchange, OrderCreatedEvent, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.EventID,
		Timestamp:    env.OccurredAt,
		Type:         OrderCreatedEvent,
		AppId:        producer,
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s for order %s", OrderCreatedEvent, o.ID)
	}
	return nil
}

// Close closes the channel and the connection opened by DialAMQP.
func (p *AMQPPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
