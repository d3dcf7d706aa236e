// Package events announces committed orders on a RabbitMQ topic exchange.
package events

import (
	"context"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/pos-checkout/internal/domain/order"
	"github.com/xenking/pos-checkout/internal/domain/pricing"
)

const (
	// OrderCreatedEvent is the event name and routing key of committed orders.
	OrderCreatedEvent   = "pos.order.created.v1"
	orderCreatedVersion = 1
	producer            = "pos-checkout"
)

var (
	_ pricing.Publisher = Nop{}
	_ pricing.Publisher = (*AMQPPublisher)(nil)
)

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

// PublishOrderCreated implements pricing.Publisher.
func (Nop) PublishOrderCreated(context.Context, *order.Order) error { return nil }

// Envelope identifies a published event.
type Envelope struct {
	EventID    string
	OccurredAt time.Time
}

// EncodeOrderCreated writes the order.created event of o wrapped in the
// common envelope. Money is encoded as strings with two decimals.
func EncodeOrderCreated(e *jx.Encoder, env Envelope, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("eventName", func(e *jx.Encoder) { e.Str(OrderCreatedEvent) })
		e.Field("eventVersion", func(e *jx.Encoder) { e.Int(orderCreatedVersion) })
		e.Field("eventId", func(e *jx.Encoder) { e.Str(env.EventID) })
		e.Field("producer", func(e *jx.Encoder) { e.Str(producer) })
		e.Field("partitionKey", func(e *jx.Encoder) { e.Str(o.BusinessID) })
		e.Field("occurredAt", func(e *jx.Encoder) { e.Str(env.OccurredAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("payload", func(e *jx.Encoder) { encodeOrder(e, o) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	t := o.Totals
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("businessId", func(e *jx.Encoder) { e.Str(o.BusinessID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("variationId", func(e *jx.Encoder) { e.Str(l.VariationID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("unitPrice", func(e *jx.Encoder) { e.Str(l.UnitPrice.StringFixed(2)) })
						e.Field("extendedPrice", func(e *jx.Encoder) { e.Str(l.ExtendedPrice.StringFixed(2)) })
					})
				}
			})
		})
		e.Field("giftcards", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, g := range o.Giftcards {
					e.Obj(func(e *jx.Encoder) {
						e.Field("giftcardId", func(e *jx.Encoder) { e.Str(g.GiftcardID) })
						e.Field("amount", func(e *jx.Encoder) { e.Str(g.Amount.StringFixed(2)) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(t.Subtotal.StringFixed(2)) })
		e.Field("discountTotal", func(e *jx.Encoder) { e.Str(t.DiscountTotal.StringFixed(2)) })
		e.Field("taxesTotal", func(e *jx.Encoder) { e.Str(t.TaxesTotal.StringFixed(2)) })
		e.Field("tip", func(e *jx.Encoder) { e.Str(t.Tip.StringFixed(2)) })
		e.Field("giftcardCredit", func(e *jx.Encoder) { e.Str(t.GiftcardCredit.StringFixed(2)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(t.Total.StringFixed(2)) })
	})
}

func newEnvelope(now time.Time) Envelope {
	return Envelope{EventID: uuid.NewString(), OccurredAt: now}
}
