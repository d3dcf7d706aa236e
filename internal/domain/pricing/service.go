package pricing

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/domain/giftcard"
	"github.com/xenking/pos-checkout/internal/domain/order"
)

// Transactor runs fn with Stores bound to a single database transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error
}

// Publisher announces committed orders to other systems.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, o *order.Order) error
}

// Config holds optional Service settings.
type Config struct {
	Rounding  RoundingMode
	Publisher Publisher
	Tracer    trace.Tracer
	Meter     metric.Meter
	Now       func() time.Time
}

// CreateResult holds the outcome of CreateOrder. Replayed is set when the
// order already existed for the idempotency key.
type CreateResult struct {
	Order    *order.Order
	Replayed bool
}

// Service prices carts and commits orders.
type Service struct {
	reads     Stores
	tx        Transactor
	publisher Publisher
	rounding  RoundingMode
	tracer    trace.Tracer
	now       func() time.Time

	previews          metric.Int64Counter
	orders            metric.Int64Counter
	giftcardConflicts metric.Int64Counter
	orderTotal        metric.Float64Histogram
}

// NewService creates a Service. reads serves previews and order lookups; tx
// provides the transactional Stores for CreateOrder.
func NewService(reads Stores, tx Transactor, cfg Config) (*Service, error) {
	if cfg.Rounding == "" {
		cfg.Rounding = RoundHalfUp
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	if cfg.Meter == nil {
		cfg.Meter = metricnoop.NewMeterProvider().Meter("")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Service{
		reads:     reads,
		tx:        tx,
		publisher: cfg.Publisher,
		rounding:  cfg.Rounding,
		tracer:    cfg.Tracer,
		now:       cfg.Now,
	}

	var err error
	if s.previews, err = cfg.Meter.Int64Counter("pos.checkout.previews",
		metric.WithDescription("Computed cart previews"),
	); err != nil {
		return nil, errors.Wrap(err, "previews counter")
	}
	if s.orders, err = cfg.Meter.Int64Counter("pos.checkout.orders",
		metric.WithDescription("Committed orders"),
	); err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	if s.giftcardConflicts, err = cfg.Meter.Int64Counter("pos.checkout.giftcard_conflicts",
		metric.WithDescription("Checkouts rejected by a concurrent giftcard redemption"),
	); err != nil {
		return nil, errors.Wrap(err, "giftcard conflicts counter")
	}
	if s.orderTotal, err = cfg.Meter.Float64Histogram("pos.checkout.order_total",
		metric.WithDescription("Grand total of committed orders"),
	); err != nil {
		return nil, errors.Wrap(err, "order total histogram")
	}

	return s, nil
}

// Preview prices a cart without side effects. Repeated calls with unchanged
// catalogue, tax rate and giftcard balances return identical breakdowns.
func (s *Service) Preview(ctx context.Context, req Request) (_ *Breakdown, rerr error) {
	ctx, span := s.tracer.Start(ctx, "pricing.Preview",
		trace.WithAttributes(attribute.String("business.id", req.BusinessID)),
	)
	defer func() { endSpan(span, rerr) }()

	b, err := s.price(ctx, s.reads, req)
	if err != nil {
		return nil, err
	}

	s.previews.Add(ctx, 1, metric.WithAttributes(attribute.String("business.id", req.BusinessID)))
	return b, nil
}

// CreateOrder recomputes the breakdown, redeems giftcards and persists the
// order in one transaction. A giftcard whose balance was taken by a
// concurrent checkout fails the whole commit with a ConflictError.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (_ *CreateResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "pricing.CreateOrder",
		trace.WithAttributes(
			attribute.String("business.id", req.BusinessID),
			attribute.Bool("idempotent", req.IdempotencyKey != ""),
		),
	)
	defer func() { endSpan(span, rerr) }()

	if req.UserID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "user id required"}
	}

	var result *CreateResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		if req.IdempotencyKey != "" {
			existing, err := st.Orders.GetByIdempotencyKey(ctx, req.BusinessID, req.IdempotencyKey)
			switch {
			case err == nil:
				result = &CreateResult{Order: existing, Replayed: true}
				return nil
			case !errors.Is(err, order.ErrNotFound):
				return errors.Wrap(err, "lookup idempotency key")
			}
		}

		b, err := s.price(ctx, st, req.Request)
		if err != nil {
			return err
		}

		// Cards are locked in id order so checkouts sharing cards cannot
		// deadlock each other.
		redeem := slices.SortedFunc(slices.Values(b.Giftcards), func(x, y order.AppliedGiftcard) int {
			return cmp.Compare(x.GiftcardID, y.GiftcardID)
		})
		for _, g := range redeem {
			if _, err := st.Giftcards.TryRedeem(ctx, req.BusinessID, g.GiftcardID, g.Amount); err != nil {
				switch {
				case errors.Is(err, giftcard.ErrInsufficientBalance), errors.Is(err, giftcard.ErrContended):
					return &ConflictError{Resource: "giftcard", ID: g.GiftcardID, Err: err}
				case errors.Is(err, giftcard.ErrNotFound):
					return &NotFoundError{Entity: "giftcard", ID: g.GiftcardID, Err: err}
				default:
					return errors.Wrapf(err, "redeem giftcard %s", g.GiftcardID)
				}
			}
		}

		o := &order.Order{
			ID:             uuid.NewString(),
			BusinessID:     req.BusinessID,
			UserID:         req.UserID,
			Lines:          b.Lines,
			Discounts:      b.Discounts,
			Giftcards:      b.Giftcards,
			Totals:         b.Totals,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      s.now().UTC(),
		}
		if err := o.Validate(); err != nil {
			return errors.Wrap(err, "validate order")
		}
		if err := st.Orders.Save(ctx, o); err != nil {
			return errors.Wrap(err, "save order")
		}

		result = &CreateResult{Order: o}
		return nil
	})
	if err != nil {
		// A concurrent request with the same key may have won the race; its
		// order is the answer to this one too.
		if replay, ok := s.replay(ctx, req); ok {
			return replay, nil
		}
		if Classify(err) == KindConflict {
			s.giftcardConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("business.id", req.BusinessID)))
		}
		return nil, err
	}

	if !result.Replayed {
		s.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("business.id", req.BusinessID)))
		s.orderTotal.Record(ctx, result.Order.Totals.Total.InexactFloat64())
		s.publish(ctx, result.Order)
	}
	return result, nil
}

// GetOrder returns a committed order of the business.
func (s *Service) GetOrder(ctx context.Context, businessID, id string) (*order.Order, error) {
	o, err := s.reads.Orders.GetByID(ctx, businessID, id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, &NotFoundError{Entity: "order", ID: id, Err: err}
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

func (s *Service) replay(ctx context.Context, req CreateRequest) (*CreateResult, bool) {
	if req.IdempotencyKey == "" {
		return nil, false
	}
	o, err := s.reads.Orders.GetByIdempotencyKey(ctx, req.BusinessID, req.IdempotencyKey)
	if err != nil {
		return nil, false
	}
	return &CreateResult{Order: o, Replayed: true}, true
}

func (s *Service) publish(ctx context.Context, o *order.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderCreated(ctx, o); err != nil {
		zctx.From(ctx).Warn("Publish order created",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Classify(err).String())
	}
	span.End()
}
