package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/pos-checkout/internal/domain/discount"
	"github.com/xenking/pos-checkout/internal/domain/order"
)

const (
	idempotencyKeyConstraint = "orders_idempotency_key_uniq"

	insertOrderSQL = `INSERT INTO orders (id, business_id, user_id, idempotency_key,
		subtotal, discount_total, discounted_subtotal, tax_rate, taxes_total, tip, giftcard_credit, total,
		created_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, position, variation_id, name,
		unit_price, quantity, extended_price)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderDiscountSQL = `INSERT INTO order_discounts (order_id, position, discount_id, name,
		kind, value, amount)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderGiftcardSQL = `INSERT INTO order_giftcards (order_id, position, giftcard_id, amount)
	VALUES ($1, $2, $3, $4)`

	getOrderSQL = `SELECT id, business_id, user_id, COALESCE(idempotency_key, ''),
		subtotal, discount_total, discounted_subtotal, tax_rate, taxes_total, tip, giftcard_credit, total,
		created_at
	FROM orders WHERE business_id = $1 AND id = $2`

	getOrderIDByKeySQL = `SELECT id FROM orders WHERE business_id = $1 AND idempotency_key = $2`

	listOrderLinesSQL = `SELECT position, variation_id, name, unit_price, quantity, extended_price
		FROM order_lines WHERE order_id = $1 ORDER BY position`

	listOrderDiscountsSQL = `SELECT discount_id, name, kind, value, amount
		FROM order_discounts WHERE order_id = $1 ORDER BY position`

	listOrderGiftcardsSQL = `SELECT giftcard_id, amount
		FROM order_giftcards WHERE order_id = $1 ORDER BY position`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Save
// writes several tables and must run on a pgx.Tx to be atomic.
type OrderRepository struct {
	db Querier
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db Querier) *OrderRepository {
	return &OrderRepository{db: db}
}

// Save persists the order header with its line, discount and giftcard
// snapshots. It returns order.ErrDuplicateIdempotencyKey when the key is
// already taken within the business.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	t := o.Totals
	_, err := r.db.Exec(ctx, insertOrderSQL,
		o.ID, o.BusinessID, o.UserID, o.IdempotencyKey,
		t.Subtotal, t.DiscountTotal, t.DiscountedSubtotal, t.TaxRate, t.TaxesTotal, t.Tip, t.GiftcardCredit, t.Total,
		o.CreatedAt,
	)
	if err != nil {
		if uniqueViolation(err, idempotencyKeyConstraint) {
			return order.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, l := range o.Lines {
		if _, err := r.db.Exec(ctx, insertOrderLineSQL,
			o.ID, l.Position, l.VariationID, l.Name, l.UnitPrice, l.Quantity, l.ExtendedPrice,
		); err != nil {
			return fmt.Errorf("creating line %d of order %q: %w", l.Position, o.ID, err)
		}
	}
	for i, d := range o.Discounts {
		if _, err := r.db.Exec(ctx, insertOrderDiscountSQL,
			o.ID, i+1, d.DiscountID, d.Name, string(d.Kind), d.Value, d.Amount,
		); err != nil {
			return fmt.Errorf("creating discount %q of order %q: %w", d.DiscountID, o.ID, err)
		}
	}
	for i, g := range o.Giftcards {
		if _, err := r.db.Exec(ctx, insertOrderGiftcardSQL, o.ID, i+1, g.GiftcardID, g.Amount); err != nil {
			return fmt.Errorf("creating giftcard %q of order %q: %w", g.GiftcardID, o.ID, err)
		}
	}

	return nil
}

// GetByID loads an order of the business with all of its snapshots.
func (r *OrderRepository) GetByID(ctx context.Context, businessID, id string) (*order.Order, error) {
	var (
		o order.Order
		t = &o.Totals
	)
	err := r.db.QueryRow(ctx, getOrderSQL, businessID, id).Scan(
		&o.ID, &o.BusinessID, &o.UserID, &o.IdempotencyKey,
		&t.Subtotal, &t.DiscountTotal, &t.DiscountedSubtotal, &t.TaxRate, &t.TaxesTotal, &t.Tip, &t.GiftcardCredit, &t.Total,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o.CreatedAt = o.CreatedAt.UTC()

	rows, err := r.db.Query(ctx, listOrderLinesSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("listing lines of order %q: %w", id, err)
	}
	if o.Lines, err = pgx.CollectRows(rows, scanOrderLine); err != nil {
		return nil, fmt.Errorf("listing lines of order %q: %w", id, err)
	}

	rows, err = r.db.Query(ctx, listOrderDiscountsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("listing discounts of order %q: %w", id, err)
	}
	if o.Discounts, err = pgx.CollectRows(rows, scanAppliedDiscount); err != nil {
		return nil, fmt.Errorf("listing discounts of order %q: %w", id, err)
	}

	rows, err = r.db.Query(ctx, listOrderGiftcardsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("listing giftcards of order %q: %w", id, err)
	}
	if o.Giftcards, err = pgx.CollectRows(rows, scanAppliedGiftcard); err != nil {
		return nil, fmt.Errorf("listing giftcards of order %q: %w", id, err)
	}

	return &o, nil
}

// GetByIdempotencyKey loads the order created with key within the business.
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, businessID, key string) (*order.Order, error) {
	var id string
	if err := r.db.QueryRow(ctx, getOrderIDByKeySQL, businessID, key).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order by idempotency key: %w", err)
	}
	return r.GetByID(ctx, businessID, id)
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l   order.Line
		qty int32
	)
	err := row.Scan(&l.Position, &l.VariationID, &l.Name, &l.UnitPrice, &qty, &l.ExtendedPrice)
	l.Quantity = int(qty)
	return l, err
}

func scanAppliedDiscount(row pgx.CollectableRow) (order.AppliedDiscount, error) {
	var (
		d    order.AppliedDiscount
		kind string
	)
	err := row.Scan(&d.DiscountID, &d.Name, &kind, &d.Value, &d.Amount)
	d.Kind = discount.Kind(kind)
	return d, err
}

func scanAppliedGiftcard(row pgx.CollectableRow) (order.AppliedGiftcard, error) {
	var g order.AppliedGiftcard
	err := row.Scan(&g.GiftcardID, &g.Amount)
	return g, err
}
