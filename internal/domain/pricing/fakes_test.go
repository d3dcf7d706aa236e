package pricing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/catalog"
	"github.com/xenking/pos-checkout/internal/domain/discount"
	"github.com/xenking/pos-checkout/internal/domain/giftcard"
	"github.com/xenking/pos-checkout/internal/domain/order"
	"github.com/xenking/pos-checkout/internal/domain/tax"
)

// --- Fake collaborators ---

type fakeCatalog struct {
	mu   sync.Mutex
	vars map[string]catalog.Variation
	err  error
}

func (f *fakeCatalog) List(_ context.Context, businessID string) ([]catalog.Variation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalog.Variation
	for _, v := range f.vars {
		if v.BusinessID == businessID {
			out = append(out, v)
		}
	}
	return out, f.err
}

func (f *fakeCatalog) GetByID(_ context.Context, businessID, id string) (*catalog.Variation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[id]
	if !ok || v.BusinessID != businessID {
		return nil, catalog.ErrNotFound
	}
	return &v, nil
}

func (f *fakeCatalog) GetByIDs(_ context.Context, businessID string, ids []string) ([]catalog.Variation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []catalog.Variation
	for _, id := range ids {
		if v, ok := f.vars[id]; ok && v.BusinessID == businessID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeCatalog) setPrice(id string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.vars[id]
	v.Price = price
	f.vars[id] = v
}

type fakeDiscounts struct {
	rules map[string]discount.Rule
}

func (f *fakeDiscounts) GetByID(_ context.Context, businessID, id string) (*discount.Rule, error) {
	r, ok := f.rules[id]
	if !ok || r.BusinessID != businessID {
		return nil, discount.ErrNotFound
	}
	return &r, nil
}

type fakeGiftcards struct {
	mu        sync.Mutex
	cards     map[string]giftcard.Card
	onGet     func()
	redeemErr map[string]error
	redeemed  []string
}

func (f *fakeGiftcards) Get(_ context.Context, businessID, id string) (*giftcard.Card, error) {
	f.mu.Lock()
	c, ok := f.cards[id]
	f.mu.Unlock()
	if !ok || c.BusinessID != businessID {
		return nil, giftcard.ErrNotFound
	}
	if f.onGet != nil {
		f.onGet()
	}
	return &c, nil
}

func (f *fakeGiftcards) TryRedeem(_ context.Context, businessID, id string, amount decimal.Decimal) (giftcard.Redemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok || c.BusinessID != businessID {
		return giftcard.Redemption{}, giftcard.ErrNotFound
	}
	f.redeemed = append(f.redeemed, id)
	if err := f.redeemErr[id]; err != nil {
		return giftcard.Redemption{}, err
	}
	if c.Balance.LessThan(amount) {
		return giftcard.Redemption{}, giftcard.ErrInsufficientBalance
	}
	c.Balance = c.Balance.Sub(amount)
	f.cards[id] = c
	return giftcard.Redemption{Applied: amount, NewBalance: c.Balance}, nil
}

func (f *fakeGiftcards) refund(id string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cards[id]
	c.Balance = c.Balance.Add(amount)
	f.cards[id] = c
}

func (f *fakeGiftcards) balance(id string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cards[id].Balance
}

type fakeTaxes struct {
	rates map[string]decimal.Decimal
}

func (f *fakeTaxes) GetTaxRate(_ context.Context, businessID string) (decimal.Decimal, error) {
	r, ok := f.rates[businessID]
	if !ok {
		return decimal.Zero, tax.ErrBusinessNotFound
	}
	return r, nil
}

type fakeOrders struct {
	mu      sync.Mutex
	byID    map[string]*order.Order
	saveErr error
}

func (f *fakeOrders) Save(_ context.Context, o *order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if o.IdempotencyKey != "" {
		for _, existing := range f.byID {
			if existing.BusinessID == o.BusinessID && existing.IdempotencyKey == o.IdempotencyKey {
				return order.ErrDuplicateIdempotencyKey
			}
		}
	}
	f.byID[o.ID] = o
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, businessID, id string) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok || o.BusinessID != businessID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) GetByIdempotencyKey(_ context.Context, businessID, key string) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.byID {
		if o.BusinessID == businessID && o.IdempotencyKey == key {
			return o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

// txGiftcards remembers redemptions so a failed transaction can undo them.
type txGiftcards struct {
	*fakeGiftcards
	redeemed []giftcard.Redemption
	ids      []string
}

func (t *txGiftcards) TryRedeem(ctx context.Context, businessID, id string, amount decimal.Decimal) (giftcard.Redemption, error) {
	r, err := t.fakeGiftcards.TryRedeem(ctx, businessID, id, amount)
	if err == nil {
		t.redeemed = append(t.redeemed, r)
		t.ids = append(t.ids, id)
	}
	return r, err
}

// txOrders stages saved orders until commit.
type txOrders struct {
	*fakeOrders
	pending []*order.Order
}

func (t *txOrders) Save(_ context.Context, o *order.Order) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.saveErr != nil {
		return t.saveErr
	}
	for _, existing := range t.byID {
		if o.IdempotencyKey != "" && existing.BusinessID == o.BusinessID && existing.IdempotencyKey == o.IdempotencyKey {
			return order.ErrDuplicateIdempotencyKey
		}
	}
	t.pending = append(t.pending, o)
	return nil
}

type fakeTx struct {
	base      Stores
	giftcards *fakeGiftcards
	orders    *fakeOrders
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error {
	gc := &txGiftcards{fakeGiftcards: f.giftcards}
	ord := &txOrders{fakeOrders: f.orders}
	st := f.base
	st.Giftcards = gc
	st.Orders = ord

	if err := fn(ctx, st); err != nil {
		for i, r := range gc.redeemed {
			f.giftcards.refund(gc.ids[i], r.Applied)
		}
		return err
	}

	f.orders.mu.Lock()
	defer f.orders.mu.Unlock()
	for _, o := range ord.pending {
		f.orders.byID[o.ID] = o
	}
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) PublishOrderCreated(_ context.Context, o *order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, o.ID)
	return f.err
}

// --- Fixture ---

const (
	bizA = "biz-a"
	bizB = "biz-b"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func nd(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(v))
}

type fixture struct {
	catalog   *fakeCatalog
	discounts *fakeDiscounts
	giftcards *fakeGiftcards
	taxes     *fakeTaxes
	orders    *fakeOrders
	publisher *fakePublisher
	svc       *Service
}

func newFixture(t *testing.T, rounding RoundingMode) *fixture {
	t.Helper()

	past := fixedNow.Add(-24 * time.Hour)
	f := &fixture{
		catalog: &fakeCatalog{vars: map[string]catalog.Variation{
			"coffee": {ID: "coffee", BusinessID: bizA, ProductName: "Coffee", VariationName: "Regular", Price: d("3.00")},
			"muffin": {ID: "muffin", BusinessID: bizA, ProductName: "Muffin", Price: d("2.50")},
			"tea":    {ID: "tea", BusinessID: bizB, ProductName: "Tea", Price: d("2.00")},
		}},
		discounts: &fakeDiscounts{rules: map[string]discount.Rule{
			"pct10":   {ID: "pct10", BusinessID: bizA, Name: "10% off", Kind: discount.KindPercentage, Value: d("10")},
			"off050":  {ID: "off050", BusinessID: bizA, Name: "50c off", Kind: discount.KindFixed, Value: d("0.50")},
			"off100":  {ID: "off100", BusinessID: bizA, Name: "100 off", Kind: discount.KindFixed, Value: d("100")},
			"expired": {ID: "expired", BusinessID: bizA, Name: "old", Kind: discount.KindFixed, Value: d("1"), ValidUntil: &past},
			"pct-b":   {ID: "pct-b", BusinessID: bizB, Name: "B only", Kind: discount.KindPercentage, Value: d("5")},
		}},
		giftcards: &fakeGiftcards{cards: map[string]giftcard.Card{
			"gc-20":   {ID: "gc-20", BusinessID: bizA, Balance: d("20.00")},
			"gc-5":    {ID: "gc-5", BusinessID: bizA, Balance: d("5.00")},
			"gc-1":    {ID: "gc-1", BusinessID: bizA, Balance: d("1.00")},
			"gc-zero": {ID: "gc-zero", BusinessID: bizA, Balance: d("0.00")},
			"gc-b":    {ID: "gc-b", BusinessID: bizB, Balance: d("50.00")},
		}},
		taxes: &fakeTaxes{rates: map[string]decimal.Decimal{
			bizA: d("0.10"),
			bizB: d("0.20"),
		}},
		orders:    &fakeOrders{byID: make(map[string]*order.Order)},
		publisher: &fakePublisher{},
	}

	reads := Stores{
		Catalog:   f.catalog,
		Discounts: f.discounts,
		Giftcards: f.giftcards,
		Taxes:     f.taxes,
		Orders:    f.orders,
	}
	svc, err := NewService(reads, &fakeTx{base: reads, giftcards: f.giftcards, orders: f.orders}, Config{
		Rounding:  rounding,
		Publisher: f.publisher,
		Now:       func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

// exampleCart is two coffees at 3.00 and one muffin at 2.50.
func exampleCart() []CartLine {
	return []CartLine{
		{VariationID: "coffee", Quantity: 2},
		{VariationID: "muffin", Quantity: 1},
	}
}
