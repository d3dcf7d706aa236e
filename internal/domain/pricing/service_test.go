package pricing

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-checkout/internal/domain/giftcard"
	"github.com/xenking/pos-checkout/internal/domain/order"
)

func createRequest(key string, redemptions ...Redemption) CreateRequest {
	return CreateRequest{
		Request: Request{
			BusinessID:  bizA,
			Lines:       exampleCart(),
			Tip:         nd("1.00"),
			Redemptions: redemptions,
		},
		UserID:         "user-1",
		IdempotencyKey: key,
	}
}

func TestCreateOrder_Success(t *testing.T) {
	f := newFixture(t, RoundHalfUp)

	res, err := f.svc.CreateOrder(context.Background(), createRequest("",
		Redemption{Kind: RedeemDiscount, ID: "pct10"},
		Redemption{Kind: RedeemGiftcard, ID: "gc-5"},
	))
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.False(t, res.Replayed)

	o := res.Order
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, bizA, o.BusinessID)
	assert.Equal(t, "user-1", o.UserID)
	assert.Equal(t, fixedNow, o.CreatedAt)
	require.Len(t, o.Lines, 2)
	require.Len(t, o.Discounts, 1)
	require.Len(t, o.Giftcards, 1)

	assert.Equal(t, "7.65", money(o.Totals.DiscountedSubtotal))
	assert.Equal(t, "0.77", money(o.Totals.TaxesTotal))
	assert.Equal(t, "5.00", money(o.Totals.GiftcardCredit))
	assert.Equal(t, "4.42", money(o.Totals.Total))
	require.NoError(t, o.Validate())

	assert.Equal(t, "0.00", money(f.giftcards.balance("gc-5")))

	stored, err := f.svc.GetOrder(context.Background(), bizA, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)

	assert.Equal(t, []string{o.ID}, f.publisher.published)
}

func TestCreateOrder_MatchesPreview(t *testing.T) {
	f := newFixture(t, RoundHalfUp)
	req := createRequest("", Redemption{Kind: RedeemDiscount, ID: "off050"})

	preview, err := f.svc.Preview(context.Background(), req.Request)
	require.NoError(t, err)

	res, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, render(preview), render(&Breakdown{
		Lines:     res.Order.Lines,
		Discounts: res.Order.Discounts,
		Giftcards: res.Order.Giftcards,
		Totals:    res.Order.Totals,
	}))
}

func TestCreateOrder_FreezesPrices(t *testing.T) {
	f := newFixture(t, RoundHalfUp)

	res, err := f.svc.CreateOrder(context.Background(), createRequest(""))
	require.NoError(t, err)

	f.catalog.setPrice("coffee", d("9.99"))

	stored, err := f.svc.GetOrder(context.Background(), bizA, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "3.00", money(stored.Lines[0].UnitPrice))
	assert.Equal(t, "10.35", money(stored.Totals.Total))
}

func TestCreateOrder_UsesCommitTimePrices(t *testing.T) {
	f := newFixture(t, RoundHalfUp)
	req := createRequest("")

	preview, err := f.svc.Preview(context.Background(), req.Request)
	require.NoError(t, err)
	assert.Equal(t, "8.50", money(preview.Subtotal))

	f.catalog.setPrice("coffee", d("3.50"))

	res, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "9.50", money(res.Order.Totals.Subtotal))
}

func TestCreateOrder_IdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t, RoundHalfUp)
	req := createRequest("key-1", Redemption{Kind: RedeemGiftcard, ID: "gc-20"})

	first, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Equal(t, "11.50", money(f.giftcards.balance("gc-20")))

	second, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	assert.Equal(t, 1, f.orders.count())
	assert.Equal(t, "11.50", money(f.giftcards.balance("gc-20")), "replay must not redeem again")
	assert.Len(t, f.publisher.published, 1)
}

func TestCreateOrder_ConcurrentGiftcardRedemption(t *testing.T) {
	f := newFixture(t, RoundHalfUp)

	// Both checkouts read the balance before either redeems.
	var barrier sync.WaitGroup
	barrier.Add(2)
	f.giftcards.onGet = func() {
		barrier.Done()
		barrier.Wait()
	}

	const workers = 2
	var (
		wg      sync.WaitGroup
		results = make([]*CreateResult, workers)
		errs    = make([]error, workers)
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.svc.CreateOrder(context.Background(),
				createRequest("", Redemption{Kind: RedeemGiftcard, ID: "gc-5"}))
		}()
	}
	wg.Wait()

	var succeeded, conflicts int
	for i := range workers {
		if errs[i] == nil {
			succeeded++
			assert.Equal(t, "5.00", money(results[i].Order.Totals.GiftcardCredit))
			continue
		}
		var cErr *ConflictError
		if assert.ErrorAs(t, errs[i], &cErr) {
			conflicts++
			assert.Equal(t, "giftcard", cErr.Resource)
			assert.Equal(t, "gc-5", cErr.ID)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, "0.00", money(f.giftcards.balance("gc-5")))
	assert.Equal(t, 1, f.orders.count())
}

func TestCreateOrder_RedeemsGiftcardsInIDOrder(t *testing.T) {
	f := newFixture(t, RoundHalfUp)

	res, err := f.svc.CreateOrder(context.Background(), createRequest("",
		Redemption{Kind: RedeemGiftcard, ID: "gc-5"},
		Redemption{Kind: RedeemGiftcard, ID: "gc-1"},
	))
	require.NoError(t, err)

	// Credit is applied in request order, locks are taken in id order.
	require.Len(t, res.Order.Giftcards, 2)
	assert.Equal(t, "gc-5", res.Order.Giftcards[0].GiftcardID)
	assert.Equal(t, "5.00", money(res.Order.Giftcards[0].Amount))
	assert.Equal(t, "1.00", money(res.Order.Giftcards[1].Amount))
	assert.Equal(t, []string{"gc-1", "gc-5"}, f.giftcards.redeemed)
}

func TestCreateOrder_ContendedGiftcardIsConflict(t *testing.T) {
	f := newFixture(t, RoundHalfUp)
	f.giftcards.redeemErr = map[string]error{
		"gc-5": errors.Wrap(giftcard.ErrContended, "deadlock detected"),
	}

	res, err := f.svc.CreateOrder(context.Background(), createRequest("",
		Redemption{Kind: RedeemGiftcard, ID: "gc-20", Amount: nd("3.00")},
		Redemption{Kind: RedeemGiftcard, ID: "gc-5"},
	))
	require.Error(t, err)
	assert.Nil(t, res)

	var cErr *ConflictError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "gc-5", cErr.ID)
	assert.Equal(t, KindConflict, Classify(err))
	assert.Equal(t, []string{"gc-20", "gc-5"}, f.giftcards.redeemed)
	assert.Equal(t, "20.00", money(f.giftcards.balance("gc-20")), "earlier redemption rolled back")
	assert.Zero(t, f.orders.count())
}

func TestCreateOrder_RollsBackOnSaveFailure(t *testing.T) {
	f := newFixture(t, RoundHalfUp)
	f.orders.saveErr = errors.New("disk full")

	res, err := f.svc.CreateOrder(context.Background(), createRequest("",
		Redemption{Kind: RedeemGiftcard, ID: "gc-20"},
	))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, KindInternal, Classify(err))

	assert.Equal(t, "20.00", money(f.giftcards.balance("gc-20")))
	assert.Zero(t, f.orders.count())
	assert.Empty(t, f.publisher.published)
}

func TestCreateOrder_PublishFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t, RoundHalfUp)
	f.publisher.err = errors.New("broker unavailable")

	res, err := f.svc.CreateOrder(context.Background(), createRequest(""))
	require.NoError(t, err)
	assert.NotNil(t, res.Order)
	assert.Equal(t, 1, f.orders.count())
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      CreateRequest
		wantKind Kind
		wantErr  error
	}{
		{
			name: "missing user",
			req: CreateRequest{Request: Request{
				BusinessID: bizA,
				Lines:      exampleCart(),
			}},
			wantKind: KindValidation,
		},
		{
			name: "empty cart",
			req: CreateRequest{
				Request: Request{BusinessID: bizA},
				UserID:  "user-1",
			},
			wantKind: KindValidation,
			wantErr:  ErrEmptyCart,
		},
		{
			name: "merged quantity overflow",
			req: CreateRequest{
				Request: Request{BusinessID: bizA, Lines: []CartLine{
					{VariationID: "coffee", Quantity: math.MaxInt},
					{VariationID: "coffee", Quantity: 1},
				}},
				UserID: "user-1",
			},
			wantKind: KindValidation,
			wantErr:  ErrQuantityTooLarge,
		},
		{
			name:     "unknown giftcard",
			req:      createRequest("", Redemption{Kind: RedeemGiftcard, ID: "missing"}),
			wantKind: KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, RoundHalfUp)

			res, err := f.svc.CreateOrder(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.wantKind, Classify(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Zero(t, f.orders.count())
		})
	}
}

func TestGetOrder_OtherBusiness(t *testing.T) {
	f := newFixture(t, RoundHalfUp)

	res, err := f.svc.CreateOrder(context.Background(), createRequest(""))
	require.NoError(t, err)

	_, err = f.svc.GetOrder(context.Background(), bizB, res.Order.ID)
	var nErr *NotFoundError
	require.ErrorAs(t, err, &nErr)
	assert.Equal(t, "order", nErr.Entity)
	assert.ErrorIs(t, err, order.ErrNotFound)
}
