package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/internal/domain/order"
	"github.com/xenking/pos-checkout/internal/domain/pricing"
)

// IdempotencyKeyHeader carries the client supplied key of a checkout.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

func (h *Handler) previewOrder(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	in, err := h.decode(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	b, err := h.checkout.Preview(r.Context(), in.request(p.BusinessID))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			encodePricedFields(e, b.Lines, b.Discounts, b.Giftcards, b.Totals)
		})
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	key := r.Header.Get(IdempotencyKeyHeader)
	if len(key) > maxIdempotencyKeyLen {
		h.fail(w, r, &pricing.ValidationError{Field: IdempotencyKeyHeader, Reason: "too long"})
		return
	}

	in, err := h.decode(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.checkout.CreateOrder(r.Context(), pricing.CreateRequest{
		Request:        in.request(p.BusinessID),
		UserID:         p.UserID,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, res.Order) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	o, err := h.checkout.GetOrder(r.Context(), p.BusinessID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// decode reads the checkout body and validates its shape.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (checkoutInput, error) {
	in, err := readCheckout(w, r)
	if err != nil {
		return in, err
	}
	if err := h.validate.Struct(in); err != nil {
		return in, validationError(err)
	}
	return in, nil
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("businessId", func(e *jx.Encoder) { e.Str(o.BusinessID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		if o.IdempotencyKey != "" {
			e.Field("idempotencyKey", func(e *jx.Encoder) { e.Str(o.IdempotencyKey) })
		}
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		encodePricedFields(e, o.Lines, o.Discounts, o.Giftcards, o.Totals)
	})
}

// encodePricedFields writes the fields shared by previews and orders into the
// current object.
func encodePricedFields(
	e *jx.Encoder,
	lines []order.Line,
	discounts []order.AppliedDiscount,
	giftcards []order.AppliedGiftcard,
	t order.Totals,
) {
	e.Field("lines", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, l := range lines {
				e.Obj(func(e *jx.Encoder) {
					e.Field("position", func(e *jx.Encoder) { e.Int(l.Position) })
					e.Field("variationId", func(e *jx.Encoder) { e.Str(l.VariationID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
					e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, l.UnitPrice) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					e.Field("extendedPrice", func(e *jx.Encoder) { encodeMoney(e, l.ExtendedPrice) })
				})
			}
		})
	})
	e.Field("discounts", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, d := range discounts {
				e.Obj(func(e *jx.Encoder) {
					e.Field("discountId", func(e *jx.Encoder) { e.Str(d.DiscountID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(d.Name) })
					e.Field("kind", func(e *jx.Encoder) { e.Str(string(d.Kind)) })
					e.Field("value", func(e *jx.Encoder) { e.Str(d.Value.String()) })
					e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, d.Amount) })
				})
			}
		})
	})
	e.Field("giftcards", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, g := range giftcards {
				e.Obj(func(e *jx.Encoder) {
					e.Field("giftcardId", func(e *jx.Encoder) { e.Str(g.GiftcardID) })
					e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, g.Amount) })
				})
			}
		})
	})
	e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, t.Subtotal) })
	e.Field("discountTotal", func(e *jx.Encoder) { encodeMoney(e, t.DiscountTotal) })
	e.Field("discountedSubtotal", func(e *jx.Encoder) { encodeMoney(e, t.DiscountedSubtotal) })
	e.Field("taxRate", func(e *jx.Encoder) { e.Str(t.TaxRate.String()) })
	e.Field("taxesTotal", func(e *jx.Encoder) { encodeMoney(e, t.TaxesTotal) })
	e.Field("tip", func(e *jx.Encoder) { encodeMoney(e, t.Tip) })
	e.Field("giftcardCredit", func(e *jx.Encoder) { encodeMoney(e, t.GiftcardCredit) })
	e.Field("total", func(e *jx.Encoder) { encodeMoney(e, t.Total) })
}
