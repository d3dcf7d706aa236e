package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/pricing"
)

// bodyError reports a request body that is not valid JSON of the expected
// shape.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return "malformed request body: " + e.err.Error() }

func (e *bodyError) Unwrap() error { return e.err }

type lineInput struct {
	VariationID string `validate:"required,max=128"`
	Quantity    int `validate:"lte=100000"`
}

type redemptionInput struct {
	Kind   string `validate:"required,oneof=discount giftcard"`
	ID     string `validate:"required,max=128"`
	Amount decimal.NullDecimal
}

// checkoutInput is the body of preview and create requests.
type checkoutInput struct {
	Lines       []lineInput `validate:"max=500,dive"`
	Tip         decimal.NullDecimal
	Redemptions []redemptionInput `validate:"max=32,dive"`
}

func (in checkoutInput) request(businessID string) pricing.Request {
	req := pricing.Request{
		BusinessID: businessID,
		Tip:        in.Tip,
	}
	for _, l := range in.Lines {
		req.Lines = append(req.Lines, pricing.CartLine{VariationID: l.VariationID, Quantity: l.Quantity})
	}
	for _, rd := range in.Redemptions {
		req.Redemptions = append(req.Redemptions, pricing.Redemption{
			Kind:   pricing.RedemptionKind(rd.Kind),
			ID:     rd.ID,
			Amount: rd.Amount,
		})
	}
	return req
}

// readCheckout reads and decodes a checkoutInput from the request body.
func readCheckout(w http.ResponseWriter, r *http.Request) (checkoutInput, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return checkoutInput{}, &bodyError{err: err}
	}
	in, err := decodeCheckout(data)
	if err != nil {
		return checkoutInput{}, &bodyError{err: err}
	}
	return in, nil
}

func decodeCheckout(data []byte) (checkoutInput, error) {
	var in checkoutInput
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeLine(d)
				if err != nil {
					return err
				}
				in.Lines = append(in.Lines, l)
				return nil
			})
		case "tip":
			return decodeNullMoney(d, &in.Tip)
		case "redemptions":
			return d.Arr(func(d *jx.Decoder) error {
				rd, err := decodeRedemption(d)
				if err != nil {
					return err
				}
				in.Redemptions = append(in.Redemptions, rd)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return in, err
}

func decodeLine(d *jx.Decoder) (lineInput, error) {
	var l lineInput
	err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "variationId":
			l.VariationID, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

func decodeRedemption(d *jx.Decoder) (redemptionInput, error) {
	var rd redemptionInput
	err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "kind":
			rd.Kind, err = d.Str()
		case "id":
			rd.ID, err = d.Str()
		case "amount":
			err = decodeNullMoney(d, &rd.Amount)
		default:
			err = d.Skip()
		}
		return err
	})
	return rd, err
}

// decodeNullMoney accepts a JSON string, number or null.
func decodeNullMoney(d *jx.Decoder, dst *decimal.NullDecimal) error {
	var raw string
	switch d.Next() {
	case jx.Null:
		*dst = decimal.NullDecimal{}
		return d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return err
		}
		raw = n.String()
	default:
		return errors.New("money must be a string or number")
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return errors.Wrapf(err, "parse money %q", raw)
	}
	*dst = decimal.NewNullDecimal(v)
	return nil
}

// encodeMoney writes v as a string with two decimal places.
func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
