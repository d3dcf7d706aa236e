package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/internal/domain/catalog"
)

func (h *Handler) listVariations(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	vars, err := h.catalog.List(r.Context(), p.BusinessID)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list variations"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, v := range vars {
				encodeVariation(e, v)
			}
		})
	})
}

func encodeVariation(e *jx.Encoder, v catalog.Variation) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(v.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(v.DisplayName()) })
		e.Field("productName", func(e *jx.Encoder) { e.Str(v.ProductName) })
		e.Field("variationName", func(e *jx.Encoder) { e.Str(v.VariationName) })
		if v.ItemGroup != "" {
			e.Field("itemGroup", func(e *jx.Encoder) { e.Str(v.ItemGroup) })
		}
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, v.Price) })
		if v.PictureURL != "" {
			e.Field("pictureUrl", func(e *jx.Encoder) { e.Str(v.PictureURL) })
		}
	})
}
