// Package handler exposes the checkout service over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/internal/domain/catalog"
	"github.com/xenking/pos-checkout/internal/domain/order"
	"github.com/xenking/pos-checkout/internal/domain/pricing"
)

// maxBodyBytes limits request bodies.
const maxBodyBytes = 1 << 20

// Checkout prices carts and commits orders.
type Checkout interface {
	Preview(ctx context.Context, req pricing.Request) (*pricing.Breakdown, error)
	CreateOrder(ctx context.Context, req pricing.CreateRequest) (*pricing.CreateResult, error)
	GetOrder(ctx context.Context, businessID, id string) (*order.Order, error)
}

// Handler serves the checkout API.
type Handler struct {
	catalog  catalog.Repository
	checkout Checkout
	authn    *Authenticator
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(variations catalog.Repository, checkout Checkout, authn *Authenticator) *Handler {
	return &Handler{
		catalog:  variations,
		checkout: checkout,
		authn:    authn,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts the API under /api. Every route requires an API key.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.authn.Middleware)
		r.Get("/variations", h.route(h.listVariations))
		r.Post("/orders/preview", h.route(h.previewOrder))
		r.Post("/orders", h.route(h.createOrder, auth.RoleOwner, auth.RoleEmployee))
		r.Get("/orders/{id}", h.route(h.getOrder))
	})
}

type endpoint func(w http.ResponseWriter, r *http.Request, p auth.Principal)

// route checks the authenticated principal against roles before calling fn.
// No roles accepts any principal bound to a business.
func (h *Handler) route(fn endpoint, roles ...auth.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			h.fail(w, r, auth.ErrUnauthorized)
			return
		}
		if err := p.Require(roles...); err != nil {
			h.fail(w, r, err)
			return
		}
		fn(w, r, p)
	}
}
