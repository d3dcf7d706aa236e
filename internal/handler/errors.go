package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/internal/domain/pricing"
	"github.com/xenking/pos-checkout/pkg/httpmiddleware"
)

// fail maps err to an HTTP status and writes the error body. Internal errors
// are logged and hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusOf(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	httpmiddleware.WriteError(w, status, message)
}

func statusOf(err error) (int, string) {
	var bErr *bodyError
	switch {
	case errors.As(err, &bErr):
		return http.StatusBadRequest, bErr.Error()
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}

	switch pricing.Classify(err) {
	case pricing.KindValidation:
		if errors.Is(err, pricing.ErrEmptyCart) {
			return http.StatusBadRequest, err.Error()
		}
		return http.StatusUnprocessableEntity, err.Error()
	case pricing.KindNotFound:
		return http.StatusNotFound, err.Error()
	case pricing.KindConflict:
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// validationError converts validator errors to the first offending field.
func validationError(err error) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return &pricing.ValidationError{Reason: err.Error(), Err: err}
	}
	fe := vErrs[0]
	return &pricing.ValidationError{
		Field:  fieldPath(fe.Namespace()),
		Reason: reasonOf(fe),
		Err:    err,
	}
}

// fieldPath turns "checkoutInput.Redemptions[0].Kind" into "redemptions[0].kind".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "ID") {
			p = p[:len(p)-2] + "Id"
		}
		if p == "Id" {
			p = "id"
		}
		parts[i] = strings.ToLower(p[:1]) + p[1:]
	}
	return strings.Join(parts, ".")
}

func reasonOf(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "max":
		return fmt.Sprintf("must have at most %s items or characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
