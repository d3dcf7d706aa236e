package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/pkg/httpmiddleware"
)

// APIKeyHeader carries the raw API key.
const APIKeyHeader = "api_key"

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, as stored in
// the api_keys table.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator resolves API keys to principals.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given API key repository
// and HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate looks up the HMAC of key and compares it in constant time
// with the stored hash. Unknown keys yield auth.ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (auth.Principal, error) {
	if key == "" {
		return auth.Principal{}, auth.ErrUnauthorized
	}

	hash := HashAPIKey(a.pepper, key)
	info, err := a.apikeys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			return auth.Principal{}, err
		}
		return auth.Principal{}, errors.Wrap(err, "find api key")
	}

	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return auth.Principal{}, auth.ErrUnauthorized
	}

	return auth.Principal{
		KeyID:      info.ID,
		UserID:     info.UserID,
		BusinessID: info.BusinessID,
		Role:       info.Role,
	}, nil
}

// Middleware authenticates the request from the api_key header or a Bearer
// token and stores the principal in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p, err := a.Authenticate(ctx, credentials(r))
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			w.Header().Set("WWW-Authenticate", "Bearer")
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			zctx.From(ctx).Error("Authenticate", zap.Error(err))
			httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}

		ctx = auth.WithPrincipal(ctx, p)
		ctx = zctx.With(ctx,
			zap.String("user_id", p.UserID),
			zap.String("business_id", p.BusinessID),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func credentials(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
