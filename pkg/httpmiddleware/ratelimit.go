package httpmiddleware

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

// Rate limit response headers.
const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
)

// RateLimitConfig configures the fixed window rate limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// Store keeps the counters. A redis store shares them between replicas.
	Store limiter.Store
	// KeyFunc extracts the limiter key. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// RateLimit enforces a per-key request budget. Rejected requests get 429
// with Retry-After. Store failures let the request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	key := cfg.KeyFunc
	if key == nil {
		key = ClientIP
	}
	lim := limiter.New(cfg.Store, limiter.Rate{Period: cfg.Window, Limit: int64(cfg.Max)})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, err := lim.Get(r.Context(), key(r))
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			setRateHeaders(w.Header(), state)

			if state.Reached {
				wait := max(state.Reset-time.Now().Unix(), 0)
				w.Header().Set("Retry-After", strconv.FormatInt(wait, 10))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setRateHeaders(h http.Header, state limiter.Context) {
	h.Set(HeaderRateLimit, strconv.FormatInt(state.Limit, 10))
	h.Set(HeaderRateRemaining, strconv.FormatInt(state.Remaining, 10))
	h.Set(HeaderRateReset, strconv.FormatInt(state.Reset, 10))
}

// ClientIP returns the caller address: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection address. Header values that do not parse
// as an IP are ignored.
func ClientIP(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		if addr, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
			return addr.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
