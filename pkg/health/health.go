// Package health serves liveness and readiness probes.
//
// Every check runs in its own goroutine. A check turns unhealthy after
// failureThreshold consecutive failures and healthy again after
// successThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// CheckFunc reports the health of a component.
type CheckFunc func(ctx context.Context) error

// Probe selects the endpoint a check contributes to.
type Probe int

const (
	Liveness Probe = iota
	Readiness
)

func (p Probe) String() string {
	if p == Liveness {
		return "liveness"
	}
	return "readiness"
}

// CheckOption configures a check.
type CheckOption func(c *check)

// WithThresholds sets the consecutive failure and success counts that flip
// the check state.
func WithThresholds(failure, success int) CheckOption {
	return func(c *check) {
		c.failureThreshold = max(failure, 1)
		c.successThreshold = max(success, 1)
	}
}

type check struct {
	name             string
	probe            Probe
	timeout          time.Duration
	fn               CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Only touched by the goroutine running the check.
	fails     int
	successes int
}

func (c *check) lastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once. Must not be called concurrently for the same
// check.
func (c *check) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(checkCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.successes = 0
		c.fails++
		if c.fails >= c.failureThreshold && c.healthy.Swap(false) {
			zctx.From(ctx).Warn("Health check failing",
				zap.String("check", c.name),
				zap.Stringer("probe", c.probe),
				zap.Error(err),
			)
		}
		return
	}

	c.fails = 0
	c.successes++
	if c.successes >= c.successThreshold && !c.healthy.Swap(true) {
		zctx.From(ctx).Info("Health check recovered",
			zap.String("check", c.name),
			zap.Stringer("probe", c.probe),
		)
	}
}

// Health holds the registered checks and the manual readiness flag.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// New creates a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a check. Checks start healthy. Register every check before
// Start.
func (h *Health) Add(probe Probe, name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	c := &check{
		name:             name,
		probe:            probe,
		timeout:          timeout,
		fn:               fn,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// Start runs every check now and then once per interval until ctx is done or
// Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}()
	}
}

// Stop cancels the running checks. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness flag. It is cleared at shutdown so load
// balancers stop routing before the server drains.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

// Register adds GET /livez and GET /readyz to r.
func (h *Health) Register(r chi.Router) {
	r.Get("/livez", h.LiveEndpoint)
	r.Get("/readyz", h.ReadyEndpoint)
}

// LiveEndpoint answers 200 when every liveness check passes and 503 with the
// failing checks otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness))
}

// ReadyEndpoint answers 200 when the service is marked ready and every
// readiness check passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures = append(failures, failure{name: "_readiness", reason: "service is not ready"})
	}
	writeStatus(w, failures)
}

type failure struct {
	name   string
	reason string
}

func (h *Health) failures(probe Probe) []failure {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []failure
	for _, c := range h.checks {
		if c.probe != probe || c.healthy.Load() {
			continue
		}
		reason := "check is unhealthy"
		if err := c.lastError(); err != nil {
			reason = err.Error()
		}
		out = append(out, failure{name: c.name, reason: reason})
	}
	return out
}

// writeStatus writes {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
func writeStatus(w http.ResponseWriter, failures []failure) {
	status := http.StatusOK
	if len(failures) > 0 {
		status = http.StatusServiceUnavailable
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		if len(failures) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, f := range failures {
					e.Field(f.name, func(e *jx.Encoder) { e.Str(f.reason) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
