package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// InjectLogger stores lg in the request context for zctx.From.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := zctx.Base(r.Context(), lg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LogRequests logs every request after it completes. Server errors are
// logged at error level.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			lg := zctx.From(r.Context())
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", find(r)),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.code()),
				zap.Int("size", sw.size),
				zap.Duration("duration", time.Since(start)),
			}
			if sw.code() >= http.StatusInternalServerError {
				lg.Error("Request failed", fields...)
				return
			}
			lg.Debug("Request", fields...)
		})
	}
}
