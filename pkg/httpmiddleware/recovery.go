package httpmiddleware

import (
	"errors"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery turns handler panics into a JSON 500. The error body is only
// written when the handler has not started the response yet.
// http.ErrAbortHandler is re-raised so net/http aborts the connection.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				zctx.From(r.Context()).Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.Bool("response_started", sw.status != 0),
					zap.Stack("stack"),
				)
				if sw.status != 0 {
					return
				}
				w.Header().Set("Connection", "close")
				WriteError(w, http.StatusInternalServerError, "internal error")
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
