package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// WriteError writes the JSON error body {"code": code, "message": message}.
func WriteError(w http.ResponseWriter, code int, message string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
