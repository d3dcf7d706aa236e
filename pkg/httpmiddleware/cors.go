package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSConfig configures cross-origin requests.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. Empty or "*" allows all.
	AllowOrigins     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	// MaxAge is the preflight cache duration in seconds.
	MaxAge int
}

// CORS handles preflight and cross-origin requests with go-chi/cors.
func CORS(cfg CORSConfig) Middleware {
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodOptions,
		},
		AllowedHeaders:   cfg.AllowHeaders,
		ExposedHeaders:   cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
