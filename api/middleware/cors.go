package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{
	"http://localhost:5173", // vite dev server
	"http://127.0.0.1:5173",
}

// CORS returns middleware that applies the console's allowed origin policy.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	if len(allowed) == 0 {
		allowed = defaultCORSOrigins
	}

	return cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", ProfileHeader, "Idempotency-Key", "X-Requested-With"},
		ExposedHeaders:   []string{ProfileHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
