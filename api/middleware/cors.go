package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

var devCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// CORS allows the web app origin. Dev environments also accept local dev servers.
// The extension API authenticates with bearer tokens and never relies on cookies.
func CORS(publicURL string, dev bool) func(http.Handler) http.Handler {
	origins := []string{}
	if origin := strings.TrimRight(strings.TrimSpace(publicURL), "/"); origin != "" {
		origins = append(origins, origin)
	}
	if dev {
		origins = append(origins, devCORSOrigins...)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Requested-With", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
