package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	ratelimithandler "crmdash/internal/ratelimit/handler"
	ratelimitmw "crmdash/internal/ratelimit/middleware"
	"crmdash/pkg/platform/middleware/metadata"
	"crmdash/pkg/platform/middleware/request"
)

// Deps are the pieces the router mounts. API is the downstream application
// behind the rate limiter; when nil every API route answers 501.
type Deps struct {
	RateLimit *ratelimitmw.Middleware
	Handler   *ratelimithandler.Handler
	Metrics   http.Handler
	API       http.Handler
}

// NewRouter wires the public surface. Operational endpoints sit outside the
// rate limiter; everything else passes through it.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(chimw.Recoverer)

	r.Get(ratelimithandler.HealthPath, d.Handler.HandleHealth)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	api := d.API
	if api == nil {
		api = http.HandlerFunc(notImplemented)
	}

	r.Group(func(r chi.Router) {
		r.Use(d.RateLimit.Handler)
		d.Handler.Register(r)
		r.Handle("/api/*", api)
	})

	return r
}

func notImplemented(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotImplemented)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message":  "no upstream handler configured",
		"endpoint": r.URL.Path,
	})
}
