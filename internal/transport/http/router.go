package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cwrk-planet/meet-relay/pkg/httputil"
)

type RouterOptions struct {
	AllowedOrigins []string
}

func NewRouter(h *Handler, ws http.HandlerFunc, opts RouterOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)
	r.Use(middlewareChi.Recoverer)

	// WS endpoint; origin is checked by the upgrader
	r.Get("/ws", ws)

	r.Group(func(pr chi.Router) {
		pr.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", httputil.HeaderRequestID},
			ExposedHeaders: []string{httputil.HeaderRequestID},
			MaxAge:         300,
		}))
		pr.Use(middlewareChi.Timeout(15 * time.Second))

		pr.Get("/healthz", h.Health)
		pr.Get("/stats", h.Stats)
		pr.Get("/ice-servers", h.ICEServers)
		pr.Get("/meetings", h.ListMeetings)
	})

	return r
}
