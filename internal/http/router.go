package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taplist/internal/http/handlers"
)

// Routes groups the handler set.
type Routes struct {
	Stations *handlers.StationsHandler
	Waitlist *handlers.WaitlistHandler
	Sessions *handlers.SessionsHandler
	Users    *handlers.UsersHandler
	Watch    *handlers.WatchHandler
	Metrics  http.Handler
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.Health)
	if routes.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", routes.Metrics)
	}

	r.Route("/stations", func(r chi.Router) {
		r.Post("/", routes.Stations.Create)
		r.Get("/", routes.Stations.List)
		r.Route("/{stationID}", func(r chi.Router) {
			r.Get("/", routes.Stations.Get)
			r.Patch("/", routes.Stations.Update)
			r.Delete("/", routes.Stations.Delete)
			r.Post("/waitlist/join", routes.Waitlist.Join)
			r.Post("/waitlist/leave", routes.Waitlist.Leave)
			r.Get("/waitlist/position", routes.Waitlist.Position)
			r.Post("/session/start", routes.Sessions.Start)
			r.Post("/session/end", routes.Sessions.End)
			r.Get("/watch", routes.Watch.Watch)
		})
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/", routes.Users.Get)
		r.Put("/token", routes.Users.UpdateToken)
		r.Get("/waitlists", routes.Users.Waitlists)
	})

	return r
}
