package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"laundry-dispatch/internal/http/handlers"
	mw "laundry-dispatch/internal/http/middleware"
	"laundry-dispatch/internal/http/middleware/ratelimit"
	"laundry-dispatch/internal/logx"
)

const requestTimeout = 5 * time.Second

// Deps are the handlers and middlewares mounted by New.
type Deps struct {
	Base          *handlers.Handlers
	Orders        *handlers.OrderHandler
	Tracking      *handlers.TrackingHandler
	Notifications *handlers.NotificationHandler

	Logger  logx.Logger
	Metrics *mw.HTTPMetrics
	// RateLimit guards the whole API, LocationLimit only the courier location pushes.
	RateLimit     *ratelimit.Middleware
	LocationLimit *ratelimit.Middleware
}

// New constructs a chi-based http.Handler with base middleware and routes.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Observability(d.Logger, d.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/ping", d.Base.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(d.Base.HealthcheckHead))
	r.NotFound(http.HandlerFunc(d.Base.NotFound))

	// стрим живёт дольше любого таймаута запроса
	r.Get("/v1/stream", d.Tracking.Stream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		if d.RateLimit != nil {
			r.Use(d.RateLimit.Handler())
		}

		r.Route("/v1/orders", func(r chi.Router) {
			r.Post("/", d.Orders.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", d.Orders.Get)
				r.Post("/accept", d.Orders.Accept)
				r.Post("/reject", d.Orders.Reject)
				r.Post("/start", d.Orders.Start)
				r.Post("/ready", d.Orders.Ready)
				r.Post("/pickup", d.Orders.Pickup)
				r.Post("/deliver", d.Orders.Deliver)
				r.Post("/cash", d.Orders.Cash)
				r.Post("/payment", d.Orders.Payment)
				r.Post("/cancel", d.Orders.Cancel)
			})
		})

		location := r.With()
		if d.LocationLimit != nil {
			location = r.With(d.LocationLimit.Handler())
		}
		location.Post("/v1/couriers/{id}/location", d.Tracking.PushLocation)

		r.Get("/v1/tracking/couriers", d.Tracking.Couriers)
		r.Get("/v1/tracking/couriers/{id}", d.Tracking.Courier)
		r.Get("/v1/tracking/orders/{id}", d.Tracking.Order)

		r.Get("/v1/users/{id}/notifications", d.Notifications.List)
	})

	return r
}
