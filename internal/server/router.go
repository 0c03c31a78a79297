package server

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"tableside/internal/auth"
	"tableside/internal/catalog"
	"tableside/internal/domain"
	"tableside/internal/httpjson"
	ordercontroller "tableside/internal/order/controller"
	"tableside/internal/ratelimit"
	sessioncontroller "tableside/internal/session/controller"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers is everything the router mounts.
type Handlers struct {
	DB         Pinger
	Auth       *auth.Controller
	Middleware *auth.Middleware
	Catalog    *catalog.Controller
	Sessions   *sessioncontroller.SessionController
	Orders     *ordercontroller.OrderController
	WebSocket  http.Handler
}

type RouterOptions struct {
	AllowedOrigins []string
	// RequestRate caps session requests per client address per minute.
	RequestRate int
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []netip.Prefix
}

func NewRouter(h Handlers, opts RouterOptions, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(ratelimit.TrustedRealIP(opts.TrustedProxies))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler(h.DB, logger))
	r.Handle("/ws", h.WebSocket)

	mw := h.Middleware
	staff := mw.RequireRole(domain.RoleStaff, domain.RoleAdmin)
	kitchen := mw.RequireRole(domain.RoleStaff, domain.RoleKitchen, domain.RoleAdmin)
	customer := mw.RequireRole(domain.RoleCustomer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Auth.Login)
		r.With(mw.Authenticate).Get("/auth/verify", h.Auth.Verify)

		r.Get("/menu", h.Catalog.GetMenu)

		r.Route("/sessions", func(r chi.Router) {
			requestHandler := http.Handler(http.HandlerFunc(h.Sessions.RequestSession))
			if opts.RequestRate > 0 {
				requestHandler = ratelimit.PerMinute(opts.RequestRate).Middleware(requestHandler)
			}
			r.Method(http.MethodPost, "/request", requestHandler)
			r.Get("/table/{tableId}", h.Sessions.GetSessionByTable)

			r.Group(func(r chi.Router) {
				r.Use(mw.Authenticate, staff)
				r.Get("/", h.Sessions.ListSessions)
				r.Post("/{sessionId}/approve", h.Sessions.ApproveSession)
				r.Post("/{sessionId}/close", h.Sessions.CloseSession)
			})
		})

		r.Route("/tables", func(r chi.Router) {
			r.Use(mw.Authenticate, staff)
			r.Get("/", h.Sessions.ListTables)
			r.Get("/{tableId}/qr", h.Sessions.TableQRCode)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(mw.Authenticate, customer).Post("/", h.Orders.PlaceOrder)
			r.With(mw.Authenticate, kitchen).Get("/", h.Orders.ListOrders)
			r.With(mw.Authenticate, kitchen).Patch("/{orderId}/status", h.Orders.UpdateStatus)
			r.With(mw.Optional).Get("/session/{sessionId}", h.Orders.GetSessionOrders)
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)
}

func healthHandler(db Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logger.Error("health check failed", zap.Error(err))
			httpjson.WriteJSON(w, logger, http.StatusInternalServerError, map[string]string{"status": "ERROR"})
			return
		}
		httpjson.WriteJSON(w, logger, http.StatusOK, map[string]any{
			"status": "OK",
			"time":   time.Now().UTC(),
		})
	}
}
