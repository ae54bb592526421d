package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/orderflow/api/controllers"
	admincontrollers "github.com/angelmondragon/orderflow/api/controllers/admin"
	ordercontrollers "github.com/angelmondragon/orderflow/api/controllers/orders"
	"github.com/angelmondragon/orderflow/api/middleware"
	"github.com/angelmondragon/orderflow/internal/attachments"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/internal/payments"
	"github.com/angelmondragon/orderflow/internal/revenue"
	"github.com/angelmondragon/orderflow/internal/settlement"
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	pkgredis "github.com/angelmondragon/orderflow/pkg/redis"
)

// RedisStore is the Redis surface the HTTP layer needs for idempotency and
// rate limiting.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Params wires the router. Redis, GCS and Metrics are optional and must be
// left as untyped nil when absent.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       RedisStore
	GCS         controllers.Pinger
	Metrics     http.Handler
	HTTPMetrics *metrics.HTTPMetrics
	Resolver    *attachments.Resolver
	Orders      orders.Service
	Payments    payments.Service
	Settlement  settlement.Service
	Revenue     revenue.Service
}

func NewRouter(p Params) http.Handler {
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	cfg := p.Config

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
	)

	ready := map[string]controllers.Pinger{"database": p.DB}
	if p.Redis != nil {
		ready["redis"] = p.Redis
	}
	if p.GCS != nil {
		ready["gcs"] = p.GCS
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})

	if p.Metrics != nil {
		r.Handle("/metrics", p.Metrics)
	}

	var idempotencyStore pkgredis.IdempotencyStore
	var limiter interface {
		FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	}
	if p.Redis != nil {
		idempotencyStore = p.Redis
		limiter = p.Redis
	}
	policy := middleware.RateLimitPolicy{
		Name:   "api",
		Limit:  int64(cfg.App.RateLimitPerMinute),
		Window: time.Minute,
	}

	idem := middleware.NewIdempotency(idempotencyStore, logg)
	standard := idem.For(middleware.IdempotencyTTLStandard)
	critical := idem.For(middleware.IdempotencyTTLCritical)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.RateLimit(policy, limiter, logg))

		r.Route("/v1/orders", func(r chi.Router) {
			r.With(critical).Post("/", ordercontrollers.Create(p.Orders, p.Resolver, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, p.Resolver, logg))
			r.With(standard).Post("/{orderId}/events", ordercontrollers.FireEvent(p.Orders, p.Payments, p.Resolver, logg))
			r.With(standard).Post("/{orderId}/payment-proof", ordercontrollers.SubmitPaymentProof(p.Payments, p.Resolver, logg))
		})

		r.Route("/admin/v1", func(r chi.Router) {
			// sellers may read their own settlement entry
			r.Get("/orders/{orderId}/settlement", admincontrollers.Settlement(p.Settlement, p.Resolver, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
				r.With(standard).Post("/orders/{orderId}/payment-verification", admincontrollers.VerifyPayment(p.Payments, p.Resolver, logg))
				r.With(critical).Post("/orders/{orderId}/seller-transfers", admincontrollers.RecordSellerTransfers(p.Settlement, p.Resolver, logg))
				r.Get("/settlements/pending", admincontrollers.PendingSettlements(p.Settlement, logg))
				r.Get("/revenue", admincontrollers.Revenue(p.Revenue, logg))
			})
		})
	})

	return r
}
