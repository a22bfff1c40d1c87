// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-hiring-backend/internal/config"
	"github.com/tbourn/go-hiring-backend/internal/gateway"
	"github.com/tbourn/go-hiring-backend/internal/http/handlers"
	"github.com/tbourn/go-hiring-backend/internal/http/middleware"
	"github.com/tbourn/go-hiring-backend/internal/repo"
	"github.com/tbourn/go-hiring-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Response compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Bearer-token auth (resolves userID for handlers and limiter keys)
//  10. Rate limiter (per user/IP, bypass on replay)
//  11. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, gw gateway.PaymentGateway, identity gateway.IdentityService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-User-ID", // caller identity; keep it out of access logs
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, hiringID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, hiringID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Bearer-token identity (before the limiter so buckets key by user)
	r.Use(middleware.BearerAuth(cfg.JWTSecret))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 11) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/gateway
	notifier := gateway.NewLogNotifier(log.Logger)

	hiringSvc := services.NewHiringService(db, identity, gw, notifier)
	hiringSvc.DefaultValidityDays = cfg.DefaultValidityDays
	hiringSvc.DepositPercent = decimal.NewFromFloat(cfg.DepositPercent)
	hiringSvc.NotificationURL = cfg.Gateway.NotificationURL
	hiringSvc.IdempotencyTTL = cfg.IdempotencyTTL
	hiringSvc.CheckoutSuccessURL = cfg.Gateway.SuccessURL
	hiringSvc.CheckoutFailureURL = cfg.Gateway.FailureURL

	deliverySvc := services.NewDeliveryService(db, hiringSvc)

	reconcileSvc := services.NewReconcileService(db, gw, notifier, log.Logger)
	reconcileSvc.FetchRetries = cfg.Reconcile.FetchRetries
	reconcileSvc.BackoffBase = cfg.Reconcile.BackoffBase
	reconcileSvc.RecentPendingLimit = cfg.Reconcile.RecentPendingLimit
	reconcileSvc.AmountEpsilon = decimal.NewFromFloat(cfg.Reconcile.AmountEpsilon)
	reconcileSvc.DepositPercent = decimal.NewFromFloat(cfg.DepositPercent)

	moderationSvc := services.NewModerationService(db, log.Logger)

	h := handlers.New(hiringSvc, deliverySvc, reconcileSvc, moderationSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Hirings
		api.POST("/hirings", h.CreateHiring)
		api.GET("/hirings", h.ListHirings)
		api.GET("/hirings/:id", h.GetHiring)
		api.POST("/hirings/:id/quote", h.Quote)
		api.PUT("/hirings/:id/quote", h.EditQuote)
		api.POST("/hirings/:id/accept", h.Accept)
		api.POST("/hirings/:id/reject", h.Reject)
		api.POST("/hirings/:id/cancel", h.Cancel)
		api.POST("/hirings/:id/negotiate", h.Negotiate)
		api.POST("/hirings/:id/requote", h.Requote)
		api.POST("/hirings/:id/payment/retry", h.RetryPayment)

		// Deliveries
		api.POST("/hirings/:id/deliveries", h.SubmitDelivery)
		api.GET("/hirings/:id/deliveries", h.ListDeliveries)
		api.GET("/hirings/:id/deliverables", h.ListDeliverables)
		api.POST("/hirings/:id/deliveries/:sid/review", h.ReviewDelivery)

		// Webhooks
		api.POST("/webhooks/payments", h.PaymentWebhook)

		// Internal moderation events
		api.POST("/internal/moderation/events", h.ModerationEvent)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
