package bootstrap

import (
	"context"
	"strings"
	"time"

	"booking_server/adapter/in/http"
	"booking_server/adapter/out/realtime"
	"booking_server/config"
	"booking_server/infra/middleware"
	"booking_server/pkg/logger"
	"booking_server/pkg/metrics"
	"booking_server/pkg/ratelimit"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const (
	operatorRateLimit = 120 // requests per minute per business
	pushRateLimit     = 30  // notifications per minute per channel
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		Prefork:               false,

		ReadBufferSize:  8192,
		WriteBufferSize: 8192,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 1 * 1024 * 1024,

		ServerHeader:       "",
		DisableDefaultDate: true,

		// SSE streams stay open; only bound the request read.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 2 * time.Minute,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	latency := metrics.NewRegistry(1000)
	app.Use(middleware.RequestLogger(latency))
	app.Use(middleware.MaxBodySize(256 * 1024))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			// compression buffers the event stream
			return strings.HasSuffix(c.Path(), "/events")
		},
	}))

	// CORS - AllowCredentials requires explicit origins
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,Retry-After",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health check (no auth required)
	checks := map[string]http.HealthChecker{"postgres": deps.DB}
	if deps.Redis != nil {
		redisClient := deps.Redis
		checks["redis"] = http.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	} else {
		checks["redis"] = nil
	}
	http.NewHealthHandler(checks).WithMetrics(latency, deps.SQLDB.DB).Register(app)

	if cfg.IsDevelopment() {
		RegisterDevRoutes(app, cfg)
	}

	// Provider webhooks (no auth required - authenticated by channel token)
	webhookHandler := http.NewWebhookHandler(
		deps.IntegrationService,
		cfg.WebhookTokenKey,
		ratelimit.NewDebouncer(deps.Redis, cfg.WebhookDedupTTL),
		ratelimit.NewSlidingWindowLimiter(deps.Redis, pushRateLimit, time.Minute),
	)
	webhookHandler.Register(app)

	// Operator API
	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))
	api.Use(middleware.RateLimit(ratelimit.NewSlidingWindowLimiter(deps.Redis, operatorRateLimit, time.Minute), operatorRateLimit))

	http.NewIntegrationHandler(deps.IntegrationService).Register(api)
	http.NewSSEHandler(deps.RealtimeAdapter, logger.Component("sse_handler")).Register(api)

	// Events published by workers (or other API instances) reach this instance's SSE clients.
	relayCtx, stopRelay := context.WithCancel(context.Background())
	if deps.Redis != nil {
		relay := realtime.NewRelay(deps.Redis, deps.RealtimeAdapter, logger.Component("api"))
		go func() {
			if err := relay.Run(relayCtx); err != nil && err != context.Canceled {
				logger.WithError(err).Error("event relay stopped")
			}
		}()
	}

	logger.Info("API server initialized successfully")

	return app, func() {
		stopRelay()
		cleanup()
	}, nil
}
