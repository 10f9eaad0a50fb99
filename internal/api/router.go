package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/faceid/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/faceid/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/faceid/internal/api/middleware"
)

type Dependencies struct {
	Identities handler.IdentityService
	Store      handler.Pinger
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer     prometheus.Gatherer
	RateLimit    middleware.RateLimiterConfig
	MaxImageSize int64
	SwaggerHost  string
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	maxImageSize := int64(handler.DefaultMaxImageSize)
	if deps != nil && deps.MaxImageSize > 0 {
		maxImageSize = deps.MaxImageSize
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "FaceID Registry",
		// base64 inflates a photo by a third, plus room for the form fields
		BodyLimit: int(maxImageSize*4/3) + 64*1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	host := ""
	if r.deps != nil {
		host = r.deps.SwaggerHost
	}
	sw := docs.NewSwagger(host)
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var store handler.Pinger
	if r.deps != nil {
		store = r.deps.Store
	}
	healthHandler := handler.NewHealthHandler(store)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	gatherer := prometheus.DefaultGatherer
	if r.deps != nil && r.deps.Gatherer != nil {
		gatherer = r.deps.Gatherer
	}
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if r.deps == nil || r.deps.Identities == nil {
		return
	}

	v1 := r.app.Group("/v1")

	identityHandler := handler.NewIdentityHandler(r.deps.Identities, r.deps.MaxImageSize, r.logger)

	// only authentication is limited; it is the brute-forceable endpoint
	r.rateLimiter = middleware.NewRateLimiter(r.deps.RateLimit)

	v1.Post("/identities", identityHandler.Enroll)
	v1.Post("/identities/authenticate", r.rateLimiter.Handler(), identityHandler.Authenticate)
	v1.Get("/identities/:unique_id", identityHandler.Get)
	v1.Patch("/identities/:unique_id", identityHandler.Rename)
	v1.Delete("/identities/:unique_id", identityHandler.Delete)
	v1.Get("/stats", identityHandler.Stats)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
