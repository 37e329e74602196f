// Package main provides the Agridesk provisioning and onboarding API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/agridesk/agridesk/pkg/eventbus"
	"github.com/agridesk/agridesk/pkg/idempotency"
	"github.com/agridesk/agridesk/pkg/identity"
	"github.com/agridesk/agridesk/pkg/onboarding"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/agridesk/agridesk/pkg/provision"
	"github.com/agridesk/agridesk/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger           *slog.Logger
	persistence      persistence.Persistence
	eventBus         eventbus.EventBus
	identity         identity.Provisioner
	idempotencyStore idempotency.Store
	tracer           trace.Tracer
	validate         *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	identityProvisioner identity.Provisioner,
	idempotencyStore idempotency.Store,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:           logger,
		persistence:      persistence,
		eventBus:         eventBus,
		identity:         identityProvisioner,
		idempotencyStore: idempotencyStore,
		tracer:           tracer,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	provisionService := provision.NewService(a.persistence, a.identity, a.eventBus, a.tracer, a.logger)
	onboardingService := onboarding.NewService(a.persistence, a.eventBus, a.tracer, a.logger)

	handlers := web.NewAPIHandlers(
		provisionService,
		onboardingService,
		a.idempotencyStore,
		a.persistence,
		a.validate,
		a.logger,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Agridesk API")
	})

	t := app.Group("/tenants")
	t.Post("/provision", handlers.ProvisionTenant)
	t.Get("/:id", handlers.GetTenant)
	t.Get("/:id/onboarding", handlers.GetTenantOnboarding)

	o := app.Group("/onboarding")
	o.Post("/start", handlers.StartOnboarding)
	o.Get("/workflows/:id", handlers.GetOnboardingWorkflow)
	o.Post("/workflows/:id/complete", handlers.CompleteOnboarding)
	o.Patch("/steps/:id", handlers.UpdateStep)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
