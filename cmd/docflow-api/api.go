// Package main provides the Docflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/docflow/docflow/pkg/engine"
	"github.com/docflow/docflow/pkg/recordstore"
	"github.com/docflow/docflow/pkg/registry"
	"github.com/docflow/docflow/pkg/web"
)

type API struct {
	logger   *slog.Logger
	engine   *engine.Engine
	registry *registry.Registry
	store    recordstore.Store
	validate *validator.Validate
}

func NewAPI(
	log *slog.Logger,
	eng *engine.Engine,
	reg *registry.Registry,
	store recordstore.Store,
) *API {
	return &API{
		logger:   log,
		engine:   eng,
		registry: reg,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.registry, a.store, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Docflow API")
	})

	d := app.Group("/definitions")
	d.Get("/", handlers.GetDefinitions)
	d.Get("/:recordType", handlers.GetDefinition)

	r := app.Group("/records/:recordType")
	r.Get("/", handlers.ListRecords)
	r.Post("/", handlers.CreateRecord)
	r.Get("/:id", handlers.GetRecord)
	r.Get("/:id/actions", handlers.GetAvailableActions)
	r.Post("/:id/actions/:action", handlers.ApplyAction)
	r.Post("/:id/amend", handlers.AmendRecord)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
