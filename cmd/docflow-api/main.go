package main

import (
	"context"
	"os"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/docflow/docflow/pkg/cmd"
	"github.com/docflow/docflow/pkg/condition"
	"github.com/docflow/docflow/pkg/engine"
	"github.com/docflow/docflow/pkg/log"
	"github.com/docflow/docflow/pkg/notifier"
	"github.com/docflow/docflow/pkg/otelhelper"
	"github.com/docflow/docflow/pkg/permission"
	"github.com/docflow/docflow/pkg/registry"
)

const defaultPort = 9090

func main() {
	command := &cli.Command{
		Name:                  "docflow-api",
		Usage:                 "Serve the document workflow API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Record store URL (file path, redis:// or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "definitions-path",
				Usage:    "Directory containing workflow definition JSON files",
				Required: true,
				Sources:  cli.EnvVars("DEFINITIONS_PATH"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "refresh-schedule",
				Usage:   "Cron schedule for reloading definitions from disk",
				Value:   "@every 1m",
				Sources: cli.EnvVars("REFRESH_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Docflow API")

	reg := registry.NewRegistry(logger)
	if err := reg.LoadDir(command.String("definitions-path")); err != nil {
		return err
	}

	store, err := cmd.NewRecordStore(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close record store", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "docflow-api", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	var tracer trace.Tracer

	if command.Bool("tracing") {
		tracer, err = otelhelper.NewTracer(ctx, "docflow-api")
		if err != nil {
			return err
		}
	}

	eng := engine.NewEngine(reg,
		store,
		condition.NewEvaluator(condition.DefaultTimeout),
		permission.NewResolver(),
		notifier.NewEventBusNotifier(eventBus, logger),
		logger,
		tracer)

	scheduler := cron.New()

	_, err = scheduler.AddFunc(command.String("refresh-schedule"), func() {
		if err := reg.Refresh(); err != nil {
			logger.Error("Scheduled definition refresh failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	scheduler.Start()
	defer scheduler.Stop()

	api := NewAPI(logger, eng, reg, store)

	return api.Start(command.Int("port"))
}
