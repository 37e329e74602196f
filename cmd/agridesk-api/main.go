package main

import (
	"context"
	"os"
	"time"

	"github.com/agridesk/agridesk/pkg/cmd"
	"github.com/agridesk/agridesk/pkg/idempotency"
	"github.com/agridesk/agridesk/pkg/identity"
	"github.com/agridesk/agridesk/pkg/log"
	"github.com/agridesk/agridesk/pkg/otelhelper"
	"github.com/agridesk/agridesk/pkg/reminders"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "agridesk-api",
		Usage:                 "Provision tenants and run their onboarding workflows",
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
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the idempotency replay store (in-memory when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "identity-service-url",
				Usage:   "Base URL of the identity service",
				Sources: cli.EnvVars("IDENTITY_SERVICE_URL"),
			},
			&cli.StringFlag{
				Name:    "identity-service-api-key",
				Usage:   "API key for the identity service",
				Sources: cli.EnvVars("IDENTITY_SERVICE_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "reminder-schedule",
				Usage:   "Cron schedule for onboarding reminder scans",
				Value:   reminders.DefaultSchedule,
				Sources: cli.EnvVars("REMINDER_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "reminder-stale-after",
				Usage:   "How long a workflow may sit open before reminders fire",
				Value:   reminders.DefaultStaleAfter,
				Sources: cli.EnvVars("REMINDER_STALE_AFTER"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Agridesk API")

			var tracer trace.Tracer

			if command.Bool("tracing") {
				var err error

				tracer, err = otelhelper.NewTracer(ctx, "agridesk-api")
				if err != nil {
					logger.WarnContext(ctx, "Tracing disabled, exporter setup failed", "error", err)
				}
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			idempotencyStore, err := newIdempotencyStore(command.String("redis-url"))
			if err != nil {
				return err
			}

			provisioner := identity.NewLazyProvisioner(
				command.String("identity-service-url"),
				command.String("identity-service-api-key"),
				logger,
			)

			scanner := reminders.NewScanner(
				persistence,
				eventBus,
				logger,
				command.String("reminder-schedule"),
				command.Duration("reminder-stale-after"),
			)

			err = scanner.Start(ctx)
			if err != nil {
				return err
			}
			defer scanner.Stop()

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				provisioner,
				idempotencyStore,
				tracer,
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func newIdempotencyStore(redisURL string) (idempotency.Store, error) {
	if redisURL == "" {
		return idempotency.NewMemoryStore(24 * time.Hour), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return idempotency.NewRedisStore(redis.NewClient(opts), 24*time.Hour), nil
}
