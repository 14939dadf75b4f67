package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbs "github.com/Builder-Lawyers/hub-provisioner/internal/infra/db"
	"github.com/Builder-Lawyers/hub-provisioner/internal/presentation/rest"
	"github.com/Builder-Lawyers/hub-provisioner/internal/presentation/scheduler"
	"github.com/Builder-Lawyers/hub-provisioner/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spf13/cobra"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the outbox poller",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply the schema before serving")
}

func serve(ctx context.Context) error {
	c, err := initContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if migrateOnStart {
		if err = dbs.Migrate(ctx, c.pool); err != nil {
			return fmt.Errorf("migrate, %w", err)
		}
	}

	c.certs.Preflight(ctx, env.GetEnv("FRONT_DOOR_CERT_ARN", ""))

	app := fiber.New(fiber.Config{
		IdleTimeout: 5 * time.Second,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ORIGINS", "http://localhost:3000"),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	rest.RegisterHandlers(app, rest.NewServer(c.handlers), c.registry, []byte(env.GetEnv("ADMIN_JWT_SECRET", "")))

	// runs are not tied to the signal; Stop lets claimed events finish
	pollerCtx, cancelPoller := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelPoller()
	outboxPoller := scheduler.NewOutboxPoller(c.processors, c.uowFactory, scheduler.NewOutboxConfig())
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		outboxPoller.Start(pollerCtx)
	}()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(env.GetEnv("HTTP_ADDR", ":8080"))
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
	case err = <-listenErr:
		slog.Error("http server stopped", "err", err)
	}

	slog.Info("Gracefully shutting down...")
	if shutdownErr := app.ShutdownWithTimeout(10 * time.Second); shutdownErr != nil {
		slog.Warn("http shutdown", "err", shutdownErr)
	}

	outboxPoller.Stop()
	grace := env.GetEnvDuration("SHUTDOWN_GRACE", 5*time.Minute)
	select {
	case <-pollerDone:
	case <-time.After(grace):
		slog.Warn("runs still in flight after grace period, cancelling", "grace", grace)
		cancelPoller()
		<-pollerDone
	}

	slog.Info("Shutdown complete")
	return err
}
