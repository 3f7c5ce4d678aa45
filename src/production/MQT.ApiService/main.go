package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	container "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Container"
)

// importCreatedBy is recorded on schedule entries loaded from a file
const importCreatedBy = "cli-import"

// CLI is the pinmask command line
type CLI struct {
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve           ServeCmd           `cmd:"" default:"1" help:"Run the HTTP API and the minute scheduler"`
	Migrate         MigrateCmd         `cmd:"" help:"Create tables or indexes and seed roles, then exit"`
	ImportSchedules ImportSchedulesCmd `cmd:"" name:"import-schedules" help:"Load schedule entries from a YAML file"`
}

// ServeCmd runs the API until SIGINT or SIGTERM
type ServeCmd struct {
	NoScheduler bool `help:"Do not start the scheduler, overriding SCHEDULER_ENABLED"`
}

func (cmd *ServeCmd) Run(ctr *container.ApiContainer) error {
	logger := ctr.GetLogger()
	config := ctr.GetConfig()
	logger.Info("Starting API Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := initialize(ctx, ctr); err != nil {
		return err
	}

	router, err := newRouter(ctr)
	if err != nil {
		return err
	}

	if config.Scheduler.Enabled && !cmd.NoScheduler {
		sched, err := ctr.GetScheduler()
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		sched.Start(ctx)
	} else {
		logger.Warn("Scheduler disabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         ":" + config.Server.Port,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting on port " + config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("API service running... press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}
	return nil
}

// MigrateCmd prepares the store without serving
type MigrateCmd struct{}

func (cmd *MigrateCmd) Run(ctr *container.ApiContainer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return initialize(ctx, ctr)
}

// ImportSchedulesCmd validates a whole file before storing any entry
type ImportSchedulesCmd struct {
	File string `arg:"" type:"existingfile" help:"YAML file with a top-level schedules list"`
}

func (cmd *ImportSchedulesCmd) Run(ctr *container.ApiContainer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ctr.InitializeDatabase(ctx); err != nil {
		return err
	}

	f, err := os.Open(cmd.File)
	if err != nil {
		return err
	}
	defer f.Close()

	schedules, err := ctr.GetScheduleService()
	if err != nil {
		return err
	}
	entries, err := schedules.Import(ctx, f, importCreatedBy)
	if err != nil {
		return fmt.Errorf("import %s: %w", cmd.File, err)
	}

	ctr.GetLogger().Logger.Info().Int("count", len(entries)).Str("file", cmd.File).Msg("Schedules imported")
	return nil
}

// initialize migrates the store and seeds the roles and first admin
func initialize(ctx context.Context, ctr *container.ApiContainer) error {
	if err := ctr.InitializeDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	roleInitializer, err := ctr.GetRoleInitializer()
	if err != nil {
		return err
	}
	if err := roleInitializer.InitializeRoles(ctx); err != nil {
		return fmt.Errorf("failed to initialize roles: %w", err)
	}
	if err := roleInitializer.InitializeAdminUser(ctx); err != nil {
		return fmt.Errorf("failed to initialize admin user: %w", err)
	}
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("pinmask"),
		kong.Description("Device pin-mask API and scheduler"),
		kong.Vars{"version": "1.0.0"},
	)

	// Initialize dependency injection container
	ctr, err := container.NewApiContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize container: %v\n", err)
		os.Exit(1)
	}

	err = kctx.Run(ctr)
	if shutdownErr := ctr.Shutdown(context.Background()); shutdownErr != nil {
		ctr.GetLogger().ErrorWithError(shutdownErr, "Shutdown failed")
	}
	if err != nil {
		ctr.GetLogger().FatalWithError(err, "Command failed")
	}
}
