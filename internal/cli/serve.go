package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/eshaffer321/reconcile/internal/api"
)

// jobCleanupInterval is how often finished async passes are pruned
const jobCleanupInterval = 10 * time.Minute

// RunServe runs the API server until ctx is cancelled, then shuts it down.
func RunServe(ctx context.Context, app *App, args []string, _, stderr io.Writer) error {
	flags, err := ParseServeFlags(args, app.Config.API.Port, stderr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Port = flags.Port
	if len(app.Config.API.AllowedOrigins) > 0 {
		apiCfg.AllowedOrigins = app.Config.API.AllowedOrigins
	}

	server := api.NewServer(apiCfg, app.Service, app.Logger.With("system", "api"))

	app.Service.StartBackgroundCleanup(jobCleanupInterval)
	defer app.Service.StopBackgroundCleanup()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.Logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("server shutdown error", slog.Any("error", err))
		return err
	}

	if err := <-errCh; err != nil {
		return err
	}
	app.Logger.Info("server stopped")
	return nil
}
