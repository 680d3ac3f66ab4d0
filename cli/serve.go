package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/gymdesk/api"
	"github.com/warp/gymdesk/telemetry"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("seed", "", "load a demo scenario before serving")
	cmd.Flags().Duration("sweep-interval", time.Hour, "how often to log expiring plans (0 disables)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, a.cfg.Telemetry.OTLPEndpoint, version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			a.log.Warn("trace flush failed", "error", err)
		}
	}()

	if scenario, _ := cmd.Flags().GetString("seed"); scenario != "" {
		if err := a.handler.Seed(ctx, scenario); err != nil {
			return fmt.Errorf("seed %s: %w", scenario, err)
		}
	}

	addr := a.cfg.Server.Addr
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		addr = v
	}

	if a.cfg.Admin.KeyHash == "" {
		a.log.Warn("admin key not configured; removals and corrections are disabled")
	}
	router := api.NewRouter(a.handler, api.Options{
		AllowedOrigins:    a.cfg.Server.AllowedOrigins,
		MaxBodyBytes:      a.cfg.Server.MaxBodyBytes,
		RequestsPerSecond: a.cfg.Server.RateLimit.RequestsPerSecond,
		Burst:             a.cfg.Server.RateLimit.Burst,
		AdminKeyHash:      a.cfg.Admin.KeyHash,
		Logger:            a.log,
	})

	if interval, _ := cmd.Flags().GetDuration("sweep-interval"); interval > 0 {
		sched := api.NewExpirationScheduler(a.handler.Members, a.log)
		sched.CheckInterval = interval
		sched.Start(ctx)
		defer sched.Stop()
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("gymdesk starting", "version", version, "addr", addr,
			"driver", a.cfg.Storage.Driver, "time_zone", a.clock.Location().String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}
