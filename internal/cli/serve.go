package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/attend/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	// Embed any events missing vectors
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if n, err := rt.engine.Reindex(ctx); err != nil {
			logger.Warn("reindex failed", "error", err)
		} else if n > 0 {
			logger.Info("embedded events", "count", n)
		}
	}()

	if secs := rt.cfg.Pool.RefreshSeconds; secs > 0 {
		rt.engine.StartRefresh(time.Duration(secs) * time.Second)
	}

	srv := server.New(rt.engine, VersionString(), logger.WithPrefix("http"))
	addr := rt.cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("attend serving", "addr", addr, "db", rt.cfg.Database.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
