package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/docflow/internal/config"
	httpadapter "github.com/aretw0/docflow/pkg/adapters/http"
	"github.com/aretw0/docflow/pkg/scheduler"
)

const shutdownTimeout = 5 * time.Second

// Serve listens on cfg.HTTP.Addr and runs the HTTP API until ctx is done.
func Serve(ctx context.Context, rt *Runtime, cfg *config.Config, out io.Writer) error {
	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}
	return ServeListener(ctx, rt, cfg, ln, out)
}

// ServeListener runs the HTTP API on ln. When configured, the scheduler
// fires due requests and the chart watcher drops stale definitions while the
// server runs. The listener is closed on return.
func ServeListener(ctx context.Context, rt *Runtime, cfg *config.Config, ln net.Listener, out io.Writer) error {
	handler := httpadapter.NewHandler(rt.Engine,
		httpadapter.WithLogger(rt.Logger),
		httpadapter.WithMetrics(rt.Registry),
	)
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Scheduler.Enabled {
		sch, err := rt.Engine.Scheduler(scheduler.WithSpec(cfg.Scheduler.Spec))
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if err := sch.Start(ctx); err != nil {
			ln.Close()
			return err
		}
		defer sch.Stop()
	}

	if cfg.Charts.Watch {
		changes, err := rt.Engine.Watch(ctx)
		if err != nil {
			rt.Logger.Warn("chart watching disabled", "err", err)
		} else {
			go func() {
				for name := range changes {
					PrintSystemMessage(out, "Reloaded chart '%s'.", name)
				}
			}()
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		PrintSystemMessage(out, "docflow listening on %s", ln.Addr())
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.Logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
		return srv.Close()
	}
	PrintSystemMessage(out, "docflow stopped")
	return nil
}
