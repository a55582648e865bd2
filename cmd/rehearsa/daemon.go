package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/rehearsa/internal/daemon"
	"github.com/vitaliisemenov/rehearsa/internal/metrics"
)

func newDaemonCommand(a **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the long-lived watcher that dispatches scheduled and file-triggered rehearsals",
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := (*a).newExecutor()
			if err != nil {
				return fmt.Errorf("connect to container runtime: %w", err)
			}

			cfg := (*a).cfg
			d := &daemon.Daemon{
				Registry:          daemon.NewRegistry(cfg.Daemon.WatchFile),
				SchedulerState:    daemon.NewSchedulerState(cfg.Daemon.SchedulerStateFile),
				Runner:            exec,
				MaxConcurrent:     daemon.ResolveMaxConcurrent(cfg.Daemon.MaxConcurrent),
				Logger:            (*a).logger,
				Dispatcher:        (*a).dispatcher,
				Metrics:           (*a).metrics,
				HeartbeatInterval: cfg.Daemon.HeartbeatInterval,
				TickInterval:      cfg.Daemon.TickInterval,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle(cfg.Metrics.Path, metrics.Handler())
				srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						(*a).logger.Error("daemon: metrics server stopped", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			go func() {
				if err := d.WatchFiles(ctx); err != nil && ctx.Err() == nil {
					(*a).logger.Error("daemon: file watcher stopped", "error", err)
				}
			}()

			ticker := time.NewTicker(cfg.Daemon.TickInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					d.Wait()
					return nil
				case now := <-ticker.C:
					if err := d.Tick(ctx, now); err != nil {
						(*a).logger.Error("daemon: tick failed", "error", err)
					}
				}
			}
		},
	}

	return cmd
}
