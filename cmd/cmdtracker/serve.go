package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	tracker "github.com/jdziat/durable-cmd-tracker"
	"github.com/jdziat/durable-cmd-tracker/pkg/notify"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Start the job master, the scheduler and the HTTP API",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	opts := []tracker.Option{a.statsOption()}
	if cfg.JobMaster.Retention > 0 {
		opts = append(opts, tracker.WithHistoryRetention(cfg.JobMaster.Retention))
	}

	t, err := a.open(ctx, opts...)
	if err != nil {
		return err
	}
	defer t.Close()

	for _, sc := range cfg.Schedules {
		sched, c, err := sc.Parse()
		if err != nil {
			return err
		}
		if err := t.Schedule(sc.Name, sched, c); err != nil {
			return err
		}
	}

	if cfg.Notify.Enabled {
		ncfg := notify.DefaultConfig()
		ncfg.URL = cfg.Notify.URL
		if cfg.Notify.Exchange != "" {
			ncfg.Exchange = cfg.Notify.Exchange
		}
		if cfg.Notify.RoutingKey != "" {
			ncfg.RoutingKey = cfg.Notify.RoutingKey
		}
		n, err := notify.Dial(ncfg, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect notifier: %w", err)
		}
		defer n.Close()
		t.Notify(n)
	}

	if err := t.Start(ctx); err != nil {
		return err
	}
	defer t.Wait()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      t.Handler(ctx),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	pterm.Info.Printfln("Listening on %s (database %s, %d schedules)", cfg.Server.Addr, cfg.Database.DSN, len(cfg.Schedules))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	pterm.Info.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
