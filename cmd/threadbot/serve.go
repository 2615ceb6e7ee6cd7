package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/abdulachik/threadbot/internal/config"
	"github.com/abdulachik/threadbot/internal/web"
)

var (
	serveAddr     string
	serveNoPoller bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web front-end and the poller",
	Long: `Run the compose form on HTTP_ADDR together with the poller that publishes
scheduled threads once their time has come.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveNoPoller, "no-poller", false, "Serve the front-end only")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}

	if err := cfg.ValidateForServe(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := web.New(web.Config{
		Service: a.Workflow,
		Health:  a.Health,
		Logger:  slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("create web server: %w", err)
	}

	slog.Info("starting threadbot",
		"store", cfg.StoreDriver,
		"addr", cfg.HTTPAddr,
		"poll_schedule", cfg.PollSchedule,
		"poller", !serveNoPoller,
	)

	services := []service{{name: "web server", run: func(ctx context.Context) error {
		return server.ListenAndServe(ctx, cfg.HTTPAddr)
	}}}
	if !serveNoPoller {
		services = append(services, service{name: "poller", run: a.Poller.Run})
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		slog.Warn("failed to notify systemd", "error", err)
	} else if ok {
		slog.Debug("notified systemd of readiness")
	}

	// Wait for shutdown signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runServices(ctx, sigCh, services...)
}

// service is a long-running part of serve that returns once ctx is canceled.
type service struct {
	name string
	run  func(ctx context.Context) error
}

// runServices starts every service and blocks until a stop signal arrives or
// one of them fails. The rest are then canceled, and runServices returns only
// after all of them have returned, so nothing still uses the store when the
// caller closes it.
func runServices(ctx context.Context, stop <-chan os.Signal, services ...service) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(services))
	for _, svc := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s error: %w", svc.name, err)
			}
		}()
	}

	var err error
	select {
	case sig := <-stop:
		slog.Info("received shutdown signal", "signal", sig)
	case err = <-errCh:
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	wg.Wait()

	return err
}
