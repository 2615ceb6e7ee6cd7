package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var pollOnce bool

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Publish due threads",
	Long: `Run the poller without the web server. With --once a single poll cycle
runs and the command exits; otherwise it polls on POLL_SCHEDULE until
interrupted.`,
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "Run a single poll cycle and exit")
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if pollOnce {
		result := a.Poller.Tick(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "due: %d, published: %d, failed: %d\n", result.Due, result.Published, result.Failed)
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d due jobs failed", result.Failed, result.Due)
		}
		return nil
	}

	if err := a.Poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("poller error: %w", err)
	}
	slog.Info("poller stopped")
	return nil
}
