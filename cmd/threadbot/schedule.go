package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdulachik/threadbot/internal/workflow"
)

var (
	scheduleFlags threadFlags
	scheduleAt    string
	scheduleIn    time.Duration
	scheduleTZ    string
	scheduleOwner string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a thread for later",
	Long: `Store a thread to be published by the poller once its time has come.

Examples:
  threadbot schedule --at "2026-07-01 09:30" --tz Europe/Berlin -c "first" -c "second"
  threadbot schedule --at 2026-07-01T07:30:00Z --file thread.txt --owner alice
  threadbot schedule --in 2h --file thread.txt --creds 6f1c...`,
	RunE: runSchedule,
}

func init() {
	scheduleFlags.register(scheduleCmd)
	scheduleCmd.Flags().StringVar(&scheduleAt, "at", "", `Publish time, RFC 3339 or "2006-01-02 15:04" in --tz`)
	scheduleCmd.Flags().DurationVar(&scheduleIn, "in", 0, "Publish after this delay instead of --at")
	scheduleCmd.Flags().StringVar(&scheduleTZ, "tz", "UTC", "Time zone for --at values without an offset")
	scheduleCmd.Flags().StringVar(&scheduleOwner, "owner", "", "Owner id used to list and delete the job later")
	scheduleCmd.MarkFlagsMutuallyExclusive("at", "in")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	at, err := scheduleTime(scheduleAt, scheduleIn, scheduleTZ, time.Now())
	if err != nil {
		return err
	}

	chunks, err := scheduleFlags.readChunks(cmd.InOrStdin())
	if err != nil {
		return err
	}
	image, err := scheduleFlags.readImage()
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	creds, err := resolveCredentials(ctx, a, scheduleFlags.credsID)
	if err != nil {
		return err
	}

	id, err := a.Workflow.Schedule(ctx, workflow.ScheduleRequest{
		OwnerID:     scheduleOwner,
		Credentials: creds,
		Chunks:      chunks,
		Image:       image,
		ScheduledAt: at,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scheduled job %d for %s\n", id, at.UTC().Format(time.RFC3339))
	return nil
}

func scheduleTime(at string, in time.Duration, tz string, now time.Time) (time.Time, error) {
	if in > 0 {
		return now.Add(in), nil
	}

	at = strings.TrimSpace(at)
	if at == "" {
		return time.Time{}, fmt.Errorf("--at or --in is required")
	}
	if t, err := time.Parse(time.RFC3339, at); err == nil {
		return t, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --tz: %w", err)
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", at, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf(`invalid --at %q (want RFC 3339 or "2006-01-02 15:04")`, at)
	}
	return t, nil
}
