package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abdulachik/threadbot/internal/workflow"
)

var (
	sendFlags  threadFlags
	sendDryRun bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Publish a thread now",
	Long: `Publish a thread right away: the first chunk as a post and every other
chunk as a reply to the one before it.

Examples:
  threadbot send -c "first" -c "second"
  threadbot send --file thread.txt --image cover.png
  threadbot send --file essay.txt --split --dry-run`,
	RunE: runSend,
}

func init() {
	sendFlags.register(sendCmd)
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "Show what would be posted without posting")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chunks, err := sendFlags.readChunks(cmd.InOrStdin())
	if err != nil {
		return err
	}
	image, err := sendFlags.readImage()
	if err != nil {
		return err
	}

	if sendDryRun {
		printThread(cmd.OutOrStdout(), chunks, image)
		return nil
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	creds, err := resolveCredentials(ctx, a, sendFlags.credsID)
	if err != nil {
		return err
	}

	result, err := a.Workflow.Send(ctx, workflow.SendRequest{
		Credentials: creds,
		Chunks:      chunks,
		Image:       image,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Posted %d posts, root post %s\n", len(result.PostIDs), result.RootID)
	if result.MediaSkipped {
		fmt.Fprintln(os.Stderr, "warning: the image could not be attached")
	}
	return nil
}
