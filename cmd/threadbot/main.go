package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/abdulachik/threadbot/internal/logging"
)

var logCloser io.Closer

var rootCmd = &cobra.Command{
	Use:   "threadbot",
	Short: "Schedule and publish X/Twitter threads",
	Long: `threadbot publishes multi-part threads on X/Twitter, either right away
or at a scheduled time. The serve command runs the compose form and the
poller that publishes due threads.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	// Load .env file if present
	_ = godotenv.Load()
}

// setupLogging runs before every command so LOG_FILE applies to all of them.
func setupLogging(cmd *cobra.Command, args []string) error {
	level := logging.ParseLevel(os.Getenv("LOG_LEVEL"), slog.LevelInfo)
	logger, closer, err := logging.New(os.Stderr, level, os.Getenv("LOG_FILE"))
	if err != nil {
		return err
	}
	logCloser = closer
	slog.SetDefault(logger)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
