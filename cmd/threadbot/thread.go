package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdulachik/threadbot/internal/app"
	"github.com/abdulachik/threadbot/internal/config"
	"github.com/abdulachik/threadbot/internal/poster"
	"github.com/abdulachik/threadbot/internal/store"
)

// chunkSeparator splits a chunk file into posts.
const chunkSeparator = "---"

// threadFlags are shared by send and schedule.
type threadFlags struct {
	chunks  []string
	file    string
	split   bool
	image   string
	credsID string
}

func (f *threadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.chunks, "chunk", "c", nil, "Thread chunk, repeat in posting order")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read chunks from a file, separated by lines of ---; - reads stdin")
	cmd.Flags().BoolVar(&f.split, "split", false, "Re-split the text into chunks that fit one post")
	cmd.Flags().StringVar(&f.image, "image", "", "Image (png or jpeg) attached to the first post")
	cmd.Flags().StringVar(&f.credsID, "creds", "", "Saved credential set to use instead of the TWITTER_* variables")
}

func (f *threadFlags) readChunks(stdin io.Reader) ([]string, error) {
	chunks := append([]string(nil), f.chunks...)

	if f.file != "" {
		var data []byte
		var err error
		if f.file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(f.file)
		}
		if err != nil {
			return nil, fmt.Errorf("read chunk file: %w", err)
		}
		chunks = append(chunks, parseChunkFile(string(data))...)
	}

	if f.split {
		chunks = poster.SplitText(strings.Join(chunks, "\n\n"), poster.TwitterMaxLength)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks given (use --chunk or --file)")
	}
	return chunks, nil
}

func (f *threadFlags) readImage() ([]byte, error) {
	if f.image == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.image)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

// parseChunkFile splits text on separator lines and trims each chunk.
func parseChunkFile(text string) []string {
	var chunks []string
	var current []string
	flush := func() {
		chunk := strings.TrimSpace(strings.Join(current, "\n"))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == chunkSeparator {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return chunks
}

func printThread(w io.Writer, chunks []string, image []byte) {
	for i, chunk := range chunks {
		note := ""
		if !poster.FitsInLimit(chunk, poster.TwitterMaxLength) {
			note = " over limit"
		}
		fmt.Fprintf(w, "[%d] %d chars%s\n%s\n\n", i+1, poster.CharCount(chunk), note, chunk)
	}
	if len(image) > 0 {
		fmt.Fprintf(w, "image: %d bytes\n", len(image))
	}
}

func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	a, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}

// resolveCredentials loads a saved set by id, or falls back to the
// configured TWITTER_* credentials.
func resolveCredentials(ctx context.Context, a *app.App, id string) (store.Credentials, error) {
	if id != "" {
		creds, err := a.Workflow.LoadCredentials(ctx, id)
		if err != nil {
			return store.Credentials{}, fmt.Errorf("load credentials: %w", err)
		}
		return creds, nil
	}
	if err := a.Config.ValidateForPosting(); err != nil {
		return store.Credentials{}, fmt.Errorf("validate config: %w", err)
	}
	return a.Config.Twitter, nil
}
