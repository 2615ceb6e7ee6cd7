package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abdulachik/threadbot/internal/config"
	"github.com/abdulachik/threadbot/internal/db"
	"github.com/abdulachik/threadbot/internal/poller"
	"github.com/abdulachik/threadbot/internal/poster"
	"github.com/abdulachik/threadbot/internal/store"
	"github.com/abdulachik/threadbot/internal/supabase"
	"github.com/abdulachik/threadbot/internal/workflow"
)

// App is the main application container holding all dependencies.
type App struct {
	Config *config.Config
	Store  store.Store
	// NewClient builds a Twitter client for one credential set.
	NewClient func(store.Credentials) poster.Client
	// Publisher uses the interactive media policy; the poller gets its own copy.
	Publisher *poster.Publisher
	Poller    *poller.Poller
	Health    *poller.Health
	Workflow  *workflow.Service
}

// New creates a new application instance with all dependencies wired up.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	newClient := poster.NewTwitterClient(poster.TwitterConfig{
		APIBaseURL:    cfg.TwitterAPIBaseURL,
		UploadBaseURL: cfg.TwitterUploadBaseURL,
	})

	pub := poster.NewPublisher(poster.PublisherConfig{
		NewClient:   newClient,
		ReplyDelay:  cfg.ReplyDelay,
		MediaPolicy: cfg.SendMediaPolicy,
		Logger:      logger,
	})

	health := poller.NewHealth()
	p := poller.New(poller.Config{
		Store:     st,
		Publisher: pub.WithMediaPolicy(cfg.PollMediaPolicy),
		Schedule:  cfg.PollSchedule,
		Resume:    cfg.ResumePartial,
		Logger:    logger,
		Health:    health,
	})

	svc := workflow.New(workflow.Config{
		Store:     st,
		Publisher: pub,
		Logger:    logger,
	})

	return &App{
		Config:    cfg,
		Store:     st,
		NewClient: newClient,
		Publisher: pub,
		Poller:    p,
		Health:    health,
		Workflow:  svc,
	}, nil
}

// OpenStore opens the configured store. SQLite databases are migrated.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.StoreDriver {
	case config.DriverSupabase:
		st, err := supabase.New(supabase.Config{
			URL:    cfg.SupabaseURL,
			APIKey: cfg.SupabaseAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create supabase store: %w", err)
		}
		return st, nil
	default:
		st, err := db.NewStore(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	}
}

// Close closes all resources.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
