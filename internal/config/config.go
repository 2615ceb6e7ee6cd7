package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/abdulachik/threadbot/internal/poster"
	"github.com/abdulachik/threadbot/internal/store"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
)

const defaultSecretsFile = "secrets.yaml"

// Config holds all application configuration.
type Config struct {
	// Store
	StoreDriver  string // "sqlite" or "supabase" (default: sqlite)
	DatabasePath string

	// Supabase
	SupabaseURL    string
	SupabaseAPIKey string

	// Twitter credentials used by CLI commands when no saved set is given.
	Twitter store.Credentials

	// Twitter endpoints (tests and proxies)
	TwitterAPIBaseURL    string
	TwitterUploadBaseURL string

	// Publishing
	PollSchedule    string
	ReplyDelay      time.Duration
	SendMediaPolicy poster.MediaPolicy
	PollMediaPolicy poster.MediaPolicy
	ResumePartial   bool

	// Web
	HTTPAddr string

	// Logging
	LogLevel string
	LogFile  string

	// SecretsFile is the YAML file the secrets were read from, if any.
	SecretsFile string
}

// Secrets is the layout of the YAML secrets file.
type Secrets struct {
	Database struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key"`
	} `yaml:"database"`
	Twitter struct {
		APIKey            string `yaml:"api_key"`
		APISecret         string `yaml:"api_secret"`
		AccessToken       string `yaml:"access_token"`
		AccessTokenSecret string `yaml:"access_token_secret"`
	} `yaml:"twitter"`
}

// Load reads configuration from environment variables.
// It automatically loads .env file if present. Values from the secrets file
// fill in whatever the environment leaves unset.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	secretsPath := getEnv("SECRETS_FILE", "")
	required := secretsPath != ""
	if !required {
		secretsPath = defaultSecretsFile
	}
	secrets, err := LoadSecrets(secretsPath)
	switch {
	case err == nil:
	case !required && errors.Is(err, fs.ErrNotExist):
		secretsPath = ""
		secrets = &Secrets{}
	default:
		return nil, err
	}

	cfg := &Config{
		StoreDriver:    getEnv("STORE_DRIVER", DriverSQLite),
		DatabasePath:   getEnv("DATABASE_PATH", "data/threadbot.db"),
		SupabaseURL:    getEnv("SUPABASE_URL", secrets.Database.URL),
		SupabaseAPIKey: getEnv("SUPABASE_API_KEY", secrets.Database.APIKey),
		Twitter: store.Credentials{
			APIKey:            getEnv("TWITTER_API_KEY", secrets.Twitter.APIKey),
			APISecret:         getEnv("TWITTER_API_SECRET", secrets.Twitter.APISecret),
			AccessToken:       getEnv("TWITTER_ACCESS_TOKEN", secrets.Twitter.AccessToken),
			AccessTokenSecret: getEnv("TWITTER_ACCESS_TOKEN_SECRET", secrets.Twitter.AccessTokenSecret),
		},
		TwitterAPIBaseURL:    getEnv("TWITTER_API_BASE_URL", poster.DefaultAPIBaseURL),
		TwitterUploadBaseURL: getEnv("TWITTER_UPLOAD_BASE_URL", poster.DefaultUploadBaseURL),
		PollSchedule:         getEnv("POLL_SCHEDULE", "@every 1m"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFile:              getEnv("LOG_FILE", ""),
		SecretsFile:          secretsPath,
	}

	// Parse durations
	cfg.ReplyDelay, err = time.ParseDuration(getEnv("REPLY_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REPLY_DELAY: %w", err)
	}
	if cfg.ReplyDelay < 0 {
		return nil, fmt.Errorf("invalid REPLY_DELAY: must not be negative")
	}

	// Parse policies
	cfg.SendMediaPolicy, err = poster.ParseMediaPolicy(getEnv("SEND_MEDIA_POLICY", string(poster.MediaAbort)))
	if err != nil {
		return nil, fmt.Errorf("invalid SEND_MEDIA_POLICY: %w", err)
	}
	cfg.PollMediaPolicy, err = poster.ParseMediaPolicy(getEnv("POLL_MEDIA_POLICY", string(poster.MediaSkip)))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_MEDIA_POLICY: %w", err)
	}

	// Parse booleans
	cfg.ResumePartial, err = strconv.ParseBool(getEnv("RESUME_PARTIAL", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESUME_PARTIAL: %w", err)
	}

	return cfg, nil
}

// LoadSecrets parses a YAML secrets file.
func LoadSecrets(path string) (*Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}
	var s Secrets
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse secrets file %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks that the store configuration is present.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite, "":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required")
		}
	case DriverSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required when STORE_DRIVER is supabase")
		}
		if c.SupabaseAPIKey == "" {
			return fmt.Errorf("SUPABASE_API_KEY is required when STORE_DRIVER is supabase")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s (must be 'sqlite' or 'supabase')", c.StoreDriver)
	}
	return nil
}

// ValidateForPosting checks configuration needed by commands that post with
// the configured credentials rather than a saved set.
func (c *Config) ValidateForPosting() error {
	if c.Twitter.APIKey == "" {
		return fmt.Errorf("TWITTER_API_KEY is required for posting")
	}
	if c.Twitter.APISecret == "" {
		return fmt.Errorf("TWITTER_API_SECRET is required for posting")
	}
	if c.Twitter.AccessToken == "" {
		return fmt.Errorf("TWITTER_ACCESS_TOKEN is required for posting")
	}
	if c.Twitter.AccessTokenSecret == "" {
		return fmt.Errorf("TWITTER_ACCESS_TOKEN_SECRET is required for posting")
	}
	return nil
}

// ValidateForServe checks all configuration needed for serve mode.
func (c *Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required for serve")
	}
	if c.PollSchedule == "" {
		return fmt.Errorf("POLL_SCHEDULE is required for serve")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
