// Package workflow implements the front-end operations shared by the web UI
// and the CLI: immediate sends, scheduling, job management and saved
// credentials.
package workflow

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abdulachik/threadbot/internal/poster"
	"github.com/abdulachik/threadbot/internal/store"
)

// ErrInvalidInput is returned when a request fails validation. No store
// write or network call happens in that case.
var ErrInvalidInput = errors.New("invalid input")

// MaxChunks bounds the number of chunks in one thread.
const MaxChunks = 25

// Service runs the front-end workflows.
type Service struct {
	store     store.Store
	publisher *poster.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Config holds service configuration.
type Config struct {
	Store store.Store
	// Publisher is used for immediate sends; its media policy applies.
	Publisher *poster.Publisher
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

// New creates a new workflow service.
func New(cfg Config) *Service {
	s := &Service{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// SendRequest is an immediate publish.
type SendRequest struct {
	Credentials store.Credentials
	Chunks      []string
	Image       []byte
}

// Send publishes the thread right away.
func (s *Service) Send(ctx context.Context, req SendRequest) (*poster.PublishResult, error) {
	if !req.Credentials.Complete() {
		return nil, fmt.Errorf("%w: all four credential fields are required", ErrInvalidInput)
	}
	if err := validateChunks(req.Chunks); err != nil {
		return nil, err
	}

	result, err := s.publisher.Publish(ctx, req.Credentials, poster.Thread{
		Chunks: req.Chunks,
		Image:  req.Image,
	})
	if err != nil {
		return result, fmt.Errorf("publish: %w", err)
	}

	s.logger.Info("thread sent", "root_id", result.RootID, "posts", len(result.PostIDs))
	return result, nil
}

// ScheduleRequest describes a job to persist.
type ScheduleRequest struct {
	OwnerID     string
	Credentials store.Credentials
	Chunks      []string
	Image       []byte
	ScheduledAt time.Time
}

// Schedule validates the request and stores one job with its chunks.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (int64, error) {
	if err := validateChunks(req.Chunks); err != nil {
		return 0, err
	}
	if !req.Credentials.Complete() {
		return 0, fmt.Errorf("%w: all four credential fields are required", ErrInvalidInput)
	}
	if req.ScheduledAt.IsZero() {
		return 0, fmt.Errorf("%w: schedule time is required", ErrInvalidInput)
	}

	job := store.NewJob{
		OwnerID:     strings.TrimSpace(req.OwnerID),
		Credentials: req.Credentials,
		ScheduledAt: req.ScheduledAt.UTC(),
		Chunks:      req.Chunks,
	}
	if len(req.Image) > 0 {
		job.ImageData = base64.StdEncoding.EncodeToString(req.Image)
	}

	id, err := s.store.CreateJob(ctx, job)
	if err != nil {
		return 0, fmt.Errorf("schedule job: %w", err)
	}

	s.logger.Info("job scheduled", "job_id", id, "owner_id", job.OwnerID, "scheduled_at", job.ScheduledAt, "chunks", len(job.Chunks))
	return id, nil
}

// ListJobs returns the jobs owned by ownerID.
func (s *Service) ListJobs(ctx context.Context, ownerID string) ([]store.Job, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	return s.store.ListJobsByOwner(ctx, ownerID)
}

// JobChunks returns the chunks of a job in order.
func (s *Service) JobChunks(ctx context.Context, jobID int64) ([]store.Chunk, error) {
	return s.store.ListChunks(ctx, jobID)
}

// DeleteJob removes a job and its chunks.
func (s *Service) DeleteJob(ctx context.Context, jobID int64) error {
	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	s.logger.Info("job deleted", "job_id", jobID)
	return nil
}

// SaveCredentials stores creds under a newly generated id.
func (s *Service) SaveCredentials(ctx context.Context, creds store.Credentials) (string, error) {
	if !creds.Complete() {
		return "", fmt.Errorf("%w: all four credential fields are required", ErrInvalidInput)
	}

	id := s.newID()
	err := s.store.SaveCredentials(ctx, store.SavedCredentials{
		ID:          id,
		Credentials: creds,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// LoadCredentials fetches a saved credential set.
func (s *Service) LoadCredentials(ctx context.Context, id string) (store.Credentials, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.Credentials{}, fmt.Errorf("%w: credentials id is required", ErrInvalidInput)
	}
	rec, err := s.store.GetCredentials(ctx, id)
	if err != nil {
		return store.Credentials{}, err
	}
	return rec.Credentials, nil
}

func validateChunks(chunks []string) error {
	if len(chunks) > MaxChunks {
		return fmt.Errorf("%w: at most %d chunks", ErrInvalidInput, MaxChunks)
	}
	if !poster.HasContent(chunks) {
		return fmt.Errorf("%w: post content is empty", ErrInvalidInput)
	}
	return nil
}
