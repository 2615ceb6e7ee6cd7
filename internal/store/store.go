// Package store defines the persistence model shared by the SQLite and
// Supabase backends.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a job or credential record does not exist.
var ErrNotFound = errors.New("not found")

// JobStatus tracks where a job is in its publish lifecycle.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
)

// Credentials authenticate one publishing identity.
type Credentials struct {
	APIKey            string `json:"api_key"`
	APISecret         string `json:"api_secret"`
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret"`
}

// Complete reports whether all four secrets are present.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// SavedCredentials is a credential set persisted under a generated id.
type SavedCredentials struct {
	ID          string
	Credentials Credentials
	CreatedAt   time.Time
}

// Job is a scheduled thread awaiting its trigger time.
type Job struct {
	ID          int64
	OwnerID     string
	Credentials Credentials
	ScheduledAt time.Time
	// ImageData is the base64 encoded image, empty when the thread has none.
	ImageData string
	Status    JobStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one post of a job's thread.
type Chunk struct {
	ID       int64
	JobID    int64
	Position int
	Content  string
	// PostID is set once the chunk has been published.
	PostID string
}

// NewJob carries everything needed to insert a job and its chunks.
type NewJob struct {
	OwnerID     string
	Credentials Credentials
	ScheduledAt time.Time
	ImageData   string
	Chunks      []string
}

// JobStore persists scheduled jobs and their chunks.
type JobStore interface {
	// CreateJob inserts the job and one chunk row per entry in Chunks.
	CreateJob(ctx context.Context, job NewJob) (int64, error)
	GetJob(ctx context.Context, id int64) (*Job, error)
	ListJobsByOwner(ctx context.Context, ownerID string) ([]Job, error)
	// ListDueJobs returns jobs with ScheduledAt <= before, oldest first.
	ListDueJobs(ctx context.Context, before time.Time) ([]Job, error)
	// ListChunks returns the job's chunks ordered by position.
	ListChunks(ctx context.Context, jobID int64) ([]Chunk, error)
	SetJobStatus(ctx context.Context, jobID int64, status JobStatus) error
	RecordJobFailure(ctx context.Context, jobID int64, msg string) error
	MarkChunkPosted(ctx context.Context, chunkID int64, postID string) error
	// DeleteJob removes the job and all of its chunks.
	DeleteJob(ctx context.Context, id int64) error
}

// CredentialStore persists saved credential records.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, rec SavedCredentials) error
	GetCredentials(ctx context.Context, id string) (*SavedCredentials, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	JobStore
	CredentialStore
	Close() error
}
