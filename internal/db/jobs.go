package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abdulachik/threadbot/internal/store"
)

// timeLayout sorts lexically, so scheduled_at can be compared as text.
const timeLayout = "2006-01-02 15:04:05"

var _ store.Store = (*Store)(nil)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateJob inserts a job and its chunks in a single transaction.
func (s *Store) CreateJob(ctx context.Context, job store.NewJob) (int64, error) {
	if len(job.Chunks) == 0 {
		return 0, fmt.Errorf("create job: no chunks")
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := s.queries.WithTx(tx)
	id, err := q.InsertJob(ctx, InsertJobParams{
		OwnerID:           job.OwnerID,
		APIKey:            job.Credentials.APIKey,
		APISecret:         job.Credentials.APISecret,
		AccessToken:       job.Credentials.AccessToken,
		AccessTokenSecret: job.Credentials.AccessTokenSecret,
		ScheduledAt:       formatTime(job.ScheduledAt),
		ImageData:         job.ImageData,
		CreatedAt:         formatTime(s.now()),
	})
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}

	for i, content := range job.Chunks {
		if err := q.InsertChunk(ctx, id, i, content); err != nil {
			return 0, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit job: %w", err)
	}
	return id, nil
}

// GetJob returns a single job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*store.Job, error) {
	row, err := s.queries.GetJob(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	job := toJob(row)
	return &job, nil
}

// ListJobsByOwner returns every job owned by ownerID ordered by schedule time.
func (s *Store) ListJobsByOwner(ctx context.Context, ownerID string) ([]store.Job, error) {
	rows, err := s.queries.ListJobsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return toJobs(rows), nil
}

// ListDueJobs returns jobs scheduled at or before the given time.
func (s *Store) ListDueJobs(ctx context.Context, before time.Time) ([]store.Job, error) {
	rows, err := s.queries.ListDueJobs(ctx, formatTime(before))
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	return toJobs(rows), nil
}

// ListChunks returns the chunks of a job in position order.
func (s *Store) ListChunks(ctx context.Context, jobID int64) ([]store.Chunk, error) {
	rows, err := s.queries.ListChunks(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	chunks := make([]store.Chunk, 0, len(rows))
	for _, r := range rows {
		chunks = append(chunks, store.Chunk{
			ID:       r.ID,
			JobID:    r.JobID,
			Position: int(r.Position),
			Content:  r.Content,
			PostID:   r.PostID,
		})
	}
	return chunks, nil
}

func (s *Store) SetJobStatus(ctx context.Context, jobID int64, status store.JobStatus) error {
	n, err := s.queries.UpdateJobStatus(ctx, jobID, string(status), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %d: %w", jobID, store.ErrNotFound)
	}
	return nil
}

// RecordJobFailure bumps the attempt counter and puts the job back to pending.
func (s *Store) RecordJobFailure(ctx context.Context, jobID int64, msg string) error {
	n, err := s.queries.RecordJobFailure(ctx, jobID, msg, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("record job failure: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %d: %w", jobID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkChunkPosted(ctx context.Context, chunkID int64, postID string) error {
	n, err := s.queries.UpdateChunkPostID(ctx, chunkID, postID)
	if err != nil {
		return fmt.Errorf("mark chunk posted: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chunk %d: %w", chunkID, store.ErrNotFound)
	}
	return nil
}

// DeleteJob removes the chunks and then the job row.
func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := s.queries.WithTx(tx)
	if err := q.DeleteChunksByJob(ctx, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	n, err := q.DeleteJob(ctx, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %d: %w", id, store.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// SaveCredentials stores a credential record under rec.ID.
func (s *Store) SaveCredentials(ctx context.Context, rec store.SavedCredentials) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	err := s.queries.InsertCredentials(ctx, CredentialRow{
		ID:                rec.ID,
		APIKey:            rec.Credentials.APIKey,
		APISecret:         rec.Credentials.APISecret,
		AccessToken:       rec.Credentials.AccessToken,
		AccessTokenSecret: rec.Credentials.AccessTokenSecret,
		CreatedAt:         formatTime(created),
	})
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// GetCredentials loads a saved credential record.
func (s *Store) GetCredentials(ctx context.Context, id string) (*store.SavedCredentials, error) {
	row, err := s.queries.GetCredentials(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credentials %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	return &store.SavedCredentials{
		ID: row.ID,
		Credentials: store.Credentials{
			APIKey:            row.APIKey,
			APISecret:         row.APISecret,
			AccessToken:       row.AccessToken,
			AccessTokenSecret: row.AccessTokenSecret,
		},
		CreatedAt: parseTime(row.CreatedAt),
	}, nil
}

// CountChunks reports how many chunk rows reference the job.
func (s *Store) CountChunks(ctx context.Context, jobID int64) (int64, error) {
	return s.queries.CountChunks(ctx, jobID)
}

func toJobs(rows []JobRow) []store.Job {
	jobs := make([]store.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, toJob(r))
	}
	return jobs
}

func toJob(r JobRow) store.Job {
	return store.Job{
		ID:      r.ID,
		OwnerID: r.OwnerID,
		Credentials: store.Credentials{
			APIKey:            r.APIKey,
			APISecret:         r.APISecret,
			AccessToken:       r.AccessToken,
			AccessTokenSecret: r.AccessTokenSecret,
		},
		ScheduledAt: parseTime(r.ScheduledAt),
		ImageData:   r.ImageData,
		Status:      store.JobStatus(r.Status),
		Attempts:    int(r.Attempts),
		LastError:   r.LastError,
		CreatedAt:   parseTime(r.CreatedAt),
		UpdatedAt:   parseTime(r.UpdatedAt),
	}
}
