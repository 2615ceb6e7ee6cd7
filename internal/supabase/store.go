// Package supabase implements store.Store on a hosted Supabase project
// through its PostgREST table API.
package supabase

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/sling"

	"github.com/abdulachik/threadbot/internal/store"
)

const (
	tableJobs        = "jobs"
	tableChunks      = "job_chunks"
	tableCredentials = "credentials"
)

var _ store.Store = (*Store)(nil)

// Schema is the DDL for the tables this store reads and writes. PostgREST
// cannot create tables, so it is applied by hand.
//
//go:embed schema.sql
var Schema string

// Config holds configuration for the Supabase store.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// Store talks to the jobs, job_chunks and credentials tables.
type Store struct {
	base *sling.Sling
	now  func() time.Time
}

// New creates a Supabase-backed store.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase api key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	base := sling.New().
		Client(httpClient).
		Base(strings.TrimRight(cfg.URL, "/")+"/rest/v1/").
		Set("apikey", cfg.APIKey).
		Set("Authorization", "Bearer "+cfg.APIKey)

	return &Store{base: base, now: time.Now}, nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (s *Store) Close() error {
	return nil
}

// Error is a PostgREST error response.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("supabase: HTTP %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

type jobRow struct {
	ID                int64     `json:"id,omitempty"`
	OwnerID           string    `json:"owner_id"`
	APIKey            string    `json:"api_key"`
	APISecret         string    `json:"api_secret"`
	AccessToken       string    `json:"access_token"`
	AccessTokenSecret string    `json:"access_token_secret"`
	ScheduledAt       time.Time `json:"scheduled_at"`
	ImageData         string    `json:"image_data"`
	Status            string    `json:"status"`
	Attempts          int       `json:"attempts"`
	LastError         string    `json:"last_error"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type chunkRow struct {
	ID       int64  `json:"id,omitempty"`
	JobID    int64  `json:"job_id"`
	Position int    `json:"position"`
	Content  string `json:"content"`
	PostID   string `json:"post_id"`
}

type credentialRow struct {
	ID                string    `json:"id"`
	APIKey            string    `json:"api_key"`
	APISecret         string    `json:"api_secret"`
	AccessToken       string    `json:"access_token"`
	AccessTokenSecret string    `json:"access_token_secret"`
	CreatedAt         time.Time `json:"created_at"`
}

func (s *Store) do(ctx context.Context, req *sling.Sling, success any) error {
	httpReq, err := req.Request()
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	apiErr := &Error{}
	resp, err := s.base.Do(httpReq.WithContext(ctx), success, apiErr)
	if err != nil && resp == nil {
		return fmt.Errorf("supabase request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func filterPath(table string, params url.Values) string {
	return table + "?" + params.Encode()
}

func eq(v string) string { return "eq." + v }

func idParam(id int64) string { return eq(strconv.FormatInt(id, 10)) }

// CreateJob inserts the job, then all chunks in one request. If the chunk
// insert fails the job row is deleted again.
func (s *Store) CreateJob(ctx context.Context, job store.NewJob) (int64, error) {
	if len(job.Chunks) == 0 {
		return 0, fmt.Errorf("create job: no chunks")
	}

	now := s.now().UTC()
	row := jobRow{
		OwnerID:           job.OwnerID,
		APIKey:            job.Credentials.APIKey,
		APISecret:         job.Credentials.APISecret,
		AccessToken:       job.Credentials.AccessToken,
		AccessTokenSecret: job.Credentials.AccessTokenSecret,
		ScheduledAt:       job.ScheduledAt.UTC(),
		ImageData:         job.ImageData,
		Status:            string(store.JobStatusPending),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var inserted []jobRow
	req := s.base.New().Post(tableJobs).Set("Prefer", "return=representation").BodyJSON(row)
	if err := s.do(ctx, req, &inserted); err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	if len(inserted) == 0 {
		return 0, fmt.Errorf("insert job: empty response")
	}
	id := inserted[0].ID

	chunks := make([]chunkRow, len(job.Chunks))
	for i, content := range job.Chunks {
		chunks[i] = chunkRow{JobID: id, Position: i, Content: content}
	}
	req = s.base.New().Post(tableChunks).Set("Prefer", "return=minimal").BodyJSON(chunks)
	if err := s.do(ctx, req, nil); err != nil {
		if delErr := s.deleteJobRow(ctx, id); delErr != nil {
			return 0, fmt.Errorf("insert chunks: %w (cleanup of job %d failed: %v)", err, id, delErr)
		}
		return 0, fmt.Errorf("insert chunks: %w", err)
	}

	return id, nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*store.Job, error) {
	var rows []jobRow
	params := url.Values{"select": {"*"}, "id": {idParam(id)}}
	if err := s.do(ctx, s.base.New().Get(filterPath(tableJobs, params)), &rows); err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("job %d: %w", id, store.ErrNotFound)
	}
	job := rows[0].toJob()
	return &job, nil
}

func (s *Store) ListJobsByOwner(ctx context.Context, ownerID string) ([]store.Job, error) {
	params := url.Values{
		"select":   {"*"},
		"owner_id": {eq(ownerID)},
		"order":    {"scheduled_at.asc,id.asc"},
	}
	return s.listJobs(ctx, params)
}

func (s *Store) ListDueJobs(ctx context.Context, before time.Time) ([]store.Job, error) {
	params := url.Values{
		"select":       {"*"},
		"scheduled_at": {"lte." + before.UTC().Format(time.RFC3339)},
		"order":        {"scheduled_at.asc,id.asc"},
	}
	return s.listJobs(ctx, params)
}

func (s *Store) listJobs(ctx context.Context, params url.Values) ([]store.Job, error) {
	var rows []jobRow
	if err := s.do(ctx, s.base.New().Get(filterPath(tableJobs, params)), &rows); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]store.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toJob())
	}
	return jobs, nil
}

func (s *Store) ListChunks(ctx context.Context, jobID int64) ([]store.Chunk, error) {
	var rows []chunkRow
	params := url.Values{
		"select": {"*"},
		"job_id": {idParam(jobID)},
		"order":  {"position.asc"},
	}
	if err := s.do(ctx, s.base.New().Get(filterPath(tableChunks, params)), &rows); err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	chunks := make([]store.Chunk, 0, len(rows))
	for _, r := range rows {
		chunks = append(chunks, store.Chunk{
			ID:       r.ID,
			JobID:    r.JobID,
			Position: r.Position,
			Content:  r.Content,
			PostID:   r.PostID,
		})
	}
	return chunks, nil
}

// patch updates rows matching params and reports how many matched.
func (s *Store) patch(ctx context.Context, table string, params url.Values, body any) (int, error) {
	var rows []map[string]any
	req := s.base.New().Patch(filterPath(table, params)).Set("Prefer", "return=representation").BodyJSON(body)
	if err := s.do(ctx, req, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) SetJobStatus(ctx context.Context, jobID int64, status store.JobStatus) error {
	n, err := s.patch(ctx, tableJobs, url.Values{"id": {idParam(jobID)}}, map[string]any{
		"status":     string(status),
		"updated_at": s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %d: %w", jobID, store.ErrNotFound)
	}
	return nil
}

// RecordJobFailure reads the attempt counter and writes it back incremented;
// PostgREST has no increment operator.
func (s *Store) RecordJobFailure(ctx context.Context, jobID int64, msg string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	_, err = s.patch(ctx, tableJobs, url.Values{"id": {idParam(jobID)}}, map[string]any{
		"status":     string(store.JobStatusPending),
		"attempts":   job.Attempts + 1,
		"last_error": msg,
		"updated_at": s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record job failure: %w", err)
	}
	return nil
}

func (s *Store) MarkChunkPosted(ctx context.Context, chunkID int64, postID string) error {
	n, err := s.patch(ctx, tableChunks, url.Values{"id": {idParam(chunkID)}}, map[string]any{
		"post_id": postID,
	})
	if err != nil {
		return fmt.Errorf("mark chunk posted: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chunk %d: %w", chunkID, store.ErrNotFound)
	}
	return nil
}

// DeleteJob removes the chunks first so a failure never leaves orphans.
func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	req := s.base.New().Delete(filterPath(tableChunks, url.Values{"job_id": {idParam(id)}}))
	if err := s.do(ctx, req, nil); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	var rows []jobRow
	req = s.base.New().Delete(filterPath(tableJobs, url.Values{"id": {idParam(id)}})).Set("Prefer", "return=representation")
	if err := s.do(ctx, req, &rows); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("job %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) deleteJobRow(ctx context.Context, id int64) error {
	return s.do(ctx, s.base.New().Delete(filterPath(tableJobs, url.Values{"id": {idParam(id)}})), nil)
}

func (s *Store) SaveCredentials(ctx context.Context, rec store.SavedCredentials) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	row := credentialRow{
		ID:                rec.ID,
		APIKey:            rec.Credentials.APIKey,
		APISecret:         rec.Credentials.APISecret,
		AccessToken:       rec.Credentials.AccessToken,
		AccessTokenSecret: rec.Credentials.AccessTokenSecret,
		CreatedAt:         created.UTC(),
	}
	req := s.base.New().Post(tableCredentials).Set("Prefer", "return=minimal").BodyJSON(row)
	if err := s.do(ctx, req, nil); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *Store) GetCredentials(ctx context.Context, id string) (*store.SavedCredentials, error) {
	var rows []credentialRow
	params := url.Values{"select": {"*"}, "id": {eq(id)}}
	if err := s.do(ctx, s.base.New().Get(filterPath(tableCredentials, params)), &rows); err != nil {
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("credentials %s: %w", id, store.ErrNotFound)
	}
	r := rows[0]
	return &store.SavedCredentials{
		ID: r.ID,
		Credentials: store.Credentials{
			APIKey:            r.APIKey,
			APISecret:         r.APISecret,
			AccessToken:       r.AccessToken,
			AccessTokenSecret: r.AccessTokenSecret,
		},
		CreatedAt: r.CreatedAt,
	}, nil
}

func (r jobRow) toJob() store.Job {
	return store.Job{
		ID:      r.ID,
		OwnerID: r.OwnerID,
		Credentials: store.Credentials{
			APIKey:            r.APIKey,
			APISecret:         r.APISecret,
			AccessToken:       r.AccessToken,
			AccessTokenSecret: r.AccessTokenSecret,
		},
		ScheduledAt: r.ScheduledAt,
		ImageData:   r.ImageData,
		Status:      store.JobStatus(r.Status),
		Attempts:    r.Attempts,
		LastError:   r.LastError,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
