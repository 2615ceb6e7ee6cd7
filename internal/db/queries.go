package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL statements for the jobs, job_chunks and credentials tables.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q that runs inside tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// JobRow mirrors a row of the jobs table.
type JobRow struct {
	ID                int64
	OwnerID           string
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	ScheduledAt       string
	ImageData         string
	Status            string
	Attempts          int64
	LastError         string
	CreatedAt         string
	UpdatedAt         string
}

// ChunkRow mirrors a row of the job_chunks table.
type ChunkRow struct {
	ID       int64
	JobID    int64
	Position int64
	Content  string
	PostID   string
}

// CredentialRow mirrors a row of the credentials table.
type CredentialRow struct {
	ID                string
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	CreatedAt         string
}

const jobColumns = `id, owner_id, api_key, api_secret, access_token, access_token_secret,
	scheduled_at, image_data, status, attempts, last_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (JobRow, error) {
	var j JobRow
	err := s.Scan(
		&j.ID, &j.OwnerID, &j.APIKey, &j.APISecret, &j.AccessToken, &j.AccessTokenSecret,
		&j.ScheduledAt, &j.ImageData, &j.Status, &j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	return j, err
}

func (q *Queries) collectJobs(ctx context.Context, query string, args ...any) ([]JobRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []JobRow
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// InsertJobParams are the columns written by InsertJob.
type InsertJobParams struct {
	OwnerID           string
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	ScheduledAt       string
	ImageData         string
	CreatedAt         string
}

const insertJob = `
INSERT INTO jobs (
	owner_id, api_key, api_secret, access_token, access_token_secret,
	scheduled_at, image_data, status, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
`

func (q *Queries) InsertJob(ctx context.Context, arg InsertJobParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertJob,
		arg.OwnerID, arg.APIKey, arg.APISecret, arg.AccessToken, arg.AccessTokenSecret,
		arg.ScheduledAt, arg.ImageData, arg.CreatedAt, arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const insertChunk = `INSERT INTO job_chunks (job_id, position, content) VALUES (?, ?, ?)`

func (q *Queries) InsertChunk(ctx context.Context, jobID int64, position int, content string) error {
	_, err := q.db.ExecContext(ctx, insertChunk, jobID, position, content)
	return err
}

const getJob = `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

func (q *Queries) GetJob(ctx context.Context, id int64) (JobRow, error) {
	return scanJob(q.db.QueryRowContext(ctx, getJob, id))
}

const listJobsByOwner = `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = ? ORDER BY scheduled_at, id`

func (q *Queries) ListJobsByOwner(ctx context.Context, ownerID string) ([]JobRow, error) {
	return q.collectJobs(ctx, listJobsByOwner, ownerID)
}

const listDueJobs = `SELECT ` + jobColumns + ` FROM jobs WHERE scheduled_at <= ? ORDER BY scheduled_at, id`

func (q *Queries) ListDueJobs(ctx context.Context, before string) ([]JobRow, error) {
	return q.collectJobs(ctx, listDueJobs, before)
}

const listChunks = `SELECT id, job_id, position, content, post_id FROM job_chunks WHERE job_id = ? ORDER BY position`

func (q *Queries) ListChunks(ctx context.Context, jobID int64) ([]ChunkRow, error) {
	rows, err := q.db.QueryContext(ctx, listChunks, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ChunkRow
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(&c.ID, &c.JobID, &c.Position, &c.Content, &c.PostID); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateJobStatus = `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateJobStatus(ctx context.Context, id int64, status, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateJobStatus, status, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const recordJobFailure = `
UPDATE jobs
SET status = 'pending', attempts = attempts + 1, last_error = ?, updated_at = ?
WHERE id = ?
`

func (q *Queries) RecordJobFailure(ctx context.Context, id int64, msg, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, recordJobFailure, msg, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateChunkPostID = `UPDATE job_chunks SET post_id = ? WHERE id = ?`

func (q *Queries) UpdateChunkPostID(ctx context.Context, id int64, postID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateChunkPostID, postID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteChunksByJob = `DELETE FROM job_chunks WHERE job_id = ?`

func (q *Queries) DeleteChunksByJob(ctx context.Context, jobID int64) error {
	_, err := q.db.ExecContext(ctx, deleteChunksByJob, jobID)
	return err
}

const deleteJob = `DELETE FROM jobs WHERE id = ?`

func (q *Queries) DeleteJob(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteJob, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertCredentials = `
INSERT INTO credentials (id, api_key, api_secret, access_token, access_token_secret, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertCredentials(ctx context.Context, arg CredentialRow) error {
	_, err := q.db.ExecContext(ctx, insertCredentials,
		arg.ID, arg.APIKey, arg.APISecret, arg.AccessToken, arg.AccessTokenSecret, arg.CreatedAt,
	)
	return err
}

const getCredentials = `
SELECT id, api_key, api_secret, access_token, access_token_secret, created_at
FROM credentials WHERE id = ?
`

func (q *Queries) GetCredentials(ctx context.Context, id string) (CredentialRow, error) {
	var c CredentialRow
	err := q.db.QueryRowContext(ctx, getCredentials, id).Scan(
		&c.ID, &c.APIKey, &c.APISecret, &c.AccessToken, &c.AccessTokenSecret, &c.CreatedAt,
	)
	return c, err
}

const countChunks = `SELECT COUNT(*) FROM job_chunks WHERE job_id = ?`

func (q *Queries) CountChunks(ctx context.Context, jobID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countChunks, jobID).Scan(&n)
	return n, err
}
