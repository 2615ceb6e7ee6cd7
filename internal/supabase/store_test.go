package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/threadbot/internal/store"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Prefer string
	Body   string
}

// fakeREST answers PostgREST calls from a table of canned responses keyed by
// "METHOD /path". Unknown routes return 404.
type fakeREST struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query().Encode(),
		Prefer: r.Header.Get("Prefer"),
		Body:   string(body),
	})
	f.mu.Unlock()

	if handler, ok := f.responses[r.Method+" "+r.URL.Path]; ok {
		handler(w, r)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func jsonResponse(status int, v any) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
}

func newTestStore(t *testing.T, f *fakeREST) *Store {
	t.Helper()
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	s, err := New(Config{URL: server.URL + "/", APIKey: "anon-key"})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)

	_, err = New(Config{URL: "https://example.supabase.co"})
	assert.Error(t, err)
}

func TestStore_AuthHeaders(t *testing.T) {
	var gotKey, gotAuth string
	f := &fakeREST{responses: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/v1/jobs": func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("apikey")
			gotAuth = r.Header.Get("Authorization")
			jsonResponse(http.StatusOK, []jobRow{})(w, r)
		},
	}}
	s := newTestStore(t, f)

	_, err := s.ListJobsByOwner(context.Background(), "owner")
	require.NoError(t, err)
	assert.Equal(t, "anon-key", gotKey)
	assert.Equal(t, "Bearer anon-key", gotAuth)
}

func TestStore_CreateJob(t *testing.T) {
	t.Run("inserts job then chunks", func(t *testing.T) {
		f := &fakeREST{responses: map[string]func(http.ResponseWriter, *http.Request){
			"POST /rest/v1/jobs":       jsonResponse(http.StatusCreated, []jobRow{{ID: 42}}),
			"POST /rest/v1/job_chunks": jsonResponse(http.StatusCreated, nil),
		}}
		s := newTestStore(t, f)

		id, err := s.CreateJob(context.Background(), store.NewJob{
			OwnerID:     "owner",
			Credentials: store.Credentials{APIKey: "k", APISecret: "s", AccessToken: "t", AccessTokenSecret: "ts"},
			ScheduledAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
			Chunks:      []string{"first", "second"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)

		require.Len(t, f.requests, 2)
		assert.Equal(t, "return=representation", f.requests[0].Prefer)

		var job jobRow
		require.NoError(t, json.Unmarshal([]byte(f.requests[0].Body), &job))
		assert.Equal(t, "owner", job.OwnerID)
		assert.Equal(t, "pending", job.Status)
		assert.Zero(t, job.ID, "id is assigned by the database")

		var chunks []chunkRow
		require.NoError(t, json.Unmarshal([]byte(f.requests[1].Body), &chunks))
		require.Len(t, chunks, 2)
		assert.Equal(t, chunkRow{JobID: 42, Position: 1, Content: "second"}, chunks[1])
	})

	t.Run("chunk failure deletes job", func(t *testing.T) {
		f := &fakeREST{responses: map[string]func(http.ResponseWriter, *http.Request){
			"POST /rest/v1/jobs":       jsonResponse(http.StatusCreated, []jobRow{{ID: 7}}),
			"POST /rest/v1/job_chunks": jsonResponse(http.StatusBadRequest, Error{Code: "23502", Message: "null value"}),
			"DELETE /rest/v1/jobs":     jsonResponse(http.StatusNoContent, nil),
		}}
		s := newTestStore(t, f)

		_, err := s.CreateJob(context.Background(), store.NewJob{Chunks: []string{"a"}, ScheduledAt: time.Now()})
		require.Error(t, err)

		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "23502", apiErr.Code)

		require.Len(t, f.requests, 3)
		assert.Equal(t, http.MethodDelete, f.requests[2].Method)
		assert.Equal(t, "id=eq.7", f.requests[2].Query)
	})

	t.Run("no chunks", func(t *testing.T) {
		f := &fakeREST{}
		s := newTestStore(t, f)

		_, err := s.CreateJob(context.Background(), store.NewJob{})
		assert.Error(t, err)
		assert.Empty(t, f.requests)
	})
}

func TestStore_ListDueJobs(t *testing.T) {
	scheduled := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	f := &fakeREST{responses: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/v1/jobs": jsonResponse(http.StatusOK, []jobRow{
			{ID: 1, OwnerID: "o", APIKey: "k", ScheduledAt: scheduled, Status: "pending", Attempts: 2},
		}),
	}}
	s := newTestStore(t, f)

	before := time.Date(2026, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
	jobs, err := s.ListDueJobs(context.Background(), before)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(1), jobs[0].ID)
	assert.Equal(t, "k", jobs[0].Credentials.APIKey)
	assert.Equal(t, 2, jobs[0].Attempts)
	assert.True(t, scheduled.Equal(jobs[0].ScheduledAt))

	require.Len(t, f.requests, 1)
	assert.Contains(t, f.requests[0].Query, "scheduled_at=lte.2026-03-01T12%3A00%3A00Z")
	assert.Contains(t, f.requests[0].Query, "order=scheduled_at.asc%2Cid.asc")
}

func TestStore_GetJob_NotFound(t *testing.T) {
	f := &fakeREST{responses: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/v1/jobs": jsonResponse(http.StatusOK, []jobRow{}),
	}}
	s := newTestStore(t, f)

	_, err := s.GetJob(context.Background(), 9)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_RecordJobFailure(t *testing.T) {
	f := &fakeREST{responses: map[string]func(http.ResponseWriter, *http.Request){
		"GET /rest/v1/jobs":   jsonResponse(http.StatusOK, []jobRow{{ID: 3, Attempts: 1, Status: "in_progress"}}),
		"PATCH /rest/v1/jobs": jsonResponse(http.StatusOK, []jobRow{{ID: 3}}),
	}}
	s := newTestStore(t, f)

	require.NoError(t, s.RecordJobFailure(context.Background(), 3, "boom"))
	require.Len(t, f.requests, 2)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.requests[1].Body), &body))
	assert.Equal(t, float64(2), body["attempts"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "boom", body["last_error"])
	assert.Equal(t, "id=eq.3", f.requests[1].Query)
}

func TestStore_MarkChunkPosted_NotFound(t *testing.T) {
	f := &fakeREST{responses: map[string]func(http.ResponseWriter, *http.Request){
		"PATCH /rest/v1/job_chunks": jsonResponse(http.StatusOK, []chunkRow{}),
	}}
	s := newTestStore(t, f)

	err := s.MarkChunkPosted(context.Background(), 5, "123")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DeleteJob(t *testing.T) {
	f := &fakeREST{responses: map[string]func(http.ResponseWriter, *http.Request){
		"DELETE /rest/v1/job_chunks": jsonResponse(http.StatusNoContent, nil),
		"DELETE /rest/v1/jobs":       jsonResponse(http.StatusOK, []jobRow{{ID: 4}}),
	}}
	s := newTestStore(t, f)

	require.NoError(t, s.DeleteJob(context.Background(), 4))
	require.Len(t, f.requests, 2)
	assert.Equal(t, "/rest/v1/job_chunks", f.requests[0].Path, "chunks go first")
	assert.Equal(t, "job_id=eq.4", f.requests[0].Query)
	assert.Equal(t, "/rest/v1/jobs", f.requests[1].Path)
}

func TestStore_Credentials(t *testing.T) {
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeREST{responses: map[string]func(http.ResponseWriter, *http.Request){
		"POST /rest/v1/credentials": jsonResponse(http.StatusCreated, nil),
		"GET /rest/v1/credentials": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("id") != "eq.abc" {
				jsonResponse(http.StatusOK, []credentialRow{})(w, r)
				return
			}
			jsonResponse(http.StatusOK, []credentialRow{{ID: "abc", APIKey: "k", APISecret: "s", AccessToken: "t", AccessTokenSecret: "ts", CreatedAt: created}})(w, r)
		},
	}}
	s := newTestStore(t, f)
	ctx := context.Background()

	creds := store.Credentials{APIKey: "k", APISecret: "s", AccessToken: "t", AccessTokenSecret: "ts"}
	require.NoError(t, s.SaveCredentials(ctx, store.SavedCredentials{ID: "abc", Credentials: creds}))

	rec, err := s.GetCredentials(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, creds, rec.Credentials)
	assert.True(t, created.Equal(rec.CreatedAt))

	_, err = s.GetCredentials(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestError_Message(t *testing.T) {
	err := &Error{StatusCode: 409, Code: "23505", Message: "duplicate key", Details: "Key (id) exists"}
	assert.Equal(t, "supabase: HTTP 409 23505: duplicate key (Key (id) exists)", err.Error())
}

func TestSchema(t *testing.T) {
	for _, table := range []string{tableJobs, tableChunks, tableCredentials} {
		assert.Contains(t, Schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
