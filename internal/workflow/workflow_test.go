package workflow

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/threadbot/internal/db/dbtest"
	"github.com/abdulachik/threadbot/internal/poster"
	"github.com/abdulachik/threadbot/internal/store"
)

var testCreds = store.Credentials{
	APIKey:            "key",
	APISecret:         "secret",
	AccessToken:       "token",
	AccessTokenSecret: "token-secret",
}

type fakeClient struct {
	posts     []poster.PostRequest
	uploadErr error
}

func (f *fakeClient) UploadMedia(ctx context.Context, data []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "media-1", nil
}

func (f *fakeClient) CreatePost(ctx context.Context, req poster.PostRequest) (*poster.PostResult, error) {
	f.posts = append(f.posts, req)
	return &poster.PostResult{PostID: "p" + req.Text}, nil
}

func (f *fakeClient) ValidateCredentials(ctx context.Context) (*poster.Account, error) {
	return &poster.Account{ID: "1"}, nil
}

// countingStore tracks writes so tests can assert none happened.
type countingStore struct {
	store.Store
	creates int
}

func (c *countingStore) CreateJob(ctx context.Context, job store.NewJob) (int64, error) {
	c.creates++
	return c.Store.CreateJob(ctx, job)
}

func newTestService(t *testing.T, client *fakeClient) (*Service, *countingStore) {
	t.Helper()
	cs := &countingStore{Store: dbtest.NewStore(t)}
	svc := New(Config{
		Store: cs,
		Publisher: poster.NewPublisher(poster.PublisherConfig{
			NewClient:   func(store.Credentials) poster.Client { return client },
			MediaPolicy: poster.MediaAbort,
		}),
		NewID: func() string { return "cred-1" },
	})
	return svc, cs
}

func TestService_Send(t *testing.T) {
	t.Run("publishes thread", func(t *testing.T) {
		client := &fakeClient{}
		svc, _ := newTestService(t, client)

		result, err := svc.Send(context.Background(), SendRequest{Credentials: testCreds, Chunks: []string{"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t, "pa", result.RootID)
		require.Len(t, client.posts, 2)
		assert.Equal(t, "pa", client.posts[1].InReplyTo)
	})

	t.Run("requires credentials", func(t *testing.T) {
		client := &fakeClient{}
		svc, _ := newTestService(t, client)

		_, err := svc.Send(context.Background(), SendRequest{Credentials: store.Credentials{APIKey: "k"}, Chunks: []string{"a"}})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Empty(t, client.posts)
	})

	t.Run("requires content", func(t *testing.T) {
		client := &fakeClient{}
		svc, _ := newTestService(t, client)

		_, err := svc.Send(context.Background(), SendRequest{Credentials: testCreds, Chunks: []string{"", " "}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("media failure aborts", func(t *testing.T) {
		client := &fakeClient{uploadErr: errors.New("unsupported")}
		svc, _ := newTestService(t, client)

		_, err := svc.Send(context.Background(), SendRequest{Credentials: testCreds, Chunks: []string{"a"}, Image: []byte("png")})
		assert.ErrorIs(t, err, poster.ErrMediaUpload)
		assert.Empty(t, client.posts)
	})
}

func TestService_Schedule(t *testing.T) {
	at := time.Date(2026, 6, 1, 18, 0, 0, 0, time.FixedZone("CET", 3600))

	t.Run("stores job and chunks", func(t *testing.T) {
		svc, cs := newTestService(t, &fakeClient{})
		ctx := context.Background()

		id, err := svc.Schedule(ctx, ScheduleRequest{
			OwnerID:     " owner ",
			Credentials: testCreds,
			Chunks:      []string{"a", "", "c"},
			Image:       []byte("png"),
			ScheduledAt: at,
		})
		require.NoError(t, err)

		job, err := cs.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "owner", job.OwnerID)
		assert.True(t, at.Equal(job.ScheduledAt))
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), job.ImageData)

		chunks, err := svc.JobChunks(ctx, id)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, "c", chunks[2].Content)
	})

	t.Run("empty content rejected before any write", func(t *testing.T) {
		svc, cs := newTestService(t, &fakeClient{})

		_, err := svc.Schedule(context.Background(), ScheduleRequest{
			Credentials: testCreds,
			Chunks:      []string{" ", "\n"},
			ScheduledAt: at,
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Zero(t, cs.creates)
	})

	t.Run("missing schedule time", func(t *testing.T) {
		svc, cs := newTestService(t, &fakeClient{})

		_, err := svc.Schedule(context.Background(), ScheduleRequest{Credentials: testCreds, Chunks: []string{"a"}})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Zero(t, cs.creates)
	})

	t.Run("too many chunks", func(t *testing.T) {
		svc, cs := newTestService(t, &fakeClient{})

		chunks := make([]string, MaxChunks+1)
		for i := range chunks {
			chunks[i] = "x"
		}
		_, err := svc.Schedule(context.Background(), ScheduleRequest{Credentials: testCreds, Chunks: chunks, ScheduledAt: at})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Zero(t, cs.creates)
	})
}

func TestService_Jobs(t *testing.T) {
	svc, _ := newTestService(t, &fakeClient{})
	ctx := context.Background()

	id, err := svc.Schedule(ctx, ScheduleRequest{OwnerID: "o", Credentials: testCreds, Chunks: []string{"a"}, ScheduledAt: time.Now()})
	require.NoError(t, err)

	jobs, err := svc.ListJobs(ctx, "o")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)

	_, err = svc.ListJobs(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, svc.DeleteJob(ctx, id))
	jobs, err = svc.ListJobs(ctx, "o")
	require.NoError(t, err)
	assert.Empty(t, jobs)

	chunks, err := svc.JobChunks(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	assert.ErrorIs(t, svc.DeleteJob(ctx, id), store.ErrNotFound)
}

func TestService_Credentials(t *testing.T) {
	svc, _ := newTestService(t, &fakeClient{})
	ctx := context.Background()

	id, err := svc.SaveCredentials(ctx, testCreds)
	require.NoError(t, err)
	assert.Equal(t, "cred-1", id)

	creds, err := svc.LoadCredentials(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, testCreds, creds)

	_, err = svc.LoadCredentials(ctx, "unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.LoadCredentials(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SaveCredentials(ctx, store.Credentials{APIKey: "only"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNew_DefaultID(t *testing.T) {
	svc := New(Config{Store: dbtest.NewStore(t)})
	id, err := svc.SaveCredentials(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Len(t, id, 36, "uuid string")
}
