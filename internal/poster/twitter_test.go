package poster

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/threadbot/internal/store"
)

func newTestPoster(srv *httptest.Server) *TwitterPoster {
	return NewTwitterPoster(TwitterConfig{
		Credentials:   testCreds,
		APIBaseURL:    srv.URL,
		UploadBaseURL: srv.URL + "/1.1",
	})
}

func TestTwitterPoster_CreatePost(t *testing.T) {
	t.Run("root post", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/2/tweets", r.URL.Path)
			assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
			assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "), "request is OAuth1 signed")

			var req createTweetRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "hello", req.Text)
			assert.Nil(t, req.Reply)
			if assert.NotNil(t, req.Media) {
				assert.Equal(t, []string{"m1"}, req.Media.MediaIDs)
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"data":{"id":"1001","text":"hello"}}`))
		}))
		defer srv.Close()

		res, err := newTestPoster(srv).CreatePost(context.Background(), PostRequest{Text: "hello", MediaIDs: []string{"m1"}})
		require.NoError(t, err)
		assert.Equal(t, "1001", res.PostID)
		assert.Equal(t, "hello", res.Text)
	})

	t.Run("reply post", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"text":"second","reply":{"in_reply_to_tweet_id":"1001"}}`, string(body))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{"id":"1002","text":"second"}}`))
		}))
		defer srv.Close()

		res, err := newTestPoster(srv).CreatePost(context.Background(), PostRequest{Text: "second", InReplyTo: "1001"})
		require.NoError(t, err)
		assert.Equal(t, "1002", res.PostID)
	})

	t.Run("problem response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"title":"Forbidden","detail":"not allowed","type":"about:blank"}`))
		}))
		defer srv.Close()

		_, err := newTestPoster(srv).CreatePost(context.Background(), PostRequest{Text: "x"})
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Contains(t, err.Error(), "Forbidden")
		assert.Contains(t, err.Error(), "not allowed")
		assert.NotErrorIs(t, err, ErrAuth)
	})

	t.Run("unauthorized maps to ErrAuth", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"title":"Unauthorized","detail":"Unauthorized"}`))
		}))
		defer srv.Close()

		_, err := newTestPoster(srv).CreatePost(context.Background(), PostRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrAuth)
	})

	t.Run("missing id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{}}`))
		}))
		defer srv.Close()

		_, err := newTestPoster(srv).CreatePost(context.Background(), PostRequest{Text: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing id")
	})
}

func TestTwitterPoster_UploadMedia(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/1.1/media/upload.json", r.URL.Path)
			assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")

			file, _, err := r.FormFile("media")
			if assert.NoError(t, err) {
				data, _ := io.ReadAll(file)
				assert.Equal(t, "fake-image-data", string(data))
			}

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"media_id":1234567890,"media_id_string":"1234567890"}`))
		}))
		defer srv.Close()

		id, err := newTestPoster(srv).UploadMedia(context.Background(), []byte("fake-image-data"))
		require.NoError(t, err)
		assert.Equal(t, "1234567890", id)
	})

	t.Run("numeric fallback", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"media_id":9999999999}`))
		}))
		defer srv.Close()

		id, err := newTestPoster(srv).UploadMedia(context.Background(), []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, "9999999999", id)
	})

	t.Run("missing media id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		_, err := newTestPoster(srv).UploadMedia(context.Background(), []byte("x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing media_id")
	})

	t.Run("v1 error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors":[{"code":89,"message":"Invalid or expired token."}]}`))
		}))
		defer srv.Close()

		_, err := newTestPoster(srv).UploadMedia(context.Background(), []byte("x"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuth)
		assert.Contains(t, err.Error(), "89")
		assert.Contains(t, err.Error(), "Invalid or expired token")
	})
}

// rewriteTransport redirects requests for hardcoded API hosts to a local
// httptest server.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = strings.TrimPrefix(rt.target, "http://")
	return rt.base.RoundTrip(req)
}

func TestTwitterPoster_ValidateCredentials(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/1.1/account/verify_credentials.json", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id_str":"42","screen_name":"threadbot","name":"Thread Bot"}`))
		}))
		defer srv.Close()

		p := NewTwitterPoster(TwitterConfig{
			Credentials: testCreds,
			HTTPClient:  &http.Client{Transport: rewriteTransport{base: http.DefaultTransport, target: srv.URL}},
		})
		account, err := p.ValidateCredentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "42", account.ID)
		assert.Equal(t, "threadbot", account.ScreenName)
	})

	t.Run("rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors":[{"code":32,"message":"Could not authenticate you."}]}`))
		}))
		defer srv.Close()

		p := NewTwitterPoster(TwitterConfig{
			Credentials: testCreds,
			HTTPClient:  &http.Client{Transport: rewriteTransport{base: http.DefaultTransport, target: srv.URL}},
		})
		_, err := p.ValidateCredentials(context.Background())
		assert.ErrorIs(t, err, ErrAuth)
	})
}

func TestNewTwitterClient(t *testing.T) {
	factory := NewTwitterClient(TwitterConfig{APIBaseURL: "http://example.invalid"})
	client := factory(store.Credentials{APIKey: "a", APISecret: "b", AccessToken: "c", AccessTokenSecret: "d"})
	assert.IsType(t, &TwitterPoster{}, client)
}

// Integration test - requires real credentials. Posts nothing.
func TestTwitterPoster_Integration(t *testing.T) {
	creds := store.Credentials{
		APIKey:            os.Getenv("TWITTER_API_KEY"),
		APISecret:         os.Getenv("TWITTER_API_SECRET"),
		AccessToken:       os.Getenv("TWITTER_ACCESS_TOKEN"),
		AccessTokenSecret: os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
	}
	if !creds.Complete() {
		t.Skip("TWITTER_* credentials not set")
	}

	p := NewTwitterPoster(TwitterConfig{Credentials: creds})
	account, err := p.ValidateCredentials(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, account.ScreenName)
}
