package poster

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"
	"github.com/dghubble/sling"

	"github.com/abdulachik/threadbot/internal/store"
)

const (
	// DefaultAPIBaseURL hosts the v2 post endpoints.
	DefaultAPIBaseURL = "https://api.twitter.com/"

	// DefaultUploadBaseURL hosts the v1.1 media upload endpoint.
	DefaultUploadBaseURL = "https://upload.twitter.com/1.1/"
)

// TwitterPoster talks to X/Twitter with OAuth 1.0a user context.
type TwitterPoster struct {
	api    *sling.Sling
	upload *sling.Sling
	v1     *twitter.Client
}

// TwitterConfig holds configuration for the Twitter poster.
type TwitterConfig struct {
	Credentials store.Credentials

	// APIBaseURL and UploadBaseURL default to the public endpoints.
	APIBaseURL    string
	UploadBaseURL string

	// HTTPClient is the base client wrapped by the OAuth1 signer.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewTwitterPoster creates a new Twitter poster.
func NewTwitterPoster(cfg TwitterConfig) *TwitterPoster {
	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, cfg.HTTPClient)
	}

	creds := cfg.Credentials
	config := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	httpClient := config.Client(ctx, token)

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient.Timeout = timeout

	return &TwitterPoster{
		api:    sling.New().Client(httpClient).Base(withSlash(orDefault(cfg.APIBaseURL, DefaultAPIBaseURL))),
		upload: sling.New().Client(httpClient).Base(withSlash(orDefault(cfg.UploadBaseURL, DefaultUploadBaseURL))),
		v1:     twitter.NewClient(httpClient),
	}
}

// NewTwitterClient adapts NewTwitterPoster to the publisher's client factory.
func NewTwitterClient(base TwitterConfig) func(store.Credentials) Client {
	return func(creds store.Credentials) Client {
		cfg := base
		cfg.Credentials = creds
		return NewTwitterPoster(cfg)
	}
}

type createTweetRequest struct {
	Text  string            `json:"text"`
	Media *createTweetMedia `json:"media,omitempty"`
	Reply *createTweetReply `json:"reply,omitempty"`
}

type createTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type createTweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// v2Problem covers both the problem+json shape and the errors array.
type v2Problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (p v2Problem) message() string {
	var parts []string
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	if p.Detail != "" {
		parts = append(parts, p.Detail)
	}
	for _, e := range p.Errors {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, ": ")
}

// CreatePost publishes a post through the v2 API.
func (t *TwitterPoster) CreatePost(ctx context.Context, req PostRequest) (*PostResult, error) {
	body := createTweetRequest{Text: req.Text}
	if len(req.MediaIDs) > 0 {
		body.Media = &createTweetMedia{MediaIDs: req.MediaIDs}
	}
	if req.InReplyTo != "" {
		body.Reply = &createTweetReply{InReplyToTweetID: req.InReplyTo}
	}

	httpReq, err := t.api.New().Post("2/tweets").BodyJSON(body).Request()
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var out createTweetResponse
	var problem v2Problem
	resp, err := t.api.Do(httpReq.WithContext(ctx), &out, &problem)
	if err != nil && resp == nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: "POST /2/tweets", Message: problem.message()}
	}
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Data.ID == "" {
		return nil, fmt.Errorf("POST /2/tweets: response missing id")
	}

	return &PostResult{PostID: out.Data.ID, Text: out.Data.Text}, nil
}

type mediaUploadResponse struct {
	MediaID       int64  `json:"media_id"`
	MediaIDString string `json:"media_id_string"`
}

// UploadMedia sends the image through the v1.1 simple upload endpoint.
func (t *TwitterPoster) UploadMedia(ctx context.Context, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", "image.png")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := t.upload.New().
		Post("media/upload.json").
		Set("Content-Type", mw.FormDataContentType()).
		Body(&buf).
		Request()
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	var out mediaUploadResponse
	var apiErr twitter.APIError
	resp, err := t.upload.Do(httpReq.WithContext(ctx), &out, &apiErr)
	if err != nil && resp == nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if !apiErr.Empty() {
			msg = apiErr.Error()
		}
		return "", &APIError{StatusCode: resp.StatusCode, Endpoint: "POST /1.1/media/upload.json", Message: msg}
	}
	if err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	switch {
	case out.MediaIDString != "":
		return out.MediaIDString, nil
	case out.MediaID != 0:
		return strconv.FormatInt(out.MediaID, 10), nil
	default:
		return "", fmt.Errorf("media upload: response missing media_id")
	}
}

// ValidateCredentials calls account/verify_credentials.
func (t *TwitterPoster) ValidateCredentials(ctx context.Context) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, resp, err := t.v1.Accounts.VerifyCredentials(&twitter.AccountVerifyParams{
		SkipStatus: twitter.Bool(true),
	})
	if err != nil {
		if resp != nil {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Endpoint:   "GET /1.1/account/verify_credentials.json",
				Message:    err.Error(),
			}
		}
		return nil, fmt.Errorf("verify credentials: %w", err)
	}

	return &Account{ID: user.IDStr, ScreenName: user.ScreenName, Name: user.Name}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func withSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
