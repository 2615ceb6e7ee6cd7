package poster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the platform rejected the credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrMediaUpload means the image could not be uploaded.
	ErrMediaUpload = errors.New("media upload failed")

	// ErrPostCreation means a post in the thread could not be created.
	ErrPostCreation = errors.New("post creation failed")
)

// PostRequest describes a single post.
type PostRequest struct {
	Text      string
	MediaIDs  []string
	InReplyTo string
}

// PostResult represents the result of a post.
type PostResult struct {
	PostID string
	Text   string
}

// Account is the identity behind a credential set.
type Account struct {
	ID         string
	ScreenName string
	Name       string
}

// Client is the platform API surface the publisher needs.
type Client interface {
	// UploadMedia uploads raw image bytes and returns a media id.
	UploadMedia(ctx context.Context, data []byte) (string, error)

	// CreatePost publishes one post, optionally as a reply.
	CreatePost(ctx context.Context, req PostRequest) (*PostResult, error)

	// ValidateCredentials checks if the credentials are valid.
	ValidateCredentials(ctx context.Context) (*Account, error)
}

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match ErrAuth on 401 responses. A 403 usually means
// the post itself was refused (duplicate, permissions) and is left as is.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrAuth
	}
	return nil
}
