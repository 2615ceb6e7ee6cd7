package poster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abdulachik/threadbot/internal/store"
)

// MediaPolicy decides what happens when the image upload fails.
type MediaPolicy string

const (
	// MediaAbort fails the whole publish.
	MediaAbort MediaPolicy = "abort"
	// MediaSkip logs the failure and posts the thread without media.
	MediaSkip MediaPolicy = "skip"
)

// ParseMediaPolicy validates a policy name.
func ParseMediaPolicy(s string) (MediaPolicy, error) {
	switch MediaPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case MediaAbort:
		return MediaAbort, nil
	case MediaSkip:
		return MediaSkip, nil
	default:
		return "", fmt.Errorf("invalid media policy %q (must be 'abort' or 'skip')", s)
	}
}

// ErrEmptyThread is returned when no chunk has any text.
var ErrEmptyThread = errors.New("thread has no non-empty chunks")

// DefaultReplyDelay is the pause between consecutive posts of a thread.
const DefaultReplyDelay = time.Second

// Thread is an ordered list of chunks to publish as a reply chain.
type Thread struct {
	Chunks []string
	Image  []byte

	// PostedIDs holds post ids from an earlier partial run, aligned with
	// Chunks. Entries that are non-empty are not reposted.
	PostedIDs []string

	// OnPosted is called after each chunk is published.
	OnPosted func(ctx context.Context, index int, postID string) error
}

// PublishResult summarizes a published thread.
type PublishResult struct {
	RootID  string
	PostIDs []string
	// MediaSkipped is set when the image failed and MediaSkip applied.
	MediaSkipped bool
}

// PublisherConfig holds configuration for the publisher.
type PublisherConfig struct {
	NewClient   func(store.Credentials) Client
	ReplyDelay  time.Duration
	MediaPolicy MediaPolicy
	Logger      *slog.Logger
}

// Publisher posts a thread as a root post followed by sequential replies.
type Publisher struct {
	newClient   func(store.Credentials) Client
	replyDelay  time.Duration
	mediaPolicy MediaPolicy
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewPublisher creates a new publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	policy := cfg.MediaPolicy
	if policy == "" {
		policy = MediaAbort
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		newClient:   cfg.NewClient,
		replyDelay:  cfg.ReplyDelay,
		mediaPolicy: policy,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// WithMediaPolicy returns a copy of p using the given media policy.
func (p *Publisher) WithMediaPolicy(policy MediaPolicy) *Publisher {
	cp := *p
	cp.mediaPolicy = policy
	return &cp
}

// MediaPolicy reports the policy in effect.
func (p *Publisher) MediaPolicy() MediaPolicy {
	return p.mediaPolicy
}

// Publish posts the first non-empty chunk as a root post, with the image if
// one is given, then each following non-empty chunk as a reply to the post
// before it.
func (p *Publisher) Publish(ctx context.Context, creds store.Credentials, thread Thread) (*PublishResult, error) {
	if !creds.Complete() {
		return nil, fmt.Errorf("%w: incomplete credentials", ErrAuth)
	}

	posted := make([]string, len(thread.Chunks))
	copy(posted, thread.PostedIDs)

	first := -1
	for i, c := range thread.Chunks {
		if strings.TrimSpace(c) != "" {
			first = i
			break
		}
	}
	if first == -1 {
		return nil, ErrEmptyThread
	}

	client := p.newClient(creds)
	result := &PublishResult{}

	var mediaIDs []string
	if len(thread.Image) > 0 && posted[first] == "" {
		mediaID, err := client.UploadMedia(ctx, thread.Image)
		if err != nil {
			if p.mediaPolicy == MediaAbort {
				return nil, fmt.Errorf("%w: %w", ErrMediaUpload, err)
			}
			p.logger.Warn("media upload failed, posting without image", "error", err)
			result.MediaSkipped = true
		} else {
			mediaIDs = []string{mediaID}
		}
	}

	prevID := ""
	for i := first; i < len(thread.Chunks); i++ {
		text := thread.Chunks[i]
		if strings.TrimSpace(text) == "" {
			continue
		}
		if posted[i] != "" {
			prevID = posted[i]
			result.PostIDs = append(result.PostIDs, prevID)
			continue
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		req := PostRequest{Text: text, InReplyTo: prevID}
		if i == first {
			req.MediaIDs = mediaIDs
		} else if p.replyDelay > 0 {
			if err := p.sleep(ctx, p.replyDelay); err != nil {
				return result, err
			}
		}

		res, err := client.CreatePost(ctx, req)
		if err != nil {
			return result, fmt.Errorf("%w: chunk %d: %w", ErrPostCreation, i+1, err)
		}

		prevID = res.PostID
		result.PostIDs = append(result.PostIDs, res.PostID)
		p.logger.Debug("posted chunk", "index", i, "post_id", res.PostID, "reply_to", req.InReplyTo)

		if thread.OnPosted != nil {
			if err := thread.OnPosted(ctx, i, res.PostID); err != nil {
				return result, fmt.Errorf("record progress for chunk %d: %w", i+1, err)
			}
		}
	}

	if len(result.PostIDs) > 0 {
		result.RootID = result.PostIDs[0]
	}
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
