// Package poller publishes scheduled jobs once their time has come.
package poller

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/abdulachik/threadbot/internal/poster"
	"github.com/abdulachik/threadbot/internal/store"
)

// DefaultSchedule polls once a minute.
const DefaultSchedule = "@every 1m"

// bookkeepingTimeout bounds store writes that must outlive a canceled poll.
const bookkeepingTimeout = 10 * time.Second

var errNoChunks = errors.New("job has no chunks")

// Config holds poller configuration.
type Config struct {
	Store     store.JobStore
	Publisher *poster.Publisher
	// Schedule is a cron spec; DefaultSchedule when empty.
	Schedule string
	// Resume continues a partly published job after its last posted chunk
	// instead of reposting the whole thread.
	Resume bool
	Logger *slog.Logger
	Health *Health
	Now    func() time.Time
}

// Poller scans for due jobs and publishes them one at a time.
type Poller struct {
	store     store.JobStore
	publisher *poster.Publisher
	schedule  string
	resume    bool
	logger    *slog.Logger
	health    *Health
	now       func() time.Time
}

// TickResult counts what a single poll cycle did.
type TickResult struct {
	Due       int
	Published int
	Failed    int
}

// New creates a new poller.
func New(cfg Config) *Poller {
	p := &Poller{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		schedule:  cfg.Schedule,
		resume:    cfg.Resume,
		logger:    cfg.Logger,
		health:    cfg.Health,
		now:       cfg.Now,
	}
	if p.schedule == "" {
		p.schedule = DefaultSchedule
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.health == nil {
		p.health = NewHealth()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Health returns the health tracker.
func (p *Poller) Health() *Health {
	return p.health
}

// Run polls immediately, then on every cron tick until ctx is canceled.
// Ticks never overlap: a tick that is still running causes the next to be skipped.
func (p *Poller) Run(ctx context.Context) error {
	logger := cronLogger{p.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(p.schedule, func() { p.Tick(ctx) }); err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", p.schedule, err)
	}

	p.logger.Info("starting poller", "schedule", p.schedule, "resume", p.resume, "media_policy", p.publisher.MediaPolicy())
	p.Tick(ctx)

	c.Start()
	<-ctx.Done()
	p.logger.Info("poller shutting down")
	<-c.Stop().Done()

	return ctx.Err()
}

// Tick runs one poll cycle: every job scheduled at or before now is
// published in order, and deleted once the whole thread is out.
func (p *Poller) Tick(ctx context.Context) TickResult {
	var result TickResult
	defer func() { p.health.MarkTick(p.now()) }()

	jobs, err := p.store.ListDueJobs(ctx, p.now())
	if err != nil {
		p.health.SetUnhealthy(ComponentStore, err)
		p.logger.Error("failed to query due jobs", "error", err)
		return result
	}
	p.health.SetHealthy(ComponentStore, "queried due jobs")

	result.Due = len(jobs)
	if result.Due == 0 {
		p.logger.Debug("no due jobs")
		return result
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}

		if err := p.processJob(ctx, job); err != nil {
			result.Failed++
			p.health.SetUnhealthy(ComponentPublish, err)
			p.logger.Error("failed to publish job", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)

			recCtx, cancel := bookkeeping(ctx)
			recErr := p.store.RecordJobFailure(recCtx, job.ID, err.Error())
			cancel()
			if recErr != nil {
				p.logger.Warn("failed to record job failure", "job_id", job.ID, "error", recErr)
			}
			continue
		}

		result.Published++
		p.health.SetHealthy(ComponentPublish, fmt.Sprintf("published job %d", job.ID))
	}

	p.logger.Info("poll cycle complete", "due", result.Due, "published", result.Published, "failed", result.Failed)
	return result
}

func (p *Poller) processJob(ctx context.Context, job store.Job) error {
	chunks, err := p.store.ListChunks(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return errNoChunks
	}

	if err := p.store.SetJobStatus(ctx, job.ID, store.JobStatusInProgress); err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}

	image, err := p.decodeImage(job)
	if err != nil {
		return err
	}

	thread := poster.Thread{
		Chunks: make([]string, len(chunks)),
		Image:  image,
	}
	for i, c := range chunks {
		thread.Chunks[i] = c.Content
	}

	if p.resume {
		thread.PostedIDs = make([]string, len(chunks))
		for i, c := range chunks {
			thread.PostedIDs[i] = c.PostID
		}
		// The post exists once CreatePost returns, so its id is saved even
		// when shutdown cancels ctx in between.
		thread.OnPosted = func(ctx context.Context, index int, postID string) error {
			markCtx, cancel := bookkeeping(ctx)
			defer cancel()
			return p.store.MarkChunkPosted(markCtx, chunks[index].ID, postID)
		}
	}

	result, err := p.publisher.Publish(ctx, job.Credentials, thread)
	if err != nil {
		return err
	}

	delCtx, cancel := bookkeeping(ctx)
	defer cancel()
	if err := p.store.DeleteJob(delCtx, job.ID); err != nil {
		return fmt.Errorf("delete published job: %w", err)
	}

	p.logger.Info("published job",
		"job_id", job.ID,
		"owner_id", job.OwnerID,
		"root_id", result.RootID,
		"posts", len(result.PostIDs),
		"media_skipped", result.MediaSkipped,
	)
	return nil
}

func bookkeeping(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

// decodeImage treats a corrupt payload like a failed upload.
func (p *Poller) decodeImage(job store.Job) ([]byte, error) {
	if job.ImageData == "" {
		return nil, nil
	}
	image, err := base64.StdEncoding.DecodeString(job.ImageData)
	if err == nil {
		return image, nil
	}
	if p.publisher.MediaPolicy() == poster.MediaAbort {
		return nil, fmt.Errorf("%w: decode image: %w", poster.ErrMediaUpload, err)
	}
	p.logger.Warn("failed to decode image, posting without it", "job_id", job.ID, "error", err)
	return nil, nil
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
