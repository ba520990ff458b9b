package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mercator-labs/listing-sync/internal/domain"
	"github.com/mercator-labs/listing-sync/internal/ports"
)

// Engine is the slice of the reconciliation engine the worker drives.
type Engine interface {
	HandlePage(ctx context.Context, job domain.FetchJob, page domain.ListingPage) error
	HandleRefreshDone(ctx context.Context, account string, start int64) error
}

type flowPipeline interface {
	promoteDelayed(ctx context.Context) error
	pop(ctx context.Context) (domain.FetchJob, bool, error)
	requeue(ctx context.Context, job domain.FetchJob, delay time.Duration) error
	completeChild(ctx context.Context, job domain.FetchJob) error
}

// Worker polls the pipeline and executes refresh jobs: page jobs fetch
// their marketplace page and hand it to the engine; done jobs run the
// completion swap. Page failures retry with a delay a bounded number of
// times. A page that exhausts its retries is abandoned WITHOUT completing
// the flow's join: the done job must never run for an epoch whose pages
// failed, so the epoch stalls and the snapshot and registration TTLs
// reclaim it.
type Worker struct {
	logger      *slog.Logger
	pipeline    flowPipeline
	engine      Engine
	market      ports.MarketplaceClient
	tokens      ports.TokenStore
	interval    time.Duration
	retryDelay  time.Duration
	maxAttempts int
}

func NewWorker(logger *slog.Logger, pipeline flowPipeline, engine Engine, market ports.MarketplaceClient, tokens ports.TokenStore, interval, retryDelay time.Duration, maxAttempts int) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	if retryDelay <= 0 {
		retryDelay = 10 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		logger:      logger,
		pipeline:    pipeline,
		engine:      engine,
		market:      market,
		tokens:      tokens,
		interval:    interval,
		retryDelay:  retryDelay,
		maxAttempts: maxAttempts,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.processOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "job iteration failed",
				"module", "jobs.worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) error {
	if err := w.pipeline.promoteDelayed(ctx); err != nil {
		return err
	}
	for {
		job, ok, err := w.pipeline.pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		w.dispatch(ctx, job)
	}
}

func (w *Worker) dispatch(ctx context.Context, job domain.FetchJob) {
	var err error
	switch job.Kind {
	case domain.JobDone:
		err = w.engine.HandleRefreshDone(ctx, job.Account, job.Start)
	case domain.JobActive, domain.JobArchived:
		err = w.handlePage(ctx, job)
	default:
		w.logger.WarnContext(ctx, "unknown job kind dropped",
			"module", "jobs.worker",
			"layer", "adapter",
			"operation", "dispatch",
			"outcome", "failure",
			"kind", string(job.Kind),
		)
		return
	}

	if err != nil {
		if job.Attempt+1 < w.maxAttempts {
			job.Attempt++
			if requeueErr := w.pipeline.requeue(ctx, job, w.retryDelay); requeueErr == nil {
				return
			}
		}
		// The join stays blocked: a swap over a missing or partial snapshot
		// would destroy a valid mirror. TTL expiry reclaims the epoch.
		w.logger.ErrorContext(ctx, "job abandoned",
			"module", "jobs.worker",
			"layer", "adapter",
			"operation", "dispatch",
			"outcome", "failure",
			"account", job.Account,
			"kind", string(job.Kind),
			"attempt", job.Attempt,
			"error", err,
		)
		return
	}

	if job.Kind != domain.JobDone {
		if completeErr := w.pipeline.completeChild(ctx, job); completeErr != nil {
			w.logger.ErrorContext(ctx, "flow join update failed",
				"module", "jobs.worker",
				"layer", "adapter",
				"operation", "complete_child",
				"outcome", "failure",
				"account", job.Account,
				"error", completeErr,
			)
		}
	}
}

func (w *Worker) handlePage(ctx context.Context, job domain.FetchJob) error {
	token, err := w.tokens.Get(ctx, job.Account)
	if err != nil {
		return err
	}
	var page domain.ListingPage
	if job.Kind == domain.JobActive {
		page, err = w.market.ListActivePage(ctx, token, job.Skip, job.Limit)
	} else {
		page, err = w.market.ListArchivedPage(ctx, token, job.Skip, job.Limit)
	}
	if err != nil {
		return err
	}
	return w.engine.HandlePage(ctx, job, page)
}
