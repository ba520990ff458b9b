package ports

import (
	"context"
	"time"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

// JobPipeline is the durable queue capability: idempotent enqueue by
// derived job identity, delayed execution, and parent/child flows where
// the parent runs only after every child completed.
type JobPipeline interface {
	// EnqueueFlow registers a parent job gated on the given children. A
	// duplicate parent identity makes the whole call a no-op.
	EnqueueFlow(ctx context.Context, parent domain.FetchJob, children []domain.FetchJob) error
	// EnqueueChild adds one more child to the flow the job belongs to
	// (derived from its account and start). Duplicate identities are
	// dropped without unbalancing the flow's join.
	EnqueueChild(ctx context.Context, job domain.FetchJob, delay time.Duration) error
}
