package ports

import (
	"context"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

// LimitStore tracks per-account listing usage against the cap. The
// In-batch variants chain into the engine's own atomic cache transaction
// so a usage delta and the cache write it accounts for commit together.
type LimitStore interface {
	Get(ctx context.Context, account string) (domain.AccountLimits, error)
	SetCap(ctx context.Context, account string, cap int) error
	AddUsedInBatch(b Batch, account string, delta int)
	SetUsedInBatch(b Batch, account string, used int)
}
