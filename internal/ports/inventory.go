package ports

import (
	"context"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

// InventoryClient reads the secondary inventory API. Implementations are
// expected to throttle themselves; a private or unauthorized inventory is
// reported as domain.ErrForbidden, a full queue as
// domain.ErrRateLimitExceeded.
type InventoryClient interface {
	Fetch(ctx context.Context, account string) (domain.InventorySnapshot, error)
}
