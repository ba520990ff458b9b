package ports

import (
	"context"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

// MarketplaceClient wraps the remote classifieds API. Every call is
// authenticated by an opaque token bound to one account. Batch answers
// are positional: result i belongs to input i.
type MarketplaceClient interface {
	CreateBatch(ctx context.Context, token string, drafts []domain.ListingDraft) ([]domain.BatchResult, error)
	UpdateBatch(ctx context.Context, token string, drafts []domain.ListingDraft) ([]domain.BatchResult, error)
	DeleteActiveBatch(ctx context.Context, token string, ids []string) (int, error)
	DeleteArchivedBatch(ctx context.Context, token string, ids []string) (int, error)
	DeleteAllActive(ctx context.Context, token string) (int, error)
	DeleteAllArchived(ctx context.Context, token string) (int, error)
	ListActivePage(ctx context.Context, token string, skip, limit int) (domain.ListingPage, error)
	ListArchivedPage(ctx context.Context, token string, skip, limit int) (domain.ListingPage, error)
}

// TokenStore resolves the marketplace token for an account. The store
// itself is an external collaborator; only its read contract is consumed
// here (refresh workers need a token to fetch pages).
type TokenStore interface {
	Get(ctx context.Context, account string) (string, error)
}
