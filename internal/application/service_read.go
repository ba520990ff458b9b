package application

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

// GetListings returns the account's current cache, sorted by id.
func (s *Service) GetListings(ctx context.Context, account string) ([]domain.Listing, error) {
	entries, err := s.cache.HGetAll(ctx, currentKey(account))
	if err != nil {
		return nil, err
	}
	listings := make([]domain.Listing, 0, len(entries))
	for _, raw := range entries {
		var listing domain.Listing
		if err := json.Unmarshal([]byte(raw), &listing); err != nil {
			continue
		}
		listings = append(listings, listing)
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].ID < listings[j].ID })
	return listings, nil
}

func (s *Service) GetLimits(ctx context.Context, account string) (domain.AccountLimits, error) {
	return s.limits.Get(ctx, account)
}

// GetInventory reads the account inventory through the rate-limited fetch
// scheduler the inventory client wraps.
func (s *Service) GetInventory(ctx context.Context, account string) (domain.InventorySnapshot, error) {
	return s.inventory.Fetch(ctx, account)
}
