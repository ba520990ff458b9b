package application

import (
	"context"
	"encoding/json"

	"github.com/mercator-labs/listing-sync/internal/domain"
	"github.com/mercator-labs/listing-sync/internal/ports"
)

// UpdateListings submits updates for desired listings that carry a known
// marketplace id. The marketplace's echo is shallow-merged over the cached
// entry (update fields win) and the merged listing is written back to the
// current cache and every open snapshot.
func (s *Service) UpdateListings(ctx context.Context, cred domain.Credential, desired []domain.DesiredListing) (UpdateResult, error) {
	result := UpdateResult{
		Updated: map[string]domain.Listing{},
		Failed:  map[string]domain.ErrorKind{},
	}

	withID := make([]domain.DesiredListing, 0, len(desired))
	for _, d := range desired {
		if d.ID != "" {
			withID = append(withID, d)
		}
	}
	if len(withID) == 0 {
		return result, nil
	}

	drafts := make([]domain.ListingDraft, len(withID))
	for i, d := range withID {
		draft := d.Draft
		draft.ID = d.ID
		drafts[i] = draft
	}
	answers, err := s.market.UpdateBatch(ctx, cred.Token, drafts)
	if err != nil {
		return UpdateResult{}, err
	}

	ids := make([]string, 0, len(withID))
	for i, ans := range answers {
		if ans.Listing != nil {
			ids = append(ids, withID[i].ID)
		}
	}
	current, err := s.cache.HMGet(ctx, currentKey(cred.Account), ids...)
	if err != nil {
		return UpdateResult{}, err
	}

	fields := make(map[string]string)
	for i, ans := range answers {
		hash := withID[i].Hash
		if ans.Listing == nil {
			kind, _ := domain.ClassifyListingError(ans.Error)
			result.Failed[hash] = kind
			continue
		}
		merged, raw, mergeErr := mergeListing(current[withID[i].ID], *ans.Listing)
		if mergeErr != nil {
			return UpdateResult{}, mergeErr
		}
		fields[merged.ID] = raw
		result.Updated[hash] = merged
	}

	if len(fields) > 0 {
		snapshots, err := s.openSnapshots(ctx, cred.Account)
		if err != nil {
			return UpdateResult{}, err
		}
		err = s.cache.Tx(ctx, func(b ports.Batch) {
			b.HSet(currentKey(cred.Account), fields)
			for _, key := range snapshots {
				b.HSet(key, fields)
				b.Expire(key, s.cfg.SnapshotTTL)
			}
		})
		if err != nil {
			return UpdateResult{}, err
		}
	}

	if len(result.Updated) > 0 {
		s.publish(ctx, EventUpdated, listingsEvent{Account: cred.Account, Listings: result.Updated}, cred.Account)
	}
	if len(result.Failed) > 0 {
		s.publish(ctx, EventFailed, failuresEvent{Account: cred.Account, Failures: result.Failed}, cred.Account)
	}
	return result, nil
}

// mergeListing overlays the update's top-level fields on the cached entry.
// Fields the update did not carry keep their cached values; a missing
// cached entry degrades to the update alone.
func mergeListing(currentRaw string, update domain.Listing) (domain.Listing, string, error) {
	updateRaw, err := json.Marshal(update)
	if err != nil {
		return domain.Listing{}, "", err
	}
	if currentRaw == "" {
		return update, string(updateRaw), nil
	}

	base := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(currentRaw), &base); err != nil {
		return update, string(updateRaw), nil
	}
	overlay := map[string]json.RawMessage{}
	if err := json.Unmarshal(updateRaw, &overlay); err != nil {
		return domain.Listing{}, "", err
	}
	for k, v := range overlay {
		base[k] = v
	}

	mergedRaw, err := json.Marshal(base)
	if err != nil {
		return domain.Listing{}, "", err
	}
	var merged domain.Listing
	if err := json.Unmarshal(mergedRaw, &merged); err != nil {
		return domain.Listing{}, "", err
	}
	return merged, string(mergedRaw), nil
}
