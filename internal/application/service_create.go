package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mercator-labs/listing-sync/internal/domain"
	"github.com/mercator-labs/listing-sync/internal/ports"
)

// CreateListings submits desired listings to the marketplace and commits
// the echoes into the current cache and every open refresh snapshot.
//
// The marketplace answers positionally: result i belongs to desired[i].
// It can also silently coalesce two inputs into one listing id; when that
// happens the later input wins and the earlier one is demoted to a
// DuplicateListing failure.
func (s *Service) CreateListings(ctx context.Context, cred domain.Credential, desired []domain.DesiredListing) (CreateResult, error) {
	result := CreateResult{
		Created: map[string]domain.Listing{},
		Failed:  map[string]domain.ErrorKind{},
	}
	if len(desired) == 0 {
		return result, nil
	}

	drafts := make([]domain.ListingDraft, len(desired))
	for i, d := range desired {
		drafts[i] = d.Draft
	}
	answers, err := s.market.CreateBatch(ctx, cred.Token, drafts)
	if err != nil {
		return CreateResult{}, err
	}

	idToHash := make(map[string]string)
	capHit := false
	capSeen := 0
	for i, ans := range answers {
		hash := desired[i].Hash
		if ans.Listing != nil {
			listing := *ans.Listing
			if prev, ok := idToHash[listing.ID]; ok && prev != hash {
				delete(result.Created, prev)
				result.Failed[prev] = domain.ErrorDuplicateListing
			}
			idToHash[listing.ID] = hash
			result.Created[hash] = listing
			continue
		}
		kind, capVal := domain.ClassifyListingError(ans.Error)
		result.Failed[hash] = kind
		if kind == domain.ErrorCapExceeded {
			capHit = true
			if capVal > 0 {
				capSeen = capVal
			}
		}
	}

	if len(result.Created) > 0 {
		if err := s.commitCreated(ctx, cred.Account, result.Created); err != nil {
			return CreateResult{}, err
		}
	}

	if capHit {
		if capSeen > 0 {
			if err := s.limits.SetCap(ctx, cred.Account, capSeen); err != nil {
				s.logger.WarnContext(ctx, "cap update failed",
					"module", "application",
					"layer", "service",
					"operation", "create_listings",
					"outcome", "failure",
					"account", cred.Account,
					"error", err,
				)
			}
		}
		go s.refreshLimits(cred)
	}

	if len(result.Created) > 0 {
		s.publish(ctx, EventCreated, listingsEvent{Account: cred.Account, Listings: result.Created}, cred.Account)
	}
	if len(result.Failed) > 0 {
		s.publish(ctx, EventFailed, failuresEvent{Account: cred.Account, Failures: result.Failed}, cred.Account)
	}
	return result, nil
}

// commitCreated writes created listings into the cache and adds the usage
// delta in the same atomic batch. Only ids that were not already cached as
// non-archived entries count against the cap.
func (s *Service) commitCreated(ctx context.Context, account string, created map[string]domain.Listing) error {
	ids := make([]string, 0, len(created))
	fields := make(map[string]string, len(created))
	for _, listing := range created {
		raw, err := json.Marshal(listing)
		if err != nil {
			return err
		}
		ids = append(ids, listing.ID)
		fields[listing.ID] = string(raw)
	}

	existing, err := s.cache.HMGet(ctx, currentKey(account), ids...)
	if err != nil {
		return err
	}
	newCount := 0
	for _, id := range ids {
		raw, ok := existing[id]
		if !ok {
			newCount++
			continue
		}
		var prior domain.Listing
		if json.Unmarshal([]byte(raw), &prior) == nil && prior.Archived {
			newCount++
		}
	}

	snapshots, err := s.openSnapshots(ctx, account)
	if err != nil {
		return err
	}
	return s.cache.Tx(ctx, func(b ports.Batch) {
		b.HSet(currentKey(account), fields)
		if newCount > 0 {
			s.limits.AddUsedInBatch(b, account, newCount)
		}
		for _, key := range snapshots {
			b.HSet(key, fields)
			b.Expire(key, s.cfg.SnapshotTTL)
		}
	})
}

// refreshLimits recomputes usage out of band from the marketplace's
// reported total. Triggered when a cap error surfaces, so the stored
// figure converges even if local bookkeeping drifted.
func (s *Service) refreshLimits(cred domain.Credential) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	page, err := s.market.ListActivePage(ctx, cred.Token, 0, 1)
	if err != nil {
		s.logger.WarnContext(ctx, "limits refresh failed",
			"module", "application",
			"layer", "service",
			"operation", "refresh_limits",
			"outcome", "failure",
			"account", cred.Account,
			"error", err,
		)
		return
	}
	_ = s.cache.Tx(ctx, func(b ports.Batch) {
		s.limits.SetUsedInBatch(b, cred.Account, page.Total)
	})
}
