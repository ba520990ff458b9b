package application

import (
	"context"
	"encoding/json"

	"github.com/mercator-labs/listing-sync/internal/domain"
	"github.com/mercator-labs/listing-sync/internal/ports"
)

// RefreshListings starts a full refresh epoch for the account and returns
// its start timestamp. The pipeline runs the done job only after the
// active and archived branches (and every continuation page they spawn)
// completed; that join is the sole completion signal.
func (s *Service) RefreshListings(ctx context.Context, account string) (int64, error) {
	start := s.nowFn().UnixMilli()
	parent := domain.FetchJob{Account: account, Kind: domain.JobDone, Start: start}
	children := []domain.FetchJob{
		{Account: account, Kind: domain.JobActive, Start: start, Skip: 0, Limit: s.cfg.PageLimit},
		{Account: account, Kind: domain.JobArchived, Start: start, Skip: 0, Limit: s.cfg.PageLimit},
	}
	if err := s.pipeline.EnqueueFlow(ctx, parent, children); err != nil {
		return 0, err
	}
	return start, nil
}

// HandlePage folds one fetched page into the refresh epoch's snapshot.
//
// The page's listings also fan out to every other open snapshot for the
// account, so a listing surfacing during a concurrent epoch is not lost
// when that epoch later overwrites the current cache. Page order does not
// matter: snapshot accumulation is a keyed overwrite.
func (s *Service) HandlePage(ctx context.Context, job domain.FetchJob, page domain.ListingPage) error {
	snapKey := snapshotKey(job.Account, job.Start)

	fields := make(map[string]string, len(page.Listings))
	for _, listing := range page.Listings {
		raw, err := json.Marshal(listing)
		if err != nil {
			return err
		}
		fields[listing.ID] = string(raw)
	}

	var siblings []string
	if len(fields) > 0 {
		open, err := s.openSnapshots(ctx, job.Account)
		if err != nil {
			return err
		}
		siblings = open
	}

	if job.Kind == domain.JobActive || len(fields) > 0 {
		err := s.cache.Tx(ctx, func(b ports.Batch) {
			if job.Kind == domain.JobActive {
				// The marketplace reports total-matching-count on every
				// page, so this is an always-current usage figure.
				s.limits.SetUsedInBatch(b, job.Account, page.Total)
			}
			if len(fields) > 0 {
				b.HSet(snapKey, fields)
				b.Expire(snapKey, s.cfg.SnapshotTTL)
				for _, key := range siblings {
					if key == snapKey {
						continue
					}
					// The sibling may have expired since the scan; writing
					// it back without a fresh TTL would leave it stranded.
					b.HSet(key, fields)
					b.Expire(key, s.cfg.SnapshotTTL)
				}
			}
		})
		if err != nil {
			return err
		}
	}

	if job.Skip+job.Limit < page.Total {
		next := job
		next.Skip = job.Skip + job.Limit
		next.Attempt = 0
		return s.pipeline.EnqueueChild(ctx, next, 0)
	}
	return nil
}

// HandleRefreshDone swaps the epoch's snapshot into the current cache.
// This is the single atomic swap point: readers never observe a partially
// refreshed cache. The swap itself reports whether the snapshot still
// existed, so a snapshot that expired just before this ran falls through
// to the empty-refresh clear instead of publishing the stale cache.
func (s *Service) HandleRefreshDone(ctx context.Context, account string, start int64) error {
	snapKey := snapshotKey(account, start)
	curKey := currentKey(account)

	swapped, err := s.cache.Swap(ctx, snapKey, curKey)
	if err != nil {
		return err
	}
	if !swapped {
		// No page wrote anything: the account has no listings to mirror.
		err = s.cache.Del(ctx, curKey)
	}
	if err != nil {
		return err
	}

	count, err := s.cache.HLen(ctx, curKey)
	if err != nil {
		count = 0
	}
	s.publish(ctx, EventRefreshed, refreshedEvent{Account: account, Epoch: start, Count: count}, account)
	return nil
}
