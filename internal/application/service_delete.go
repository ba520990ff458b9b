package application

import (
	"context"
	"sync"

	"github.com/mercator-labs/listing-sync/internal/domain"
	"github.com/mercator-labs/listing-sync/internal/ports"
)

// DeleteListings deletes active listings remotely and evicts them from the
// cache, except ids flagged do-not-delete: those stay cached (they are
// being retained under another lifecycle) but their flag is consumed.
// Flags are one-shot and cleared before the remote call, so they are spent
// regardless of how the delete turns out.
func (s *Service) DeleteListings(ctx context.Context, cred domain.Credential, ids []string) (DeleteResult, error) {
	result := DeleteResult{IsActive: true}
	if len(ids) == 0 {
		return result, nil
	}

	members, err := s.cache.SMembers(ctx, keepKey(cred.Account))
	if err != nil {
		return DeleteResult{}, err
	}
	flagged := make(map[string]struct{}, len(members))
	for _, m := range members {
		flagged[m] = struct{}{}
	}
	var protected, unprotected []string
	for _, id := range ids {
		if _, ok := flagged[id]; ok {
			protected = append(protected, id)
		} else {
			unprotected = append(unprotected, id)
		}
	}
	if err := s.cache.SRem(ctx, keepKey(cred.Account), ids...); err != nil {
		return DeleteResult{}, err
	}

	limits, err := s.limits.Get(ctx, cred.Account)
	if err != nil {
		return DeleteResult{}, err
	}

	deleted, err := s.market.DeleteActiveBatch(ctx, cred.Token, ids)
	if err != nil {
		return DeleteResult{}, err
	}

	snapshots, err := s.openSnapshots(ctx, cred.Account)
	if err != nil {
		return DeleteResult{}, err
	}
	err = s.cache.Tx(ctx, func(b ports.Batch) {
		for _, key := range snapshots {
			b.HDel(key, ids...)
		}
		b.HDel(currentKey(cred.Account), unprotected...)
		if deleted > 0 {
			used := limits.Used - deleted
			if used < 0 {
				used = 0
			}
			s.limits.SetUsedInBatch(b, cred.Account, used)
		}
	})
	if err != nil {
		return DeleteResult{}, err
	}

	result.Deleted = deleted
	result.Removed = unprotected
	result.Retained = protected
	s.publish(ctx, EventDeleted, deletedEvent{Account: cred.Account, IDs: ids, Deleted: deleted, IsActive: true}, cred.Account)
	return result, nil
}

// DeleteArchivedListings is the archived variant: no do-not-delete checks
// and no usage bookkeeping, since archived listings do not count against
// the cap.
func (s *Service) DeleteArchivedListings(ctx context.Context, cred domain.Credential, ids []string) (DeleteResult, error) {
	result := DeleteResult{IsActive: false}
	if len(ids) == 0 {
		return result, nil
	}

	deleted, err := s.market.DeleteArchivedBatch(ctx, cred.Token, ids)
	if err != nil {
		return DeleteResult{}, err
	}

	snapshots, err := s.openSnapshots(ctx, cred.Account)
	if err != nil {
		return DeleteResult{}, err
	}
	err = s.cache.Tx(ctx, func(b ports.Batch) {
		for _, key := range snapshots {
			b.HDel(key, ids...)
		}
		b.HDel(currentKey(cred.Account), ids...)
	})
	if err != nil {
		return DeleteResult{}, err
	}

	result.Deleted = deleted
	result.Removed = ids
	s.publish(ctx, EventDeleted, deletedEvent{Account: cred.Account, IDs: ids, Deleted: deleted, IsActive: false}, cred.Account)
	return result, nil
}

// DeleteAllListings is a hard reset: both remote delete-all calls run
// concurrently, the cache is cleared outright, and usage goes to zero
// unconditionally. The next full refresh re-derives the true figure from
// the marketplace's reported totals.
func (s *Service) DeleteAllListings(ctx context.Context, cred domain.Credential) (int, error) {
	var (
		wg            sync.WaitGroup
		activeCount   int
		archivedCount int
		activeErr     error
		archivedErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		activeCount, activeErr = s.market.DeleteAllActive(ctx, cred.Token)
	}()
	go func() {
		defer wg.Done()
		archivedCount, archivedErr = s.market.DeleteAllArchived(ctx, cred.Token)
	}()
	wg.Wait()
	if activeErr != nil {
		return 0, activeErr
	}
	if archivedErr != nil {
		return 0, archivedErr
	}

	err := s.cache.Tx(ctx, func(b ports.Batch) {
		b.Del(currentKey(cred.Account))
		s.limits.SetUsedInBatch(b, cred.Account, 0)
	})
	if err != nil {
		return 0, err
	}

	total := activeCount + archivedCount
	s.publish(ctx, EventDeletedAll, deletedAllEvent{Account: cred.Account, Deleted: total}, cred.Account)
	return total, nil
}

// MarkDoNotDelete sets one-shot retention flags; the next DeleteListings
// call covering these ids consumes them.
func (s *Service) MarkDoNotDelete(ctx context.Context, account string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.cache.SAdd(ctx, keepKey(account), ids...)
}
