// Package jobs implements the durable job pipeline on Redis: idempotent
// registration by derived job identity, delayed execution via a sorted
// set, and parent/child flows joined by a pending-children counter.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

const (
	readyKey   = "jobs:listings:ready"
	delayedKey = "jobs:listings:delayed"
)

func jobID(job domain.FetchJob) string {
	if job.Kind == domain.JobDone {
		return fmt.Sprintf("%s:done:%d", job.Account, job.Start)
	}
	return fmt.Sprintf("%s:%s:%d:%d:%d", job.Account, job.Kind, job.Start, job.Skip, job.Limit)
}

func markerKey(id string) string {
	return "jobs:listings:id:" + id
}

func pendingKey(account string, start int64) string {
	return fmt.Sprintf("jobs:listings:flow:%s:%d:pending", account, start)
}

func parentKey(account string, start int64) string {
	return fmt.Sprintf("jobs:listings:flow:%s:%d:parent", account, start)
}

type RedisPipeline struct {
	client *redis.Client
	// registerTTL bounds how long a job identity blocks redelivery; it
	// outlives the snapshot TTL so a finished epoch cannot be replayed.
	registerTTL time.Duration
	nowFn       func() time.Time
}

func NewRedisPipeline(client *redis.Client, registerTTL time.Duration) *RedisPipeline {
	if registerTTL <= 0 {
		registerTTL = time.Hour
	}
	return &RedisPipeline{client: client, registerTTL: registerTTL, nowFn: time.Now}
}

// EnqueueFlow registers the parent and its initial children. A duplicate
// parent identity makes the whole call a no-op.
func (p *RedisPipeline) EnqueueFlow(ctx context.Context, parent domain.FetchJob, children []domain.FetchJob) error {
	ok, err := p.client.SetNX(ctx, markerKey(jobID(parent)), 1, p.registerTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	parentRaw, err := json.Marshal(parent)
	if err != nil {
		return err
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, parentKey(parent.Account, parent.Start), parentRaw, p.registerTTL)
		pipe.Set(ctx, pendingKey(parent.Account, parent.Start), len(children), p.registerTTL)
		return nil
	})
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := p.register(ctx, child, 0, false); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueChild grows an in-flight flow by one job. The pending counter is
// raised before the child is registered so the join can never fire while
// the child is in limbo; a duplicate identity rolls the counter back.
func (p *RedisPipeline) EnqueueChild(ctx context.Context, job domain.FetchJob, delay time.Duration) error {
	if err := p.client.Incr(ctx, pendingKey(job.Account, job.Start)).Err(); err != nil {
		return err
	}
	return p.register(ctx, job, delay, true)
}

func (p *RedisPipeline) register(ctx context.Context, job domain.FetchJob, delay time.Duration, rollbackPending bool) error {
	ok, err := p.client.SetNX(ctx, markerKey(jobID(job)), 1, p.registerTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		// Redelivered identity: drop it, and rebalance the join if the
		// counter was raised for it.
		if rollbackPending {
			return p.client.Decr(ctx, pendingKey(job.Account, job.Start)).Err()
		}
		return nil
	}
	return p.requeue(ctx, job, delay)
}

// requeue puts an already-registered job (back) on the queue. Retries go
// through here directly so the same identity can run again.
func (p *RedisPipeline) requeue(ctx context.Context, job domain.FetchJob, delay time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if delay > 0 {
		return p.client.ZAdd(ctx, delayedKey, redis.Z{
			Score:  float64(p.nowFn().Add(delay).UnixMilli()),
			Member: string(raw),
		}).Err()
	}
	return p.client.LPush(ctx, readyKey, raw).Err()
}

// completeChild decrements the flow's pending counter; the worker whose
// decrement reaches zero promotes the parent onto the ready list.
func (p *RedisPipeline) completeChild(ctx context.Context, job domain.FetchJob) error {
	n, err := p.client.Decr(ctx, pendingKey(job.Account, job.Start)).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	raw, err := p.client.Get(ctx, parentKey(job.Account, job.Start)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, parentKey(job.Account, job.Start), pendingKey(job.Account, job.Start))
		pipe.LPush(ctx, readyKey, raw)
		return nil
	})
	return err
}

// promoteDelayed moves due delayed jobs onto the ready list.
func (p *RedisPipeline) promoteDelayed(ctx context.Context) error {
	now := fmt.Sprintf("%d", p.nowFn().UnixMilli())
	due, err := p.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, member := range due {
		_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, delayedKey, member)
			pipe.LPush(ctx, readyKey, member)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// pop takes the next ready job, if any.
func (p *RedisPipeline) pop(ctx context.Context) (domain.FetchJob, bool, error) {
	raw, err := p.client.RPop(ctx, readyKey).Result()
	if errors.Is(err, redis.Nil) {
		return domain.FetchJob{}, false, nil
	}
	if err != nil {
		return domain.FetchJob{}, false, err
	}
	var job domain.FetchJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return domain.FetchJob{}, false, err
	}
	return job, true, nil
}
