package application

import (
	"context"
	"log/slog"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/mercator-labs/listing-sync/internal/domain"
	"github.com/mercator-labs/listing-sync/internal/ports"
)

// memCache mirrors the redis adapter's semantics closely enough for the
// engine's invariants: hashes vanish when emptied, Swap reports whether
// the source existed, and batches apply under one lock.
type memCache struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	ttls   map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{
		hashes: map[string]map[string]string{},
		sets:   map[string]map[string]struct{}{},
		ttls:   map[string]time.Duration{},
	}
}

func (c *memCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]string{}
	for k, v := range c.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (c *memCache) HMGet(_ context.Context, key string, fields ...string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]string{}
	for _, f := range fields {
		if v, ok := c.hashes[key][f]; ok {
			out[f] = v
		}
	}
	return out, nil
}

func (c *memCache) HLen(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.hashes[key])), nil
}

func (c *memCache) SAdd(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[key]
	if !ok {
		set = map[string]struct{}{}
		c.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (c *memCache) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for m := range c.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (c *memCache) SRem(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.srem(key, members...)
	return nil
}

func (c *memCache) srem(key string, members ...string) {
	set := c.sets[key]
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		delete(c.sets, key)
	}
}

func (c *memCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.hashes[key]; ok {
		return true, nil
	}
	_, ok := c.sets[key]
	return ok, nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.del(keys...)
	return nil
}

func (c *memCache) del(keys ...string) {
	for _, key := range keys {
		delete(c.hashes, key)
		delete(c.sets, key)
		delete(c.ttls, key)
	}
}

func (c *memCache) Keys(_ context.Context, pattern string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for key := range c.hashes {
		if ok, _ := path.Match(pattern, key); ok {
			out = append(out, key)
		}
	}
	return out, nil
}

func (c *memCache) Swap(_ context.Context, src, dst string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	srcHash, ok := c.hashes[src]
	if !ok {
		return false, nil
	}
	m := map[string]string{}
	for k, v := range srcHash {
		m[k] = v
	}
	c.hashes[dst] = m
	delete(c.ttls, dst)
	c.del(src)
	return true, nil
}

func (c *memCache) Tx(_ context.Context, fn func(b ports.Batch)) error {
	b := &memBatch{}
	fn(b)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, op := range b.ops {
		op(c)
	}
	return nil
}

// helpers for seeding state in tests

func (c *memCache) seedHash(key string, fields map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := map[string]string{}
	for k, v := range fields {
		m[k] = v
	}
	c.hashes[key] = m
}

func (c *memCache) hash(key string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]string{}
	for k, v := range c.hashes[key] {
		out[k] = v
	}
	return out
}

func (c *memCache) hasTTL(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ttls[key]
	return ok
}

type memBatch struct {
	ops []func(c *memCache)
}

func (b *memBatch) HSet(key string, fields map[string]string) {
	copied := map[string]string{}
	for k, v := range fields {
		copied[k] = v
	}
	b.ops = append(b.ops, func(c *memCache) {
		if len(copied) == 0 {
			return
		}
		m, ok := c.hashes[key]
		if !ok {
			m = map[string]string{}
			c.hashes[key] = m
		}
		for k, v := range copied {
			m[k] = v
		}
	})
}

func (b *memBatch) HDel(key string, fields ...string) {
	b.ops = append(b.ops, func(c *memCache) {
		m := c.hashes[key]
		for _, f := range fields {
			delete(m, f)
		}
		if len(m) == 0 {
			delete(c.hashes, key)
		}
	})
}

func (b *memBatch) HIncrBy(key, field string, delta int64) {
	b.ops = append(b.ops, func(c *memCache) {
		m, ok := c.hashes[key]
		if !ok {
			m = map[string]string{}
			c.hashes[key] = m
		}
		n, _ := strconv.ParseInt(m[field], 10, 64)
		m[field] = strconv.FormatInt(n+delta, 10)
	})
}

func (b *memBatch) HSetField(key, field, value string) {
	b.ops = append(b.ops, func(c *memCache) {
		m, ok := c.hashes[key]
		if !ok {
			m = map[string]string{}
			c.hashes[key] = m
		}
		m[field] = value
	})
}

func (b *memBatch) SRem(key string, members ...string) {
	b.ops = append(b.ops, func(c *memCache) {
		c.srem(key, members...)
	})
}

func (b *memBatch) Del(keys ...string) {
	b.ops = append(b.ops, func(c *memCache) {
		c.del(keys...)
	})
}

func (b *memBatch) Expire(key string, ttl time.Duration) {
	b.ops = append(b.ops, func(c *memCache) {
		c.ttls[key] = ttl
	})
}

func (b *memBatch) Persist(key string) {
	b.ops = append(b.ops, func(c *memCache) {
		delete(c.ttls, key)
	})
}

type memLimits struct {
	cache *memCache
}

func limitsTestKey(account string) string {
	return "listings:limits:" + account
}

func (l *memLimits) Get(ctx context.Context, account string) (domain.AccountLimits, error) {
	data, _ := l.cache.HGetAll(ctx, limitsTestKey(account))
	limits := domain.AccountLimits{}
	if n, err := strconv.Atoi(data["used"]); err == nil && n > 0 {
		limits.Used = n
	}
	if n, err := strconv.Atoi(data["cap"]); err == nil && n > 0 {
		limits.Cap = n
	}
	return limits, nil
}

func (l *memLimits) SetCap(ctx context.Context, account string, cap int) error {
	return l.cache.Tx(ctx, func(b ports.Batch) {
		b.HSetField(limitsTestKey(account), "cap", strconv.Itoa(cap))
	})
}

func (l *memLimits) AddUsedInBatch(b ports.Batch, account string, delta int) {
	b.HIncrBy(limitsTestKey(account), "used", int64(delta))
}

func (l *memLimits) SetUsedInBatch(b ports.Batch, account string, used int) {
	b.HSetField(limitsTestKey(account), "used", strconv.Itoa(used))
}

type enqueuedChild struct {
	job   domain.FetchJob
	delay time.Duration
}

type fakePipeline struct {
	mu       sync.Mutex
	parents  []domain.FetchJob
	children [][]domain.FetchJob
	extra    []enqueuedChild
}

func (p *fakePipeline) EnqueueFlow(_ context.Context, parent domain.FetchJob, children []domain.FetchJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parents = append(p.parents, parent)
	p.children = append(p.children, children)
	return nil
}

func (p *fakePipeline) EnqueueChild(_ context.Context, job domain.FetchJob, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extra = append(p.extra, enqueuedChild{job: job, delay: delay})
	return nil
}

type fakeMarket struct {
	mu                sync.Mutex
	createResults     []domain.BatchResult
	updateResults     []domain.BatchResult
	deleteActive      int
	deleteArchived    int
	deleteAllActive   int
	deleteAllArchived int
	activePage        domain.ListingPage

	createCalls  [][]domain.ListingDraft
	updateCalls  [][]domain.ListingDraft
	deleteCalls  [][]string
	listedActive int
}

func (m *fakeMarket) CreateBatch(_ context.Context, _ string, drafts []domain.ListingDraft) ([]domain.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls = append(m.createCalls, drafts)
	return m.createResults, nil
}

func (m *fakeMarket) UpdateBatch(_ context.Context, _ string, drafts []domain.ListingDraft) ([]domain.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls = append(m.updateCalls, drafts)
	return m.updateResults, nil
}

func (m *fakeMarket) DeleteActiveBatch(_ context.Context, _ string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, ids)
	return m.deleteActive, nil
}

func (m *fakeMarket) DeleteArchivedBatch(_ context.Context, _ string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, ids)
	return m.deleteArchived, nil
}

func (m *fakeMarket) DeleteAllActive(_ context.Context, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAllActive, nil
}

func (m *fakeMarket) DeleteAllArchived(_ context.Context, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAllArchived, nil
}

func (m *fakeMarket) ListActivePage(_ context.Context, _ string, _, _ int) (domain.ListingPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listedActive++
	return m.activePage, nil
}

func (m *fakeMarket) ListArchivedPage(_ context.Context, _ string, _, _ int) (domain.ListingPage, error) {
	return domain.ListingPage{}, nil
}

type publishedEvent struct {
	eventType string
	payload   []byte
	key       string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (e *fakeEvents) Publish(_ context.Context, eventType string, payload []byte, partitionKey string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, publishedEvent{eventType: eventType, payload: payload, key: partitionKey})
	return nil
}

func (e *fakeEvents) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.eventType
	}
	return out
}

type testEnv struct {
	svc      *Service
	cache    *memCache
	limits   *memLimits
	pipeline *fakePipeline
	market   *fakeMarket
	events   *fakeEvents
}

func newTestEnv() *testEnv {
	cache := newMemCache()
	limits := &memLimits{cache: cache}
	pipeline := &fakePipeline{}
	market := &fakeMarket{}
	events := &fakeEvents{}
	svc := NewService(Dependencies{
		Config:      Config{SnapshotTTL: 5 * time.Minute, PageLimit: 100},
		Cache:       cache,
		Limits:      limits,
		Pipeline:    pipeline,
		Marketplace: market,
		Events:      events,
		Logger:      slog.Default(),
	})
	svc.nowFn = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return &testEnv{svc: svc, cache: cache, limits: limits, pipeline: pipeline, market: market, events: events}
}
