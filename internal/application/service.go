package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mercator-labs/listing-sync/internal/ports"
)

type Config struct {
	ServiceName string
	// SnapshotTTL bounds how long an abandoned refresh snapshot survives.
	SnapshotTTL time.Duration
	// PageLimit is the page size for refresh fetches.
	PageLimit int
}

// Service is the listing reconciliation engine. All shared state lives in
// the cache; every read-modify-write affecting an invariant commits as one
// atomic batch.
type Service struct {
	cfg       Config
	cache     ports.Cache
	limits    ports.LimitStore
	pipeline  ports.JobPipeline
	market    ports.MarketplaceClient
	inventory ports.InventoryClient
	events    ports.EventPublisher
	logger    *slog.Logger
	nowFn     func() time.Time
}

type Dependencies struct {
	Config      Config
	Cache       ports.Cache
	Limits      ports.LimitStore
	Pipeline    ports.JobPipeline
	Marketplace ports.MarketplaceClient
	Inventory   ports.InventoryClient
	Events      ports.EventPublisher
	Logger      *slog.Logger
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "listing-sync"
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 5 * time.Minute
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		cache:     deps.Cache,
		limits:    deps.Limits,
		pipeline:  deps.Pipeline,
		market:    deps.Marketplace,
		inventory: deps.Inventory,
		events:    deps.Events,
		logger:    logger,
		nowFn:     time.Now,
	}
}

func currentKey(account string) string {
	return "listings:current:" + account
}

func snapshotKey(account string, start int64) string {
	return fmt.Sprintf("listings:snapshot:%s:%d", account, start)
}

func snapshotPattern(account string) string {
	return "listings:snapshot:" + account + ":*"
}

func keepKey(account string) string {
	return "listings:keep:" + account
}

// openSnapshots finds the snapshot keys of every refresh epoch currently
// in flight for the account.
func (s *Service) openSnapshots(ctx context.Context, account string) ([]string, error) {
	return s.cache.Keys(ctx, snapshotPattern(account))
}

// publish is fire-and-forget: a dropped notification never rolls back the
// cache write it describes.
func (s *Service) publish(ctx context.Context, eventType string, payload any, account string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, raw, account); err != nil {
		s.logger.WarnContext(ctx, "notification dropped",
			"module", "application",
			"layer", "service",
			"operation", "publish",
			"outcome", "failure",
			"event_type", eventType,
			"account", account,
			"error", err,
		)
	}
}
