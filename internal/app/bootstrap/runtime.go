package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/mercator-labs/listing-sync/internal/adapters/cache"
	eventadapter "github.com/mercator-labs/listing-sync/internal/adapters/events"
	httpadapter "github.com/mercator-labs/listing-sync/internal/adapters/http"
	"github.com/mercator-labs/listing-sync/internal/adapters/inventory"
	"github.com/mercator-labs/listing-sync/internal/adapters/jobs"
	"github.com/mercator-labs/listing-sync/internal/adapters/marketplace"
	"github.com/mercator-labs/listing-sync/internal/application"
	"github.com/mercator-labs/listing-sync/internal/ports"
	"github.com/mercator-labs/listing-sync/internal/scheduler"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	worker     *jobs.Worker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	cacheStore := cacheadapter.NewRedisCache(redisClient)
	limitStore := cacheadapter.NewRedisLimitStore(redisClient)
	tokenStore := cacheadapter.NewRedisTokenStore(redisClient)
	pipeline := jobs.NewRedisPipeline(redisClient, cfg.JobRegisterTTL)

	marketClient := marketplace.NewClient(cfg.MarketplaceURL, cfg.MarketplaceTimeout)
	fetchScheduler := scheduler.New(scheduler.Config{
		MinInterval: cfg.FetchMinInterval,
		BackoffBase: cfg.FetchBackoffBase,
		BackoffMax:  cfg.FetchBackoffMax,
		MaxPending:  cfg.FetchMaxPending,
	})
	inventoryClient := inventory.NewClient(cfg.InventoryURL, cfg.InventoryTimeout, fetchScheduler)

	publisher := ports.EventPublisher(eventadapter.NewLoggingPublisher(logger))
	var closers []io.Closer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicByEvent)
		if pubErr != nil {
			logger.WarnContext(ctx, "kafka publisher disabled, using logging publisher", "error", pubErr)
		} else {
			publisher = kafkaPublisher
			closers = append(closers, kafkaPublisher)
		}
	}

	service := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName: cfg.ServiceID,
			SnapshotTTL: cfg.SnapshotTTL,
			PageLimit:   cfg.PageLimit,
		},
		Cache:       cacheStore,
		Limits:      limitStore,
		Pipeline:    pipeline,
		Marketplace: marketClient,
		Inventory:   inventoryClient,
		Events:      publisher,
		Logger:      logger,
	})

	worker := jobs.NewWorker(logger, pipeline, service, marketClient, tokenStore,
		cfg.WorkerPollInterval, cfg.JobRetryDelay, cfg.JobMaxAttempts)

	handler := httpadapter.NewHandler(service)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		worker:     worker,
		cleanupFn: func(ctx context.Context) {
			for _, closer := range closers {
				_ = closer.Close()
			}
			_ = redisClient.Close()
		},
	}, nil
}

// Run serves HTTP and gRPC health and drives the refresh job worker until
// a signal or a server failure.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 3)

	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := r.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}
