package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	RedisURL       string
	KafkaBrokers   []string
	// KafkaTopicByEvent routes each listings.* event type to its topic;
	// unmapped event types publish to a topic named after themselves.
	KafkaTopicByEvent map[string]string
	MarketplaceURL    string
	InventoryURL      string

	MarketplaceTimeout time.Duration
	InventoryTimeout   time.Duration

	SnapshotTTL time.Duration
	PageLimit   int

	WorkerPollInterval time.Duration
	JobRetryDelay      time.Duration
	JobMaxAttempts     int
	JobRegisterTTL     time.Duration

	FetchMinInterval time.Duration
	FetchBackoffBase time.Duration
	FetchBackoffMax  time.Duration
	FetchMaxPending  int
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		RedisURL       string            `yaml:"redis_url"`
		KafkaBrokers   []string          `yaml:"kafka_brokers"`
		KafkaTopics    map[string]string `yaml:"kafka_topics"`
		MarketplaceURL string            `yaml:"marketplace_url"`
		InventoryURL   string            `yaml:"inventory_url"`
	} `yaml:"dependencies"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:          "listing-sync",
		HTTPPort:           8080,
		GRPCPort:           9090,
		MarketplaceTimeout: 60 * time.Second,
		InventoryTimeout:   15 * time.Second,
		SnapshotTTL:        5 * time.Minute,
		PageLimit:          100,
		WorkerPollInterval: time.Second,
		JobRetryDelay:      10 * time.Second,
		JobMaxAttempts:     3,
		JobRegisterTTL:     time.Hour,
		FetchMinInterval:   2 * time.Second,
		FetchBackoffBase:   10 * time.Second,
		FetchBackoffMax:    10 * time.Minute,
		FetchMaxPending:    20,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
		}
		if len(f.Dependencies.KafkaTopics) > 0 {
			cfg.KafkaTopicByEvent = f.Dependencies.KafkaTopics
		}
		if f.Dependencies.MarketplaceURL != "" {
			cfg.MarketplaceURL = f.Dependencies.MarketplaceURL
		}
		if f.Dependencies.InventoryURL != "" {
			cfg.InventoryURL = f.Dependencies.InventoryURL
		}
	}

	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopicByEvent = envPairs("KAFKA_TOPICS", cfg.KafkaTopicByEvent)
	cfg.MarketplaceURL = envOrDefault("MARKETPLACE_URL", cfg.MarketplaceURL)
	cfg.InventoryURL = envOrDefault("INVENTORY_URL", cfg.InventoryURL)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MarketplaceTimeout = time.Duration(envInt("MARKETPLACE_TIMEOUT_SECONDS", int(cfg.MarketplaceTimeout.Seconds()))) * time.Second
	cfg.InventoryTimeout = time.Duration(envInt("INVENTORY_TIMEOUT_SECONDS", int(cfg.InventoryTimeout.Seconds()))) * time.Second
	cfg.SnapshotTTL = time.Duration(envInt("SNAPSHOT_TTL_SECONDS", int(cfg.SnapshotTTL.Seconds()))) * time.Second
	cfg.PageLimit = envInt("PAGE_LIMIT", cfg.PageLimit)
	cfg.WorkerPollInterval = time.Duration(envInt("WORKER_POLL_SECONDS", int(cfg.WorkerPollInterval.Seconds()))) * time.Second
	cfg.JobRetryDelay = time.Duration(envInt("JOB_RETRY_DELAY_SECONDS", int(cfg.JobRetryDelay.Seconds()))) * time.Second
	cfg.JobMaxAttempts = envInt("JOB_MAX_ATTEMPTS", cfg.JobMaxAttempts)
	cfg.JobRegisterTTL = time.Duration(envInt("JOB_REGISTER_TTL_SECONDS", int(cfg.JobRegisterTTL.Seconds()))) * time.Second
	cfg.FetchMinInterval = time.Duration(envInt("FETCH_MIN_INTERVAL_SECONDS", int(cfg.FetchMinInterval.Seconds()))) * time.Second
	cfg.FetchBackoffBase = time.Duration(envInt("FETCH_BACKOFF_BASE_SECONDS", int(cfg.FetchBackoffBase.Seconds()))) * time.Second
	cfg.FetchBackoffMax = time.Duration(envInt("FETCH_BACKOFF_MAX_SECONDS", int(cfg.FetchBackoffMax.Seconds()))) * time.Second
	cfg.FetchMaxPending = envInt("FETCH_MAX_PENDING", cfg.FetchMaxPending)

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.MarketplaceURL == "" {
		return Config{}, fmt.Errorf("missing MARKETPLACE_URL")
	}
	if cfg.InventoryURL == "" {
		return Config{}, fmt.Errorf("missing INVENTORY_URL")
	}
	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if value := os.Getenv(name); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func envCSV(name string, fallback []string) []string {
	if value := os.Getenv(name); value != "" {
		return trimNonEmpty(strings.Split(value, ","))
	}
	return fallback
}

// envPairs parses `key=value,key=value` maps, e.g.
// KAFKA_TOPICS=listings.created=mutations,listings.refreshed=refreshes.
func envPairs(name string, fallback map[string]string) map[string]string {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	out := map[string]string{}
	for _, pair := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if ok && k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
