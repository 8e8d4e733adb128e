// Package config loads server settings from the environment, optionally
// layered over a TOML file named by LIVEQA_CONFIG.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Backend names accepted by LIVEQA_STORE and LIVEQA_VIEWERS.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendNATS     = "nats"
)

type Config struct {
	HTTPAddr string // LIVEQA_HTTP_ADDR (default ":8080")
	GRPCAddr string // LIVEQA_GRPC_ADDR (default ":9090")

	Store       string // LIVEQA_STORE: memory | postgres | s3 (default "memory")
	DatabaseURL string // LIVEQA_DATABASE_URL (required by postgres store or viewers)

	S3Bucket   string // LIVEQA_S3_BUCKET (required by s3 store)
	S3Region   string // LIVEQA_S3_REGION (default "us-east-1")
	S3Endpoint string // LIVEQA_S3_ENDPOINT (custom endpoint for MinIO)

	NATSURL    string        // LIVEQA_NATS_URL (optional, empty = in-process bus)
	BusPrefix  string        // LIVEQA_BUS_PREFIX (default "liveqa.events")
	BusBackoff time.Duration // LIVEQA_BUS_BACKOFF (default 2s)

	Viewers       string // LIVEQA_VIEWERS: memory | nats | postgres (default "memory")
	ViewersBucket string // LIVEQA_VIEWERS_BUCKET (default "liveqa_viewers")

	SweepInterval time.Duration // LIVEQA_SWEEP_INTERVAL (default 10m; 0 = disabled)
}

// fileConfig is the TOML shape of a config file. Every key is optional.
type fileConfig struct {
	HTTPAddr      string `toml:"http_addr"`
	GRPCAddr      string `toml:"grpc_addr"`
	Store         string `toml:"store"`
	DatabaseURL   string `toml:"database_url"`
	S3Bucket      string `toml:"s3_bucket"`
	S3Region      string `toml:"s3_region"`
	S3Endpoint    string `toml:"s3_endpoint"`
	NATSURL       string `toml:"nats_url"`
	BusPrefix     string `toml:"bus_prefix"`
	BusBackoff    string `toml:"bus_backoff"`
	Viewers       string `toml:"viewers"`
	ViewersBucket string `toml:"viewers_bucket"`
	SweepInterval string `toml:"sweep_interval"`
}

func Load() (*Config, error) {
	f := fileConfig{
		HTTPAddr:      ":8080",
		GRPCAddr:      ":9090",
		Store:         BackendMemory,
		S3Region:      "us-east-1",
		BusPrefix:     "liveqa.events",
		BusBackoff:    "2s",
		Viewers:       BackendMemory,
		ViewersBucket: "liveqa_viewers",
		SweepInterval: "10m",
	}
	if path := os.Getenv("LIVEQA_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("LIVEQA_CONFIG %s: %w", path, err)
		}
	}

	c := &Config{
		HTTPAddr:      envOrDefault("LIVEQA_HTTP_ADDR", f.HTTPAddr),
		GRPCAddr:      envOrDefault("LIVEQA_GRPC_ADDR", f.GRPCAddr),
		Store:         envOrDefault("LIVEQA_STORE", f.Store),
		DatabaseURL:   envOrDefault("LIVEQA_DATABASE_URL", f.DatabaseURL),
		S3Bucket:      envOrDefault("LIVEQA_S3_BUCKET", f.S3Bucket),
		S3Region:      envOrDefault("LIVEQA_S3_REGION", f.S3Region),
		S3Endpoint:    envOrDefault("LIVEQA_S3_ENDPOINT", f.S3Endpoint),
		NATSURL:       envOrDefault("LIVEQA_NATS_URL", f.NATSURL),
		BusPrefix:     envOrDefault("LIVEQA_BUS_PREFIX", f.BusPrefix),
		Viewers:       envOrDefault("LIVEQA_VIEWERS", f.Viewers),
		ViewersBucket: envOrDefault("LIVEQA_VIEWERS_BUCKET", f.ViewersBucket),
	}

	var err error
	if c.BusBackoff, err = parseDuration("LIVEQA_BUS_BACKOFF", f.BusBackoff); err != nil {
		return nil, err
	}
	if c.SweepInterval, err = parseDuration("LIVEQA_SWEEP_INTERVAL", f.SweepInterval); err != nil {
		return nil, err
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("LIVEQA_DATABASE_URL is required when LIVEQA_STORE=postgres")
		}
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("LIVEQA_S3_BUCKET is required when LIVEQA_STORE=s3")
		}
	default:
		return fmt.Errorf("LIVEQA_STORE: unknown backend %q", c.Store)
	}

	switch c.Viewers {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("LIVEQA_DATABASE_URL is required when LIVEQA_VIEWERS=postgres")
		}
	case BackendNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("LIVEQA_NATS_URL is required when LIVEQA_VIEWERS=nats")
		}
	default:
		return fmt.Errorf("LIVEQA_VIEWERS: unknown backend %q", c.Viewers)
	}

	if c.BusBackoff <= 0 {
		return fmt.Errorf("LIVEQA_BUS_BACKOFF must be positive")
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("LIVEQA_SWEEP_INTERVAL must not be negative")
	}
	return nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
