package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config groups every environment-driven setting required by the API process.
// It is loaded once at startup and never mutated afterwards; the hashing core
// itself takes no runtime configuration.
type Config struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	APIKey         string        `envconfig:"API_KEY"`
	MaxImageMB     int64         `envconfig:"MAX_IMAGE_MB" default:"12"`
	MaxBatchFiles  int           `envconfig:"MAX_BATCH_FILES" default:"16"`
	MaxCandidates  int           `envconfig:"MAX_CANDIDATES" default:"512"`
	HashWorkers    int           `envconfig:"HASH_WORKERS" default:"4"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	NATSURL        string        `envconfig:"NATS_URL"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"24h"`
}

// Load builds the Config from SNAPMATCH_* environment variables.
func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("SNAPMATCH", &cfg)
	return cfg, err
}
