package app

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr  string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisDB    int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	GotenbergURL string `envconfig:"GOTENBERG_URL" default:"http://127.0.0.1:3000"`

	// BackendTimeout of zero disables the per-request deadline.
	BackendBaseURL       string        `envconfig:"BACKEND_BASE_URL" required:"true"`
	BackendTimeout       time.Duration `envconfig:"BACKEND_TIMEOUT" default:"0s"`
	BackendEndpointsFile string        `envconfig:"BACKEND_ENDPOINTS_FILE"`

	GeocoderURL         string `envconfig:"GEOCODER_URL" default:"https://nominatim.openstreetmap.org"`
	GeocoderConcurrency int    `envconfig:"GEOCODER_CONCURRENCY" default:"4"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"4"`

	SnapshotTTL          time.Duration `envconfig:"SNAPSHOT_TTL" default:"15m"`
	ReportCacheTTL       time.Duration `envconfig:"REPORT_CACHE_TTL" default:"10m"`
	NotifyPollInterval   time.Duration `envconfig:"NOTIFY_POLL_INTERVAL" default:"30s"`
	TrackingPollInterval time.Duration `envconfig:"TRACKING_POLL_INTERVAL" default:"10s"`
}

// LoadConfig reads configuration from an optional .env file and the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	if cfg.BackendBaseURL == "" {
		return nil, errors.New("backend base url must be provided")
	}
	if cfg.GeocoderConcurrency < 1 {
		cfg.GeocoderConcurrency = 1
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
