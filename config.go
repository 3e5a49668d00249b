package verp

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/tonyluong2025/verp-sub017/pkg/db"
	"github.com/tonyluong2025/verp-sub017/pkg/logger"
	"github.com/tonyluong2025/verp-sub017/pkg/storage"
)

// Session store backends.
const (
	SessionStoreFile  = "file"
	SessionStoreRedis = "redis"
)

// Config is the process configuration read from the environment.
// Component configs are embedded and parsed with their own tags.
type Config struct {
	Addr          string            `env:"HTTP_ADDR" envDefault:":8069"`
	DefaultTenant string            `env:"DB_NAME"`
	DBFilter      string            `env:"DB_FILTER"`
	HostRoutes    map[string]string `env:"HOST_ROUTES"` // host:tenant,*.example.com:%d
	SitesFile     string            `env:"SITES_FILE"`

	CSRFSecret  string `env:"CSRF_SECRET"`
	TokenSecret string `env:"SESSION_TOKEN_SECRET"`

	CookieSecret string `env:"COOKIE_SECRET"`
	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"true"`

	SessionStore      string        `env:"SESSION_STORE" envDefault:"file"` // file, redis
	SessionDir        string        `env:"SESSION_DIR"`
	SessionMaxAge     time.Duration `env:"SESSION_MAX_AGE" envDefault:"168h"`
	SessionGCSchedule string        `env:"SESSION_GC_SCHEDULE" envDefault:"@hourly"`
	RedisURL          string        `env:"REDIS_URL"`

	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	RetryAttempts   uint          `env:"HTTP_RETRY_ATTEMPTS" envDefault:"5"`
	MaxReroutes     int           `env:"HTTP_MAX_REROUTES" envDefault:"10"`
	DevMode         bool          `env:"DEV_MODE"`
	Metrics         bool          `env:"METRICS_ENABLED" envDefault:"true"`

	Log     logger.Config
	DB      db.Config
	Storage storage.Config
}

// ErrInvalidConfig is returned for configuration values that parse but
// cannot be served.
var ErrInvalidConfig = errors.New("verp: invalid config")

// LoadConfig reads the given .env files, when present, then parses the
// environment. Variables already set take precedence over the files.
func LoadConfig(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the parser cannot.
func (c Config) Validate() error {
	switch c.SessionStore {
	case SessionStoreFile:
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: SESSION_STORE=redis requires REDIS_URL", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown session store %q", ErrInvalidConfig, c.SessionStore)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("%w: SESSION_MAX_AGE must be positive", ErrInvalidConfig)
	}
	if c.DefaultTenant != "" && !db.ValidTenant(c.DefaultTenant) {
		return fmt.Errorf("%w: invalid DB_NAME %q", ErrInvalidConfig, c.DefaultTenant)
	}
	return nil
}
