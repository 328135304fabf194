// Package config loads service settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Rate limit backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Port            string        `env:"PORT,             default=3001"`
	Env             string        `env:"ENV,              default=development"`
	LogLevel        string        `env:"LOG_LEVEL,        default=info"`
	RoutePrefix     string        `env:"ROUTE_PREFIX"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=15s"`
	// TrustedProxies lists CIDRs allowed to set X-Forwarded-For.
	TrustedProxies  []string      `env:"TRUSTED_PROXIES"`

	Auth        AuthConfig
	Store       StoreConfig
	Mongo       MongoConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Propagation PropagationConfig
}

type AuthConfig struct {
	JWTSecret    string   `env:"JWT_SECRET, required"`
	JWTExpiresIn Duration `env:"JWT_EXPIRES_IN, default=24h"`
	BcryptRounds int      `env:"BCRYPT_ROUNDS,  default=12"`
}

type StoreConfig struct {
	Driver string `env:"STORE_DRIVER, default=mongo"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=mindnest_auth"`
}

type PostgresConfig struct {
	URL      string `env:"DATABASE_URL"`
	MaxConns int32  `env:"DB_MAX_CONNS, default=10"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

type RateLimitConfig struct {
	Backend  string        `env:"RATE_LIMIT_BACKEND,   default=memory"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW,    default=15m"`
	Max      int           `env:"RATE_LIMIT_MAX,       default=100"`
	AdminMax int           `env:"ADMIN_RATE_LIMIT_MAX, default=50"`
}

type PropagationConfig struct {
	UserServiceURL      string        `env:"USER_SERVICE_URL,      default=http://localhost:3002"`
	TherapistServiceURL string        `env:"THERAPIST_SERVICE_URL, default=http://localhost:3003"`
	Timeout             time.Duration `env:"PROPAGATION_TIMEOUT,   default=5s"`
	Workers             int           `env:"PROPAGATION_WORKERS,   default=4"`
	QueueSize           int           `env:"PROPAGATION_QUEUE,     default=256"`
}

// Load reads configuration through lookuper using go-envconfig. A nil
// lookuper reads the process environment.
func Load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}

	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMongo, DriverMemory:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.RateLimit.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
	}

	if c.Auth.JWTExpiresIn.Duration <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 || c.RateLimit.AdminMax <= 0 {
		errs = append(errs, errors.New("rate limit window and caps must be positive"))
	}
	if _, err := c.TrustedProxyRanges(); err != nil {
		errs = append(errs, err)
	}
	if c.Propagation.Workers <= 0 || c.Propagation.QueueSize <= 0 {
		errs = append(errs, errors.New("PROPAGATION_WORKERS and PROPAGATION_QUEUE must be positive"))
	}

	return errors.Join(errs...)
}

// TrustedProxyRanges parses TRUSTED_PROXIES. A bare address is taken as a
// single-host range.
func (c *Config) TrustedProxyRanges() ([]*net.IPNet, error) {
	ranges := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			ranges = append(ranges, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", raw)
		}
		ranges = append(ranges, n)
	}
	return ranges, nil
}

// IsDevelopment reports whether internal error details may be exposed.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Duration is a time.Duration that also accepts a whole number of days
// ("7d") and remembers the spelling it was configured with.
type Duration struct {
	time.Duration
	raw string
}

// EnvDecode implements envconfig.Decoder.
func (d *Duration) EnvDecode(val string) error {
	val = strings.TrimSpace(val)
	if days, ok := strings.CutSuffix(val, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return fmt.Errorf("invalid duration %q", val)
		}
		d.Duration = time.Duration(n) * 24 * time.Hour
		d.raw = val
		return nil
	}

	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", val, err)
	}
	d.Duration = parsed
	d.raw = val
	return nil
}

// String returns the configured spelling.
func (d Duration) String() string {
	if d.raw != "" {
		return d.raw
	}
	return d.Duration.String()
}
