package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"hrm"`
	Password string `env:"PASSWORD"                envDefault:"hrm"`
	Name     string `env:"NAME"                    envDefault:"hrm"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	// Pool sizing. The scheduler holds at most one connection per in-flight run plus the API.
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"          envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"          envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"       envDefault:"5m"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT"         envDefault:"5s"`
}

// Sanitize applies guardrails to pool settings.
func (c *DBConfig) Sanitize() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// DSN returns the pgx connection URL. Credentials are escaped by url.URL.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig controls the Redis-backed run statistics cache.
type CacheConfig struct {
	// Enabled turns the stats cache on. When off no Redis connection is made.
	Enabled bool `env:"CACHE_ENABLED" envDefault:"false"`

	// KeyPrefix namespaces every cache key.
	KeyPrefix string `env:"CACHE_KEY_PREFIX" envDefault:"hrm-scheduler"`

	// StatsTTL is the TTL of cached per-job statistics.
	StatsTTL time.Duration `env:"CACHE_STATS_TTL" envDefault:"1m"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	c.KeyPrefix = strings.Trim(strings.TrimSpace(c.KeyPrefix), ":")
	if c.StatsTTL <= 0 {
		c.StatsTTL = time.Minute
	}
}
