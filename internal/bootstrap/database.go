package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/redis/go-redis/v9"
	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/data"
)

const redisPingTimeout = 5 * time.Second

// DatabaseConfig contains configuration for database connections.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// ConnectDB opens the Postgres pool through the pgx driver and verifies it with a ping.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	dbCfg := cfg.DBConfig
	dbCfg.Sanitize()

	db, err := sql.Open("pgx", dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(dbCfg.MaxOpenConns)
	db.SetMaxIdleConns(dbCfg.MaxIdleConns)
	db.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbCfg.ConnectTimeout)
	defer cancel()
	if err := verifyConn(ctx, "database", db.PingContext, db.Close); err != nil {
		return nil, err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected",
			"host", dbCfg.Host,
			"port", dbCfg.Port,
			"database", dbCfg.Name,
			"max_open_conns", dbCfg.MaxOpenConns,
		)
	}
	return db, nil
}

// ConnectRedis connects the stats cache client. Cluster and sentinel modes are selected by config;
// otherwise URI is either a redis:// URL or a bare host:port.
//
//nolint:ireturn // the concrete client type depends on the configured topology.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, mode, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch mode {
	case redisModeCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case redisModeSentinel:
		client = redis.NewFailoverClient(opts.Failover())
	default:
		client = redis.NewClient(opts.Simple())
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := verifyConn(ctx, "redis", ping, client.Close); err != nil {
		return nil, err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "mode", string(mode), "addrs", strings.Join(opts.Addrs, ","))
	}
	return client, nil
}

type redisMode string

const (
	redisModeDirect   redisMode = "direct"
	redisModeCluster  redisMode = "cluster"
	redisModeSentinel redisMode = "sentinel"
)

// redisOptions resolves RedisConfig into client options. Addrs never carry credentials.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, redisMode, error) {
	switch {
	case cfg.UseCluster:
		opts := &redis.UniversalOptions{Addrs: trimAddrs(cfg.ClusterNodes), Password: cfg.Password}
		if len(opts.Addrs) == 0 {
			// A single seed node may be given through URI instead of CLUSTER_NODES.
			if err := applyURI(opts, cfg.URI); err != nil {
				return nil, "", fmt.Errorf("parse redis cluster uri: %w", err)
			}
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis cluster configuration requires at least one address")
		}
		return opts, redisModeCluster, nil

	case cfg.UseSentinel:
		addrs := trimAddrs(cfg.SentinelNodes)
		if len(addrs) == 0 {
			return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		if strings.TrimSpace(cfg.SentinelMasterName) == "" {
			return nil, "", errors.New("redis sentinel configuration requires a master name")
		}
		return &redis.UniversalOptions{
			Addrs:            addrs,
			MasterName:       cfg.SentinelMasterName,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
		}, redisModeSentinel, nil

	default:
		opts := &redis.UniversalOptions{Password: cfg.Password}
		if err := applyURI(opts, cfg.URI); err != nil {
			return nil, "", fmt.Errorf("parse redis uri: %w", err)
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis direct configuration requires a URI")
		}
		return opts, redisModeDirect, nil
	}
}

// applyURI fills address, credentials, DB and TLS from a redis:// or rediss:// URL.
// A bare host:port only sets the address. Credentials in the URL win over configured ones.
func applyURI(opts *redis.UniversalOptions, uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil
	}
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		opts.Addrs = []string{uri}
		return nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return err
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	return nil
}

func trimAddrs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// verifyConn pings and closes the connection when the ping fails.
func verifyConn(ctx context.Context, what string, ping func(context.Context) error, closeFn func() error) error {
	err := ping(ctx)
	if err == nil {
		return nil
	}
	if closeErr := closeFn(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close %s connection: %w", what, closeErr))
	}
	return fmt.Errorf("ping %s: %w", what, err)
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := data.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}
