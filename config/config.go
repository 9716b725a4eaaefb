// Package config loads the finalize runtime configuration from YAML with
// environment overrides.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-finalize/analytics"
	"github.com/goliatone/go-finalize/lock"
	"github.com/goliatone/go-finalize/store"
	"github.com/goliatone/go-finalize/store/dialect"
)

const ErrCodeInvalidConfig = "CONFIG_INVALID"

const (
	SinkNDJSON      = "ndjson"
	SinkObjectStore = "objectstore"
)

type Config struct {
	Database  Database  `yaml:"database"`
	Lock      Lock      `yaml:"lock"`
	Analytics Analytics `yaml:"analytics"`
	Logging   Logging   `yaml:"logging"`
}

type Database struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	PingTimeout     time.Duration `yaml:"ping_timeout"`
}

type Lock struct {
	Table        string        `yaml:"table"`
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
	LeaseTimeout time.Duration `yaml:"lease_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ReapSchedule string        `yaml:"reap_schedule"`
}

type Analytics struct {
	EventName       string        `yaml:"event_name"`
	DefaultIdentity string        `yaml:"default_identity"`
	Sink            string        `yaml:"sink"`
	NDJSONPath      string        `yaml:"ndjson_path"`
	ObjectStore     ObjectStore   `yaml:"object_store"`
	AccountCacheTTL time.Duration `yaml:"account_cache_ttl"`
}

type ObjectStore struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: Database{
			Driver:          "sqlite3",
			DSN:             "file:finalize.db?_busy_timeout=5000&_journal_mode=WAL",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			PingTimeout:     2 * time.Second,
		},
		Lock: Lock{
			Table:        lock.DefaultTable,
			WaitTimeout:  lock.DefaultWaitTimeout,
			LeaseTimeout: lock.DefaultLeaseTimeout,
			PollInterval: 50 * time.Millisecond,
			ReapSchedule: lock.DefaultReapSchedule,
		},
		Analytics: Analytics{
			EventName:       analytics.DefaultEventName,
			DefaultIdentity: analytics.DefaultIdentity,
			Sink:            SinkNDJSON,
			NDJSONPath:      "-",
			AccountCacheTTL: store.DefaultAccountTTL,
			ObjectStore: ObjectStore{
				Region: "us-east-1",
				Prefix: "analytics",
			},
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (when not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML (or JSON) over the defaults and validates the result.
// Environment overrides are not applied.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays FINALIZE_* environment variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("FINALIZE_DATABASE_DRIVER", &c.Database.Driver)
	str("FINALIZE_DATABASE_DSN", &c.Database.DSN)
	str("FINALIZE_ANALYTICS_SINK", &c.Analytics.Sink)
	str("FINALIZE_OBJECT_STORE_ENDPOINT", &c.Analytics.ObjectStore.Endpoint)
	str("FINALIZE_OBJECT_STORE_ACCESS_KEY", &c.Analytics.ObjectStore.AccessKey)
	str("FINALIZE_OBJECT_STORE_SECRET_KEY", &c.Analytics.ObjectStore.SecretKey)
	str("FINALIZE_OBJECT_STORE_BUCKET", &c.Analytics.ObjectStore.Bucket)
	str("FINALIZE_OBJECT_STORE_PREFIX", &c.Analytics.ObjectStore.Prefix)
	str("FINALIZE_OBJECT_STORE_REGION", &c.Analytics.ObjectStore.Region)
	str("FINALIZE_LOG_LEVEL", &c.Logging.Level)

	if v, ok := lookup("FINALIZE_OBJECT_STORE_USE_SSL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse FINALIZE_OBJECT_STORE_USE_SSL: %w", err)
		}
		c.Analytics.ObjectStore.UseSSL = b
	}
	return stderrors.Join(
		dur("FINALIZE_LOCK_WAIT_TIMEOUT", &c.Lock.WaitTimeout),
		dur("FINALIZE_LOCK_LEASE_TIMEOUT", &c.Lock.LeaseTimeout),
	)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs error
	invalid := func(field, msg string) {
		errs = stderrors.Join(errs, apperrors.New(msg, apperrors.CategoryValidation).
			WithTextCode(ErrCodeInvalidConfig).
			WithMetadata(map[string]any{"field": field}))
	}

	if _, err := dialect.ForDriver(c.Database.Driver); err != nil {
		invalid("database.driver", err.Error())
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		invalid("database.dsn", "database dsn is required")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns && c.Database.MaxOpenConns > 0 {
		invalid("database.max_idle_conns", "max_idle_conns must be <= max_open_conns")
	}
	if c.Lock.WaitTimeout < 0 {
		invalid("lock.wait_timeout", "wait_timeout must be >= 0")
	}
	if c.Lock.LeaseTimeout <= 0 {
		invalid("lock.lease_timeout", "lease_timeout must be positive")
	}
	if strings.TrimSpace(c.Lock.Table) == "" {
		invalid("lock.table", "lock table is required")
	}

	switch c.Analytics.Sink {
	case SinkNDJSON:
		if strings.TrimSpace(c.Analytics.NDJSONPath) == "" {
			invalid("analytics.ndjson_path", "ndjson_path is required for the ndjson sink")
		}
	case SinkObjectStore:
		if err := c.ObjectStoreConfig().Validate(); err != nil {
			invalid("analytics.object_store", err.Error())
		}
	default:
		invalid("analytics.sink", fmt.Sprintf("unsupported analytics sink %q", c.Analytics.Sink))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		invalid("logging.format", fmt.Sprintf("unsupported log format %q", c.Logging.Format))
	}
	return errs
}

// DBConfig maps the database section to store.DBConfig.
func (c Config) DBConfig() store.DBConfig {
	return store.DBConfig{
		Driver:          c.Database.Driver,
		DSN:             c.Database.DSN,
		PingTimeout:     c.Database.PingTimeout,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// ObjectStoreConfig maps the object store section to analytics.ObjectStoreConfig.
func (c Config) ObjectStoreConfig() analytics.ObjectStoreConfig {
	o := c.Analytics.ObjectStore
	return analytics.ObjectStoreConfig{
		Endpoint:  o.Endpoint,
		AccessKey: o.AccessKey,
		SecretKey: o.SecretKey,
		Bucket:    o.Bucket,
		Prefix:    o.Prefix,
		Region:    o.Region,
		UseSSL:    o.UseSSL,
	}
}
