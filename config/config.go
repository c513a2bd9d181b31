// Package config loads service configuration from defaults, an optional
// config file, WAITERBOARD_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "WAITERBOARD"

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Store     StoreConfig     `mapstructure:"store"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Log       LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	// pebble | sqlite | postgres
	Driver string `mapstructure:"driver"`
	// directory for pebble, file for sqlite
	Path string `mapstructure:"path"`
	// connection string for postgres
	DSN string `mapstructure:"dsn"`
}

type OutboxConfig struct {
	Dir string `mapstructure:"dir"`
}

type BrokerConfig struct {
	// none | sarama | kafka-go
	Driver  string   `mapstructure:"driver"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type BroadcastConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	MaxRetries uint32        `mapstructure:"max_retries"`
}

type JobsConfig struct {
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	// acked outbox entries older than this are purged by the snapshot job
	OutboxRetention time.Duration `mapstructure:"outbox_retention"`
}

type SnapshotConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Default() Config {
	return Config{
		HTTP:      HTTPConfig{Addr: ":8080", AllowedOrigins: []string{"*"}},
		GRPC:      GRPCConfig{Addr: ":9090"},
		Store:     StoreConfig{Driver: "pebble", Path: "data/store"},
		Outbox:    OutboxConfig{Dir: "data/outbox"},
		Broker:    BrokerConfig{Driver: "none", Topic: "waiterboard.events"},
		Broadcast: BroadcastConfig{Interval: 250 * time.Millisecond, MaxRetries: 10},
		Jobs: JobsConfig{
			CleanupInterval:  time.Minute,
			SnapshotInterval: 5 * time.Minute,
			OutboxRetention:  24 * time.Hour,
		},
		Snapshot: SnapshotConfig{Dir: "data/snapshots"},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// SetDefaults registers every key with v so environment variables are seen
// even when no config file mentions them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)
	v.SetDefault("grpc.addr", d.GRPC.Addr)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("outbox.dir", d.Outbox.Dir)
	v.SetDefault("broker.driver", d.Broker.Driver)
	v.SetDefault("broker.brokers", d.Broker.Brokers)
	v.SetDefault("broker.topic", d.Broker.Topic)
	v.SetDefault("broadcast.interval", d.Broadcast.Interval)
	v.SetDefault("broadcast.max_retries", d.Broadcast.MaxRetries)
	v.SetDefault("jobs.cleanup_interval", d.Jobs.CleanupInterval)
	v.SetDefault("jobs.snapshot_interval", d.Jobs.SnapshotInterval)
	v.SetDefault("jobs.outbox_retention", d.Jobs.OutboxRetention)
	v.SetDefault("snapshot.dir", d.Snapshot.Dir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// New returns a viper instance wired for WAITERBOARD_* variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads file (if non-empty) into v and decodes the result.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", file)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case "pebble", "sqlite":
		if c.Store.Path == "" {
			return errors.Newf("store.path is required for %s", c.Store.Driver)
		}
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for postgres")
		}
	default:
		return errors.Newf("store.driver %q: want pebble, sqlite or postgres", c.Store.Driver)
	}
	switch c.Broker.Driver {
	case "none":
	case "sarama", "kafka-go":
		if len(c.Broker.Brokers) == 0 {
			return errors.Newf("broker.brokers is required for %s", c.Broker.Driver)
		}
	default:
		return errors.Newf("broker.driver %q: want none, sarama or kafka-go", c.Broker.Driver)
	}
	if c.Jobs.CleanupInterval <= 0 || c.Broadcast.Interval <= 0 {
		return errors.New("job intervals must be positive")
	}
	return nil
}
