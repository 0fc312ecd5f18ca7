package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/query"
	"github.com/roach88/bulkstore/internal/querysql"
)

// EnvPrefix prefixes every environment override:
// BULKSTORE_GOVERNOR_QUERY_CEILING overrides governor.query_ceiling.
const EnvPrefix = "BULKSTORE"

// Config is the runtime configuration of a bulkstore unit of work.
type Config struct {
	Governor   GovernorConfig   `mapstructure:"governor" json:"governor"`
	Query      QueryConfig      `mapstructure:"query" json:"query"`
	Store      StoreConfig      `mapstructure:"store" json:"store"`
	Repository RepositoryConfig `mapstructure:"repository" json:"repository"`
	Log        LogConfig        `mapstructure:"log" json:"log"`
}

// GovernorConfig sets the per-transaction ceilings.
type GovernorConfig struct {
	QueryCeiling int `mapstructure:"query_ceiling" json:"query_ceiling"`
	WriteCeiling int `mapstructure:"write_ceiling" json:"write_ceiling"`
}

// QueryConfig bounds relationship sub-queries.
type QueryConfig struct {
	MaxRelationDepth int `mapstructure:"max_relation_depth" json:"max_relation_depth"`
	MaxRelations     int `mapstructure:"max_relations" json:"max_relations"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver string `mapstructure:"driver" json:"driver"`
	DSN    string `mapstructure:"dsn" json:"dsn"`
}

// RepositoryConfig tunes repositories.
type RepositoryConfig struct {
	// CacheSize is the identity cache size per repository. 0 disables it.
	CacheSize int `mapstructure:"cache_size" json:"cache_size"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `mapstructure:"level" json:"level"`
}

// DriverMemory selects the in-memory store.
const DriverMemory = "memory"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Governor: GovernorConfig{
			QueryCeiling: governor.DefaultLimits.QueryCeiling,
			WriteCeiling: governor.DefaultLimits.WriteCeiling,
		},
		Query: QueryConfig{
			MaxRelationDepth: query.DefaultLimits.MaxRelationDepth,
			MaxRelations:     query.DefaultLimits.MaxRelations,
		},
		Store: StoreConfig{Driver: "sqlite", DSN: "bulkstore.db"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path (YAML, TOML or JSON by extension; "" for none), applies
// BULKSTORE_* environment overrides on top of the defaults and validates
// the result.
func Load(path string) (Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault("governor.query_ceiling", d.Governor.QueryCeiling)
	v.SetDefault("governor.write_ceiling", d.Governor.WriteCeiling)
	v.SetDefault("query.max_relation_depth", d.Query.MaxRelationDepth)
	v.SetDefault("query.max_relations", d.Query.MaxRelations)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("repository.cache_size", d.Repository.CacheSize)
	v.SetDefault("log.level", d.Log.Level)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Governor.QueryCeiling <= 0 {
		errs = append(errs, fmt.Errorf("governor.query_ceiling must be positive, got %d", c.Governor.QueryCeiling))
	}
	if c.Governor.WriteCeiling <= 0 {
		errs = append(errs, fmt.Errorf("governor.write_ceiling must be positive, got %d", c.Governor.WriteCeiling))
	}
	if c.Query.MaxRelationDepth < 0 {
		errs = append(errs, fmt.Errorf("query.max_relation_depth must not be negative, got %d", c.Query.MaxRelationDepth))
	}
	if c.Query.MaxRelations < 0 {
		errs = append(errs, fmt.Errorf("query.max_relations must not be negative, got %d", c.Query.MaxRelations))
	}
	if c.Store.Driver != DriverMemory {
		if _, err := querysql.ParseDialect(c.Store.Driver); err != nil {
			errs = append(errs, fmt.Errorf("store.driver: %w", err))
		}
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required"))
		}
	}
	if c.Repository.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("repository.cache_size must not be negative, got %d", c.Repository.CacheSize))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// GovernorLimits returns the governor ceilings.
func (c Config) GovernorLimits() governor.Limits {
	return governor.Limits{QueryCeiling: c.Governor.QueryCeiling, WriteCeiling: c.Governor.WriteCeiling}
}

// QueryLimits returns the relationship sub-query bounds.
func (c Config) QueryLimits() query.Limits {
	return query.Limits{MaxRelationDepth: c.Query.MaxRelationDepth, MaxRelations: c.Query.MaxRelations}
}

// LogLevel parses Log.Level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
