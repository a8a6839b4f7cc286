// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads flowgraph service configuration from a YAML file,
// FLOWGRAPH_* environment variables and an optional .env file. Values of the
// form "aws-secretsmanager:<arn>[#key]" are resolved through AWS Secrets
// Manager by ResolveSecrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"axonflow/flowgraph/storage/objectstore"
	"axonflow/flowgraph/workflow"
)

// EnvPrefix is the prefix of environment overrides, e.g. FLOWGRAPH_SERVER_ADDR.
const EnvPrefix = "FLOWGRAPH"

// Storage kinds
const (
	StorageMemory = "memory"
	StorageSQL    = "sql"
	StorageRedis  = "redis"
	StorageMongo  = "mongo"
	StorageObject = "object"
	StorageNone   = "none"
)

// Model backends
const (
	ModelsNone    = "none"
	ModelsBedrock = "bedrock"
)

// Config is the full service configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	// DefinitionsDir holds *.yaml definitions loaded into the store at startup.
	DefinitionsDir string `mapstructure:"definitions_dir"`

	Server   ServerConfig   `mapstructure:"server"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Blocks   BlocksConfig   `mapstructure:"blocks"`
	Models   ModelsConfig   `mapstructure:"models"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// ExecutionTimeout bounds one API-triggered run. Zero means no limit.
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
}

type ExecutorConfig struct {
	MaxParallel   int    `mapstructure:"max_parallel"`
	FailurePolicy string `mapstructure:"failure_policy"`
}

type StorageConfig struct {
	// Definitions is one of memory, sql, mongo, object.
	Definitions string `mapstructure:"definitions"`
	// Executions is one of memory, sql, redis, mongo, none.
	Executions string             `mapstructure:"executions"`
	SQL        SQLConfig          `mapstructure:"sql"`
	Redis      RedisConfig        `mapstructure:"redis"`
	Mongo      MongoConfig        `mapstructure:"mongo"`
	Object     objectstore.Config `mapstructure:"object"`
}

type SQLConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// Migrate creates the tables on startup.
	Migrate bool `mapstructure:"migrate"`
}

type RedisConfig struct {
	URL    string        `mapstructure:"url"`
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BlocksConfig struct {
	// AllowPrivateIPs lets http_request blocks reach private addresses.
	AllowPrivateIPs bool          `mapstructure:"allow_private_ips"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
}

// ModelsConfig selects the backend of the llm_chat and rerank blocks. With
// none those blocks still load but fail when run.
type ModelsConfig struct {
	Provider string `mapstructure:"provider"`
	Region   string `mapstructure:"region"`
	// Model is the completion model for llm_chat blocks that name none.
	Model string `mapstructure:"model"`
}

type SecretsConfig struct {
	Region   string        `mapstructure:"region"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "INFO")
	v.SetDefault("definitions_dir", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.execution_timeout", time.Duration(0))

	v.SetDefault("executor.max_parallel", 0)
	v.SetDefault("executor.failure_policy", string(workflow.CancelInFlight))

	v.SetDefault("storage.definitions", StorageMemory)
	v.SetDefault("storage.executions", StorageMemory)
	v.SetDefault("storage.sql.driver", "postgres")
	v.SetDefault("storage.sql.dsn", "")
	v.SetDefault("storage.sql.migrate", true)
	v.SetDefault("storage.redis.url", "")
	v.SetDefault("storage.redis.prefix", "flowgraph:")
	v.SetDefault("storage.redis.ttl", 7*24*time.Hour)
	v.SetDefault("storage.mongo.uri", "")
	v.SetDefault("storage.mongo.database", "flowgraph")

	for _, key := range []string{
		"provider", "bucket", "prefix", "region", "endpoint", "access_key_id",
		"secret_access_key", "session_token", "credentials_file", "credentials_json",
		"connection_string", "account_name", "account_key",
	} {
		v.SetDefault("storage.object."+key, "")
	}
	v.SetDefault("storage.object.force_path_style", false)

	v.SetDefault("blocks.allow_private_ips", false)
	v.SetDefault("blocks.http_timeout", 30*time.Second)

	v.SetDefault("models.provider", ModelsNone)
	v.SetDefault("models.region", "us-east-1")
	v.SetDefault("models.model", "")

	v.SetDefault("secrets.region", "")
	v.SetDefault("secrets.cache_ttl", 5*time.Minute)
}

// Load reads path (optional) and applies environment overrides. A .env file
// in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no
// environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

// Validate checks storage kinds, their required settings and limits. All
// problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Executor.MaxParallel < 0 {
		errs = append(errs, fmt.Errorf("executor.max_parallel must be >= 0, got %d", c.Executor.MaxParallel))
	}
	if !workflow.FailurePolicy(c.Executor.FailurePolicy).Valid() {
		errs = append(errs, fmt.Errorf("executor.failure_policy %q is not one of %s, %s",
			c.Executor.FailurePolicy, workflow.CancelInFlight, workflow.DrainInFlight))
	}

	switch c.Storage.Definitions {
	case StorageMemory:
	case StorageSQL:
		errs = append(errs, c.Storage.SQL.validate()...)
	case StorageMongo:
		errs = append(errs, c.Storage.Mongo.validate()...)
	case StorageObject:
		if err := c.Storage.Object.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("storage.object: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.definitions %q is not one of memory, sql, mongo, object", c.Storage.Definitions))
	}

	switch c.Storage.Executions {
	case StorageMemory, StorageNone:
	case StorageSQL:
		if c.Storage.Definitions != StorageSQL {
			errs = append(errs, c.Storage.SQL.validate()...)
		}
	case StorageMongo:
		if c.Storage.Definitions != StorageMongo {
			errs = append(errs, c.Storage.Mongo.validate()...)
		}
	case StorageRedis:
		if c.Storage.Redis.URL == "" {
			errs = append(errs, errors.New("storage.redis.url is required"))
		}
		if c.Storage.Redis.TTL < 0 {
			errs = append(errs, errors.New("storage.redis.ttl must be >= 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.executions %q is not one of memory, sql, redis, mongo, none", c.Storage.Executions))
	}

	if c.Blocks.HTTPTimeout < 0 {
		errs = append(errs, errors.New("blocks.http_timeout must be >= 0"))
	}
	switch c.Models.Provider {
	case ModelsNone:
	case ModelsBedrock:
		if strings.TrimSpace(c.Models.Region) == "" {
			errs = append(errs, errors.New("models.region is required for bedrock"))
		}
	default:
		errs = append(errs, fmt.Errorf("models.provider %q is not one of none, bedrock", c.Models.Provider))
	}
	return errors.Join(errs...)
}

func (s SQLConfig) validate() []error {
	var errs []error
	if s.Driver != "postgres" && s.Driver != "mysql" {
		errs = append(errs, fmt.Errorf("storage.sql.driver %q is not one of postgres, mysql", s.Driver))
	}
	if s.DSN == "" {
		errs = append(errs, errors.New("storage.sql.dsn is required"))
	}
	return errs
}

func (m MongoConfig) validate() []error {
	var errs []error
	if m.URI == "" {
		errs = append(errs, errors.New("storage.mongo.uri is required"))
	}
	if m.Database == "" {
		errs = append(errs, errors.New("storage.mongo.database is required"))
	}
	return errs
}
