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

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrObjectNotFound is returned by a Backend when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Backend is the minimal blob API the definition store needs.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns ErrObjectNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete returns ErrObjectNotFound for a missing key.
	Delete(ctx context.Context, key string) error
	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Provider names an object store implementation.
type Provider string

const (
	ProviderS3    Provider = "s3"
	ProviderGCS   Provider = "gcs"
	ProviderAzure Provider = "azure"
)

// Config selects and configures a Backend. Credential fields left empty
// fall back to each SDK's default credential chain.
type Config struct {
	Provider Provider `mapstructure:"provider" yaml:"provider"`
	// Bucket is the S3/GCS bucket or the Azure container.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	// Prefix is prepended to every definition key, e.g. "workflows/".
	Prefix string `mapstructure:"prefix" yaml:"prefix"`

	// S3
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token"`

	// GCS
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json" yaml:"credentials_json"`

	// Azure
	ConnectionString string `mapstructure:"connection_string" yaml:"connection_string"`
	AccountName      string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey       string `mapstructure:"account_key" yaml:"account_key"`
}

// Validate checks that the provider is known and a bucket is set.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderS3, ProviderGCS:
	case ProviderAzure:
		if c.ConnectionString == "" && c.AccountName == "" {
			return errors.New("azure object store requires connection_string or account_name")
		}
	default:
		return fmt.Errorf("unsupported object store provider %q", c.Provider)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("object store bucket is required")
	}
	return nil
}

// NewBackend connects to the configured provider.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderS3:
		return NewS3Backend(ctx, cfg)
	case ProviderGCS:
		return NewGCSBackend(ctx, cfg)
	default:
		return NewAzureBackend(cfg)
	}
}
