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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretPrefix marks a config value to be fetched from AWS Secrets Manager.
// An optional "#key" suffix selects one field of a JSON secret.
const SecretPrefix = "aws-secretsmanager:"

// SecretsManager returns a secret as a map of fields. Plain-string secrets
// are returned as {"value": <secret>}.
type SecretsManager interface {
	GetSecret(ctx context.Context, secretARN string) (map[string]string, error)
}

// secretsAPI is the part of the Secrets Manager client used here.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager implements SecretsManager with a TTL cache.
type AWSSecretsManager struct {
	client secretsAPI
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager creates a client using the default AWS credential chain.
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newAWSSecretsManager(secretsmanager.NewFromConfig(cfg), opts), nil
}

func newAWSSecretsManager(client secretsAPI, opts AWSSecretsManagerOptions) *AWSSecretsManager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS_MANAGER] ", log.LstdFlags)
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// GetSecret returns the cached secret or fetches it.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretARN]
	s.mu.RUnlock()
	if exists && s.now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskARN(secretARN))
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &fields); err != nil {
		fields = map[string]string{"value": *result.SecretString}
	}

	s.mu.Lock()
	s.cache[secretARN] = &secretCacheEntry{value: fields, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return fields, nil
}

// InvalidateAll clears the cache.
func (s *AWSSecretsManager) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string]*secretCacheEntry)
	s.mu.Unlock()
}

// maskARN shows only the last 8 characters of an ARN.
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// IsSecretRef reports whether v names a Secrets Manager secret.
func IsSecretRef(v string) bool { return strings.HasPrefix(v, SecretPrefix) }

// ResolveSecret returns v unchanged unless it is a secret reference.
func ResolveSecret(ctx context.Context, sm SecretsManager, v string) (string, error) {
	if !IsSecretRef(v) {
		return v, nil
	}
	ref := strings.TrimPrefix(v, SecretPrefix)
	arn, key, hasKey := strings.Cut(ref, "#")
	if arn == "" {
		return "", fmt.Errorf("empty secret reference %q", v)
	}
	if sm == nil {
		return "", fmt.Errorf("secret %s referenced but no secrets manager is configured", maskARN(arn))
	}

	fields, err := sm.GetSecret(ctx, arn)
	if err != nil {
		return "", err
	}
	if hasKey {
		value, ok := fields[key]
		if !ok {
			return "", fmt.Errorf("secret %s has no field %q", maskARN(arn), key)
		}
		return value, nil
	}
	if value, ok := fields["value"]; ok {
		return value, nil
	}
	if len(fields) == 1 {
		for _, value := range fields {
			return value, nil
		}
	}
	return "", fmt.Errorf("secret %s has %d fields; select one with #key", maskARN(arn), len(fields))
}

// secretFields lists the config values that may hold secret references.
func (c *Config) secretFields() []*string {
	return []*string{
		&c.Storage.SQL.DSN,
		&c.Storage.Redis.URL,
		&c.Storage.Mongo.URI,
		&c.Storage.Object.AccessKeyID,
		&c.Storage.Object.SecretAccessKey,
		&c.Storage.Object.SessionToken,
		&c.Storage.Object.CredentialsJSON,
		&c.Storage.Object.ConnectionString,
		&c.Storage.Object.AccountKey,
	}
}

// HasSecretRefs reports whether any value needs ResolveSecrets.
func (c *Config) HasSecretRefs() bool {
	for _, f := range c.secretFields() {
		if IsSecretRef(*f) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every secret reference in c in place.
func (c *Config) ResolveSecrets(ctx context.Context, sm SecretsManager) error {
	for _, f := range c.secretFields() {
		value, err := ResolveSecret(ctx, sm, *f)
		if err != nil {
			return err
		}
		*f = value
	}
	return nil
}
