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

// Package redisstore keeps execution records in Redis. Records are JSON
// strings with an optional TTL, indexed by start time in a sorted set.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"axonflow/flowgraph/storage"
	"axonflow/flowgraph/workflow"
)

// DefaultPrefix namespaces every key written by the repository.
const DefaultPrefix = "flowgraph:"

// Options configures a Repository.
type Options struct {
	// Prefix is prepended to every key. Defaults to DefaultPrefix.
	Prefix string
	// TTL expires records after the given duration. Zero keeps them forever.
	TTL time.Duration
}

// Repository implements storage.ExecutionRepository on Redis.
type Repository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ storage.ExecutionRepository = (*Repository)(nil)

// New wraps an existing client.
func New(client redis.UniversalClient, opts Options) *Repository {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	return &Repository{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

// Connect parses a redis:// URL, connects and pings the server.
func Connect(ctx context.Context, redisURL string, opts Options) (*Repository, error) {
	clientOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(clientOpts)

	repo := New(client, opts)
	if err := repo.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying client.
func (r *Repository) Close() error { return r.client.Close() }

func (r *Repository) recordKey(id string) string { return r.prefix + "execution:" + id }

func (r *Repository) indexKey() string { return r.prefix + "executions" }

// SaveExecution writes the record and indexes it by start time.
func (r *Repository) SaveExecution(ctx context.Context, exec *workflow.Execution) error {
	data, err := storage.EncodeExecution(exec)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.recordKey(exec.ID), data, r.ttl)
		pipe.ZAdd(ctx, r.indexKey(), &redis.Z{
			Score:  float64(exec.StartedAt.UnixMilli()),
			Member: exec.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// GetExecution loads a record by id.
func (r *Repository) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	data, err := r.client.Get(ctx, r.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("execution %q: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return storage.DecodeExecution(data)
}

// ListExecutions loads the indexed records, dropping index entries whose
// record has expired, then filters and pages them newest first.
func (r *Repository) ListExecutions(ctx context.Context, opts storage.ListOptions) ([]workflow.Summary, int, error) {
	opts = opts.Normalize()

	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read execution index: %w", err)
	}
	if len(ids) == 0 {
		return []workflow.Summary{}, 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recordKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load executions: %w", err)
	}

	var expired []any
	matched := make([]*workflow.Execution, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		exec, err := storage.DecodeExecution([]byte(raw))
		if err != nil {
			return nil, 0, err
		}
		if opts.Matches(exec) {
			matched = append(matched, exec)
		}
	}
	if len(expired) > 0 {
		if err := r.client.ZRem(ctx, r.indexKey(), expired...).Err(); err != nil {
			return nil, 0, fmt.Errorf("failed to prune execution index: %w", err)
		}
	}

	storage.SortNewestFirst(matched)
	page := storage.Page(matched, opts)
	summaries := make([]workflow.Summary, len(page))
	for i, exec := range page {
		summaries[i] = exec.Summarize()
	}
	return summaries, len(matched), nil
}

// DeleteExecution removes a record and its index entry.
func (r *Repository) DeleteExecution(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.recordKey(id))
		pipe.ZRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete execution: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("execution %q: %w", id, storage.ErrNotFound)
	}
	return nil
}

// Ping checks connectivity with a 5 second timeout.
func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrDatabaseUnavailable, err)
	}
	return nil
}
