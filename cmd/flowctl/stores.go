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

package main

import (
	"context"
	"fmt"
	"io"

	"axonflow/flowgraph/config"
	"axonflow/flowgraph/shared/logger"
	"axonflow/flowgraph/storage"
	"axonflow/flowgraph/storage/mongostore"
	"axonflow/flowgraph/storage/objectstore"
	"axonflow/flowgraph/storage/redisstore"
	"axonflow/flowgraph/storage/sqlstore"
)

// stores holds the opened backends and the closers to release them.
type stores struct {
	definitions storage.DefinitionStore
	executions  storage.ExecutionRepository
	closers     []func() error
}

func (s *stores) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openStores connects the configured definition store and execution
// repository. SQL and Mongo connections are shared when both use the same
// kind.
func openStores(ctx context.Context, cfg *config.Config, l *logger.Logger) (*stores, error) {
	s := &stores{}
	var (
		sqlStore   *sqlstore.Store
		mongoStore *mongostore.Store
	)

	openSQL := func() (*sqlstore.Store, error) {
		if sqlStore != nil {
			return sqlStore, nil
		}
		st, err := sqlstore.Open(ctx, cfg.Storage.SQL.Driver, cfg.Storage.SQL.DSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, st.Close)
		if cfg.Storage.SQL.Migrate {
			if err := st.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		l.Info("", "", "Connected to SQL store", map[string]interface{}{"driver": cfg.Storage.SQL.Driver})
		sqlStore = st
		return st, nil
	}
	openMongo := func() (*mongostore.Store, error) {
		if mongoStore != nil {
			return mongoStore, nil
		}
		st, err := mongostore.Connect(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { return st.Close(context.Background()) })
		if err := st.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		l.Info("", "", "Connected to MongoDB", map[string]interface{}{"database": cfg.Storage.Mongo.Database})
		mongoStore = st
		return st, nil
	}

	fail := func(err error) (*stores, error) {
		_ = s.Close()
		return nil, err
	}

	switch cfg.Storage.Definitions {
	case config.StorageMemory:
		s.definitions = storage.NewMemoryDefinitionStore()
	case config.StorageSQL:
		st, err := openSQL()
		if err != nil {
			return fail(err)
		}
		s.definitions = st
	case config.StorageMongo:
		st, err := openMongo()
		if err != nil {
			return fail(err)
		}
		s.definitions = st
	case config.StorageObject:
		backend, err := objectstore.NewBackend(ctx, cfg.Storage.Object)
		if err != nil {
			return fail(err)
		}
		if c, ok := backend.(io.Closer); ok {
			s.closers = append(s.closers, c.Close)
		}
		s.definitions = objectstore.NewDefinitionStore(backend, cfg.Storage.Object.Prefix)
		l.Info("", "", "Using object store for definitions", map[string]interface{}{
			"provider": cfg.Storage.Object.Provider,
			"bucket":   cfg.Storage.Object.Bucket,
		})
	default:
		return fail(fmt.Errorf("unsupported definition store %q", cfg.Storage.Definitions))
	}

	switch cfg.Storage.Executions {
	case config.StorageMemory:
		s.executions = storage.NewMemoryExecutionRepository()
	case config.StorageNone:
		s.executions = storage.NoOpExecutionRepository{}
	case config.StorageSQL:
		st, err := openSQL()
		if err != nil {
			return fail(err)
		}
		s.executions = st
	case config.StorageMongo:
		st, err := openMongo()
		if err != nil {
			return fail(err)
		}
		s.executions = st
	case config.StorageRedis:
		repo, err := redisstore.Connect(ctx, cfg.Storage.Redis.URL, redisstore.Options{
			Prefix: cfg.Storage.Redis.Prefix,
			TTL:    cfg.Storage.Redis.TTL,
		})
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, repo.Close)
		s.executions = repo
		l.Info("", "", "Connected to Redis execution store", map[string]interface{}{"ttl": cfg.Storage.Redis.TTL.String()})
	default:
		return fail(fmt.Errorf("unsupported execution store %q", cfg.Storage.Executions))
	}

	return s, nil
}
