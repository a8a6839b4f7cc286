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

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"axonflow/flowgraph/workflow"
)

// MemoryDefinitionStore keeps definitions in memory. Stored values are
// serialized copies, so callers may keep mutating what they saved.
type MemoryDefinitionStore struct {
	mu   sync.RWMutex
	defs map[string][]byte
}

// NewMemoryDefinitionStore creates an empty store.
func NewMemoryDefinitionStore() *MemoryDefinitionStore {
	return &MemoryDefinitionStore{defs: make(map[string][]byte)}
}

var _ DefinitionStore = (*MemoryDefinitionStore)(nil)

func (s *MemoryDefinitionStore) Save(ctx context.Context, def *workflow.Definition) error {
	data, err := EncodeDefinition(def)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.Metadata.Name] = data
	return nil
}

func (s *MemoryDefinitionStore) Get(ctx context.Context, name string) (*workflow.Definition, error) {
	s.mu.RLock()
	data, ok := s.defs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("definition %q: %w", name, ErrNotFound)
	}
	return DecodeDefinition(data)
}

func (s *MemoryDefinitionStore) List(ctx context.Context) ([]*workflow.Definition, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	out := make([]*workflow.Definition, 0, len(names))
	for _, name := range names {
		def, err := s.Get(ctx, name)
		if err != nil {
			// deleted between the two locks
			continue
		}
		out = append(out, def)
	}
	return out, nil
}

func (s *MemoryDefinitionStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[name]; !ok {
		return fmt.Errorf("definition %q: %w", name, ErrNotFound)
	}
	delete(s.defs, name)
	return nil
}

// MemoryExecutionRepository keeps execution records in memory.
type MemoryExecutionRepository struct {
	mu    sync.RWMutex
	execs map[string][]byte
}

// NewMemoryExecutionRepository creates an empty repository.
func NewMemoryExecutionRepository() *MemoryExecutionRepository {
	return &MemoryExecutionRepository{execs: make(map[string][]byte)}
}

var _ ExecutionRepository = (*MemoryExecutionRepository)(nil)

func (r *MemoryExecutionRepository) SaveExecution(ctx context.Context, exec *workflow.Execution) error {
	data, err := EncodeExecution(exec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs[exec.ID] = data
	return nil
}

func (r *MemoryExecutionRepository) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	r.mu.RLock()
	data, ok := r.execs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("execution %q: %w", id, ErrNotFound)
	}
	return DecodeExecution(data)
}

func (r *MemoryExecutionRepository) ListExecutions(ctx context.Context, opts ListOptions) ([]workflow.Summary, int, error) {
	opts = opts.Normalize()
	r.mu.RLock()
	matched := make([]*workflow.Execution, 0, len(r.execs))
	for _, data := range r.execs {
		exec, err := DecodeExecution(data)
		if err != nil {
			r.mu.RUnlock()
			return nil, 0, err
		}
		if opts.Matches(exec) {
			matched = append(matched, exec)
		}
	}
	r.mu.RUnlock()

	SortNewestFirst(matched)
	page := Page(matched, opts)
	out := make([]workflow.Summary, 0, len(page))
	for _, exec := range page {
		out = append(out, exec.Summarize())
	}
	return out, len(matched), nil
}

func (r *MemoryExecutionRepository) DeleteExecution(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.execs[id]; !ok {
		return fmt.Errorf("execution %q: %w", id, ErrNotFound)
	}
	delete(r.execs, id)
	return nil
}

func (r *MemoryExecutionRepository) Ping(ctx context.Context) error { return nil }

// SortNewestFirst orders executions by start time, newest first, breaking
// ties by id.
func SortNewestFirst(execs []*workflow.Execution) {
	sort.SliceStable(execs, func(i, j int) bool {
		if !execs[i].StartedAt.Equal(execs[j].StartedAt) {
			return execs[i].StartedAt.After(execs[j].StartedAt)
		}
		return execs[i].ID < execs[j].ID
	})
}

// NoOpExecutionRepository discards executions. It is used when execution
// history is disabled.
type NoOpExecutionRepository struct{}

var _ ExecutionRepository = NoOpExecutionRepository{}

func (NoOpExecutionRepository) SaveExecution(ctx context.Context, exec *workflow.Execution) error {
	return nil
}

func (NoOpExecutionRepository) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	return nil, fmt.Errorf("execution %q: %w", id, ErrNotFound)
}

func (NoOpExecutionRepository) ListExecutions(ctx context.Context, opts ListOptions) ([]workflow.Summary, int, error) {
	return []workflow.Summary{}, 0, nil
}

func (NoOpExecutionRepository) DeleteExecution(ctx context.Context, id string) error {
	return fmt.Errorf("execution %q: %w", id, ErrNotFound)
}

func (NoOpExecutionRepository) Ping(ctx context.Context) error { return nil }
