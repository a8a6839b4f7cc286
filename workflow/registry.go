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

package workflow

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// BlockSpec is the per-instance input to a block factory.
type BlockSpec struct {
	ID      string
	Name    string
	Config  map[string]any
	Timeout time.Duration
	Retry   RetryPolicy
}

// Options returns the BlockOptions every factory should apply so the
// created block keeps its identity, type and execution settings.
func (s BlockSpec) Options(blockType string) []BlockOption {
	return []BlockOption{
		WithID(s.ID),
		WithType(blockType),
		WithConfig(s.Config),
		WithTimeout(s.Timeout),
		WithRetry(s.Retry),
	}
}

// BlockFactory creates a block instance from a spec.
type BlockFactory func(spec BlockSpec) (*Block, error)

// BlockTypeInfo describes a registered block type.
type BlockTypeInfo struct {
	Type        string   `json:"type"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Inputs      []Input  `json:"inputs,omitempty"`
	Outputs     []Output `json:"outputs,omitempty"`
	// DynamicPorts is set when the ports depend on the instance config.
	DynamicPorts bool `json:"dynamic_ports,omitempty"`
}

type registration struct {
	info    BlockTypeInfo
	factory BlockFactory
}

// Registry is an explicit table from block type id to factory. It is built
// at application startup and passed to whatever resolves definitions; there
// is no package-level registry.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]registration
	logger *log.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		types:  make(map[string]registration),
		logger: log.New(os.Stdout, "[BLOCK_REGISTRY] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a block type. Registering the same type twice fails.
func (r *Registry) Register(info BlockTypeInfo, factory BlockFactory) error {
	if info.Type == "" {
		return fmt.Errorf("block type id is required")
	}
	if factory == nil {
		return fmt.Errorf("block type %q: factory is required", info.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[info.Type]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBlockType, info.Type)
	}
	if info.DisplayName == "" {
		info.DisplayName = info.Type
	}
	r.types[info.Type] = registration{info: info, factory: factory}
	r.logger.Printf("Registered block type %s", info.Type)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(info BlockTypeInfo, factory BlockFactory) {
	if err := r.Register(info, factory); err != nil {
		panic(err)
	}
}

// Unregister removes a block type. It reports whether the type existed.
func (r *Registry) Unregister(blockType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[blockType]; !ok {
		return false
	}
	delete(r.types, blockType)
	return true
}

// Has reports whether a type is registered.
func (r *Registry) Has(blockType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[blockType]
	return ok
}

// Info returns the description of a registered type.
func (r *Registry) Info(blockType string) (BlockTypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[blockType]
	return reg.info, ok
}

// Types lists registered block types sorted by id.
func (r *Registry) Types() []BlockTypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BlockTypeInfo, 0, len(r.types))
	for _, reg := range r.types {
		out = append(out, reg.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Count returns the number of registered types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Create builds a block of the given type.
func (r *Registry) Create(blockType string, spec BlockSpec) (*Block, error) {
	r.mu.RLock()
	reg, ok := r.types[blockType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlockType, blockType)
	}
	if spec.Name == "" {
		spec.Name = reg.info.DisplayName
	}
	b, err := reg.factory(spec)
	if err != nil {
		return nil, fmt.Errorf("create block %q of type %s: %w", spec.ID, blockType, err)
	}
	if b.blockType == "" {
		b.blockType = blockType
	}
	return b, nil
}
