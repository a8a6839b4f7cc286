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

// Package objectstore keeps workflow definitions as YAML documents in S3,
// Google Cloud Storage or Azure Blob Storage. Each definition is one object
// named <prefix><name>.yaml, so the bucket can also be edited by hand.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"axonflow/flowgraph/storage"
	"axonflow/flowgraph/workflow"
)

const (
	objectSuffix = ".yaml"
	contentType  = "application/yaml"
)

// DefinitionStore implements storage.DefinitionStore over a Backend.
type DefinitionStore struct {
	backend Backend
	prefix  string
}

var _ storage.DefinitionStore = (*DefinitionStore)(nil)

// NewDefinitionStore stores definitions under prefix. A non-empty prefix
// without a trailing slash gets one.
func NewDefinitionStore(backend Backend, prefix string) *DefinitionStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &DefinitionStore{backend: backend, prefix: prefix}
}

func (s *DefinitionStore) key(name string) string {
	return s.prefix + name + objectSuffix
}

func (s *DefinitionStore) Save(ctx context.Context, def *workflow.Definition) error {
	if def == nil {
		return fmt.Errorf("%w: definition is nil", storage.ErrInvalidInput)
	}
	if err := storage.ValidateName(def.Metadata.Name); err != nil {
		return err
	}
	data, err := def.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}
	return s.backend.Put(ctx, s.key(def.Metadata.Name), data, contentType)
}

func (s *DefinitionStore) Get(ctx context.Context, name string) (*workflow.Definition, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	data, err := s.backend.Get(ctx, s.key(name))
	if errors.Is(err, ErrObjectNotFound) {
		return nil, fmt.Errorf("definition %q: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return storage.DecodeDefinition(data)
}

// List loads every object under the prefix with a .yaml suffix. Objects in
// nested "directories" are ignored.
func (s *DefinitionStore) List(ctx context.Context) ([]*workflow.Definition, error) {
	keys, err := s.backend.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, key := range keys {
		name := strings.TrimPrefix(key, s.prefix)
		if !strings.HasSuffix(name, objectSuffix) || strings.Contains(name, "/") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, objectSuffix))
	}
	sort.Strings(names)

	defs := make([]*workflow.Definition, 0, len(names))
	for _, name := range names {
		def, err := s.Get(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			// deleted between List and Get
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s *DefinitionStore) Delete(ctx context.Context, name string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	err := s.backend.Delete(ctx, s.key(name))
	if errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("definition %q: %w", name, storage.ErrNotFound)
	}
	return err
}
