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

// Package storage defines persistence for workflow definitions and
// execution records, with in-memory implementations. Database and object
// store backends live in the subpackages.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"axonflow/flowgraph/workflow"
)

const (
	// DefaultListLimit is used when ListOptions.Limit is zero
	DefaultListLimit = 50
	// MaxListLimit caps ListOptions.Limit
	MaxListLimit = 1000
)

// DefinitionStore persists workflow definitions keyed by metadata.name.
type DefinitionStore interface {
	// Save creates or replaces the definition with the same name.
	Save(ctx context.Context, def *workflow.Definition) error
	Get(ctx context.Context, name string) (*workflow.Definition, error)
	// List returns every definition sorted by name.
	List(ctx context.Context) ([]*workflow.Definition, error)
	Delete(ctx context.Context, name string) error
}

// ExecutionRepository persists execution records.
type ExecutionRepository interface {
	// SaveExecution creates or replaces the record with the same id.
	SaveExecution(ctx context.Context, exec *workflow.Execution) error
	GetExecution(ctx context.Context, id string) (*workflow.Execution, error)
	// ListExecutions returns summaries newest first, with the total number
	// of records matching the filters.
	ListExecutions(ctx context.Context, opts ListOptions) ([]workflow.Summary, int, error)
	DeleteExecution(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// ListOptions filters and pages execution listings.
type ListOptions struct {
	WorkflowName string `json:"workflow_name,omitempty"`
	Status       string `json:"status,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// Normalize applies the default and maximum limit and clamps the offset.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Matches reports whether exec passes the filters.
func (o ListOptions) Matches(exec *workflow.Execution) bool {
	if o.WorkflowName != "" && exec.WorkflowName != o.WorkflowName {
		return false
	}
	if o.Status != "" && string(exec.Status) != o.Status {
		return false
	}
	return true
}

// Page applies offset and limit to items. opts must be normalized.
func Page[T any](items []T, opts ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// ValidateName checks a definition name used as a storage key.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: name %q must not contain path separators", ErrInvalidInput, name)
	}
	return nil
}

// EncodeDefinition serializes a definition as JSON for storage.
func EncodeDefinition(def *workflow.Definition) ([]byte, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: definition is nil", ErrInvalidInput)
	}
	if err := ValidateName(def.Metadata.Name); err != nil {
		return nil, err
	}
	return json.Marshal(def)
}

// DecodeDefinition parses a stored definition. YAML documents are accepted
// as well since JSON is a subset of YAML.
func DecodeDefinition(data []byte) (*workflow.Definition, error) {
	def, err := workflow.ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("decode stored definition: %w", err)
	}
	return def, nil
}

// EncodeExecution serializes an execution record as JSON.
func EncodeExecution(exec *workflow.Execution) ([]byte, error) {
	if exec == nil || exec.ID == "" {
		return nil, fmt.Errorf("%w: execution id is required", ErrInvalidInput)
	}
	return json.Marshal(exec)
}

// DecodeExecution parses a stored execution record.
func DecodeExecution(data []byte) (*workflow.Execution, error) {
	var exec workflow.Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, fmt.Errorf("decode stored execution: %w", err)
	}
	return &exec, nil
}
