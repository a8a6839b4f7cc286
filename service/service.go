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

// Package service exposes workflow definitions, execution and execution
// history over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"axonflow/flowgraph/shared/logger"
	"axonflow/flowgraph/storage"
	"axonflow/flowgraph/workflow"
)

// Options configures a Service. Registry and Definitions are required.
type Options struct {
	Registry    *workflow.Registry
	Executor    *workflow.Executor
	Definitions storage.DefinitionStore
	// Executions defaults to an in-memory repository.
	Executions storage.ExecutionRepository
	Logger     *logger.Logger
	// ExecutionTimeout bounds each run. Zero means no limit.
	ExecutionTimeout time.Duration
}

// Service builds definitions against a block registry, runs them and keeps
// their execution records.
type Service struct {
	registry         *workflow.Registry
	executor         *workflow.Executor
	definitions      storage.DefinitionStore
	executions       storage.ExecutionRepository
	log              *logger.Logger
	executionTimeout time.Duration
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Registry == nil {
		return nil, errors.New("service: registry is required")
	}
	if opts.Definitions == nil {
		return nil, errors.New("service: definition store is required")
	}
	if opts.Executions == nil {
		opts.Executions = storage.NewMemoryExecutionRepository()
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("flowgraph-service")
	}
	if opts.Executor == nil {
		opts.Executor = workflow.NewExecutor(workflow.WithLogger(opts.Logger))
	}
	return &Service{
		registry:         opts.Registry,
		executor:         opts.Executor,
		definitions:      opts.Definitions,
		executions:       opts.Executions,
		log:              opts.Logger,
		executionTimeout: opts.ExecutionTimeout,
	}, nil
}

// build resolves and validates a definition.
func (s *Service) build(def *workflow.Definition) (*workflow.Workflow, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: definition is nil", ErrInvalidDefinition)
	}
	wf, err := def.Build(s.registry)
	if err != nil {
		return nil, &InvalidDefinitionError{Name: def.Name(), Err: err}
	}
	result := wf.Validate()
	if !result.Valid {
		return nil, &InvalidDefinitionError{Name: def.Name(), Violations: result.Violations, Err: result.Err(def.Name())}
	}
	return wf, nil
}

// ValidateDefinition builds def and validates the graph without storing it.
// Problems are reported in the result; an error is returned only when the
// definition cannot be built at all.
func (s *Service) ValidateDefinition(def *workflow.Definition) (workflow.ValidationResult, error) {
	_, err := s.build(def)
	var invalid *InvalidDefinitionError
	switch {
	case err == nil:
		return workflow.ValidationResult{Valid: true}, nil
	case errors.As(err, &invalid) && len(invalid.Violations) > 0:
		return workflow.ValidationResult{Violations: invalid.Violations}, nil
	default:
		return workflow.ValidationResult{}, err
	}
}

// SaveDefinition stores def after checking that it builds into a valid
// workflow.
func (s *Service) SaveDefinition(ctx context.Context, def *workflow.Definition) error {
	if _, err := s.build(def); err != nil {
		return err
	}
	if err := s.definitions.Save(ctx, def); err != nil {
		return fmt.Errorf("failed to save definition %q: %w", def.Name(), err)
	}
	s.log.Info(def.Name(), "", "Workflow definition saved", map[string]interface{}{
		"blocks": len(def.Spec.Blocks),
		"wires":  len(def.Spec.Wires),
	})
	return nil
}

func (s *Service) GetDefinition(ctx context.Context, name string) (*workflow.Definition, error) {
	return s.definitions.Get(ctx, name)
}

func (s *Service) ListDefinitions(ctx context.Context) ([]*workflow.Definition, error) {
	return s.definitions.List(ctx)
}

func (s *Service) DeleteDefinition(ctx context.Context, name string) error {
	if err := s.definitions.Delete(ctx, name); err != nil {
		return err
	}
	s.log.Info(name, "", "Workflow definition deleted", nil)
	return nil
}

// LoadDirectory saves every *.yaml and *.yml definition in dir, in file
// name order. It stops at the first file that fails.
func (s *Service) LoadDirectory(ctx context.Context, dir string) (int, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return 0, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return 0, fmt.Errorf("failed to read definitions directory: %w", err)
		}
	}
	sort.Strings(files)

	for i, path := range files {
		def, err := workflow.LoadDefinitionFile(path)
		if err != nil {
			return i, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
		}
		if err := s.SaveDefinition(ctx, def); err != nil {
			return i, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return len(files), nil
}

// Execute runs the stored definition name with params and records the
// execution. A failed run still returns its record along with the error.
func (s *Service) Execute(ctx context.Context, name string, params map[string]any) (*workflow.Execution, error) {
	def, err := s.definitions.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	wf, err := s.build(def)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if s.executionTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.executionTimeout)
		defer cancel()
	}

	exec, runErr := s.executor.Run(runCtx, wf, params)
	if exec == nil {
		return nil, runErr
	}

	// Persist with the caller's context so a run that hit the timeout is
	// still recorded.
	if err := s.executions.SaveExecution(ctx, exec); err != nil {
		s.log.Error(name, exec.ID, "Failed to save execution record", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return exec, runErr
}

func (s *Service) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	return s.executions.GetExecution(ctx, id)
}

func (s *Service) ListExecutions(ctx context.Context, opts storage.ListOptions) ([]workflow.Summary, int, error) {
	return s.executions.ListExecutions(ctx, opts)
}

func (s *Service) DeleteExecution(ctx context.Context, id string) error {
	return s.executions.DeleteExecution(ctx, id)
}

// BlockTypes lists the registered block types.
func (s *Service) BlockTypes() []workflow.BlockTypeInfo {
	return s.registry.Types()
}

// Health checks the execution store.
func (s *Service) Health(ctx context.Context) error {
	return s.executions.Ping(ctx)
}
