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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for workflow lifecycle and registry operations.
var (
	// ErrWorkflowExecuting is returned when a workflow is mutated or started
	// while a run is in progress.
	ErrWorkflowExecuting = errors.New("workflow is executing")

	// ErrInvalidState is returned when the workflow state does not allow the
	// requested transition.
	ErrInvalidState = errors.New("invalid workflow state")

	// ErrUnknownBlockType is returned when no factory is registered for a type.
	ErrUnknownBlockType = errors.New("unknown block type")

	// ErrDuplicateBlockType is returned when a block type is registered twice.
	ErrDuplicateBlockType = errors.New("block type already registered")

	// ErrOutputTypeMismatch is wrapped by BlockExecutionError when a processor
	// produces a value that does not conform to the declared output type.
	ErrOutputTypeMismatch = errors.New("output value does not match declared type")

	// ErrMissingOutput is wrapped by BlockExecutionError when a processor does
	// not produce an output that a downstream wire reads.
	ErrMissingOutput = errors.New("declared output not produced")

	// ErrNilProcessor is wrapped by BlockExecutionError when a block without a
	// processor is executed.
	ErrNilProcessor = errors.New("block has no processor")
)

// Direction identifies which side of a block a port lives on.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// PortNotFoundError is returned when a referenced port name does not exist
// on the given block.
type PortNotFoundError struct {
	Block     string
	Port      string
	Direction Direction
}

func (e *PortNotFoundError) Error() string {
	return fmt.Sprintf("block %q has no %s port %q", e.Block, e.Direction, e.Port)
}

// PortTypeMismatchError is returned when a wire connects ports whose data
// types are not compatible.
type PortTypeMismatchError struct {
	SourceBlock string
	SourcePort  string
	SourceType  DataType
	TargetBlock string
	TargetPort  string
	TargetType  DataType
}

func (e *PortTypeMismatchError) Error() string {
	return fmt.Sprintf("cannot wire %s.%s (%s) to %s.%s (%s)",
		e.SourceBlock, e.SourcePort, e.SourceType,
		e.TargetBlock, e.TargetPort, e.TargetType)
}

// DuplicateInputBindingError is reported when more than one wire targets
// the same input port.
type DuplicateInputBindingError struct {
	Block string
	Port  string
	Wires int
}

func (e *DuplicateInputBindingError) Error() string {
	return fmt.Sprintf("input %s.%s is bound by %d wires, at most one is allowed", e.Block, e.Port, e.Wires)
}

// CyclicGraphError is returned when no topological order exists. Cycle
// lists block identifiers along one detected cycle, first block repeated
// at the end.
type CyclicGraphError struct {
	Cycle []string
}

func (e *CyclicGraphError) Error() string {
	if len(e.Cycle) == 0 {
		return "workflow graph contains a cycle"
	}
	return "workflow graph contains a cycle: " + strings.Join(e.Cycle, " -> ")
}

// DanglingReferenceError is reported when a wire endpoint is not a member of
// the workflow.
type DanglingReferenceError struct {
	Wire  string
	Block string
	End   string // "source" or "target"
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("wire %s references %s block %q which is not part of the workflow", e.Wire, e.End, e.Block)
}

// UnboundInputError is reported for a required input port with no incoming
// wire and no default value.
type UnboundInputError struct {
	Block string
	Port  string
}

func (e *UnboundInputError) Error() string {
	return fmt.Sprintf("required input %s.%s has no incoming wire and no default", e.Block, e.Port)
}

// DuplicatePortError is returned when a block declares two ports with the
// same name in one direction.
type DuplicatePortError struct {
	Block     string
	Port      string
	Direction Direction
}

func (e *DuplicatePortError) Error() string {
	return fmt.Sprintf("block %q declares %s port %q more than once", e.Block, e.Direction, e.Port)
}

// InvalidPortError is returned when a port declaration is malformed.
type InvalidPortError struct {
	Block  string
	Port   string
	Reason string
}

func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("block %q port %q: %s", e.Block, e.Port, e.Reason)
}

// DuplicateBlockError is reported when a block instance or block id appears
// more than once in a workflow.
type DuplicateBlockError struct {
	Block string
}

func (e *DuplicateBlockError) Error() string {
	return fmt.Sprintf("block %q appears more than once in the workflow", e.Block)
}

// BlockExecutionError wraps a failure raised while executing a block.
type BlockExecutionError struct {
	BlockID   string
	BlockName string
	BlockType string
	Attempts  int
	// Upstream lists the wires that fed this block, as "block.port -> input".
	Upstream []string
	Err      error
}

func (e *BlockExecutionError) Error() string {
	msg := fmt.Sprintf("block %q (%s) failed", e.BlockName, e.BlockID)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if len(e.Upstream) > 0 {
		msg += " [inputs: " + strings.Join(e.Upstream, ", ") + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BlockExecutionError) Unwrap() error {
	return e.Err
}

// ValidationError carries every violation found by Validate. It unwraps to
// the individual violation errors so errors.As can locate a specific kind.
type ValidationError struct {
	Workflow   string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Message)
	}
	return fmt.Sprintf("workflow %q is invalid: %s", e.Workflow, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Violations))
	for _, v := range e.Violations {
		errs = append(errs, v.Err)
	}
	return errs
}
