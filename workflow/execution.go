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
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus represents the status of a workflow run
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// BlockStatus represents the status of one block within a run
type BlockStatus string

const (
	BlockStatusPending   BlockStatus = "pending"
	BlockStatusRunning   BlockStatus = "running"
	BlockStatusCompleted BlockStatus = "completed"
	BlockStatusFailed    BlockStatus = "failed"
	// BlockStatusCancelled marks a block that was in flight when the run was
	// cancelled.
	BlockStatusCancelled BlockStatus = "cancelled"
	// BlockStatusSkipped marks a block that never started because the run
	// stopped first.
	BlockStatusSkipped BlockStatus = "skipped"
)

// BlockExecution records the outcome of one block in a run.
type BlockExecution struct {
	BlockID     string      `json:"block_id"`
	BlockName   string      `json:"block_name"`
	BlockType   string      `json:"block_type,omitempty"`
	Status      BlockStatus `json:"status"`
	Attempts    int         `json:"attempts"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	DurationMs  int64       `json:"duration_ms"`
	Error       string      `json:"error,omitempty"`
	Outputs     Values      `json:"outputs,omitempty"`
}

// Execution is the record of one workflow run.
type Execution struct {
	ID           string           `json:"id"`
	WorkflowName string           `json:"workflow_name"`
	Status       ExecutionStatus  `json:"status"`
	Params       map[string]any   `json:"params,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	DurationMs   int64            `json:"duration_ms"`
	Error        string           `json:"error,omitempty"`
	Blocks       []BlockExecution `json:"blocks"`

	// Outputs holds the values of completed blocks no wire reads from,
	// keyed by block id. These are the results of the run.
	Outputs map[string]Values `json:"outputs,omitempty"`
}

// NewExecution creates a running execution record with a fresh id.
func NewExecution(workflowName string, params map[string]any) *Execution {
	return &Execution{
		ID:           uuid.New().String(),
		WorkflowName: workflowName,
		Status:       ExecutionStatusRunning,
		Params:       params,
		StartedAt:    time.Now().UTC(),
	}
}

// MarkCompleted marks the execution as completed
func (e *Execution) MarkCompleted() {
	now := time.Now().UTC()
	e.Status = ExecutionStatusCompleted
	e.CompletedAt = &now
	e.DurationMs = now.Sub(e.StartedAt).Milliseconds()
}

// MarkFailed marks the execution as failed with an error message
func (e *Execution) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	e.Status = ExecutionStatusFailed
	e.CompletedAt = &now
	e.DurationMs = now.Sub(e.StartedAt).Milliseconds()
	e.Error = errMsg
}

// BlockResult returns the record of the block with the given id.
func (e *Execution) BlockResult(blockID string) (BlockExecution, bool) {
	for _, b := range e.Blocks {
		if b.BlockID == blockID {
			return b, true
		}
	}
	return BlockExecution{}, false
}

// Output returns a value produced by a block during the run.
func (e *Execution) Output(blockID, port string) (any, bool) {
	b, ok := e.BlockResult(blockID)
	if !ok || b.Outputs == nil {
		return nil, false
	}
	v, ok := b.Outputs[port]
	return v, ok
}

// Summary is a compact view of an execution used by listings.
type Summary struct {
	ID           string          `json:"id"`
	WorkflowName string          `json:"workflow_name"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	BlockCount   int             `json:"block_count"`
	FailedBlocks int             `json:"failed_blocks"`
	Error        string          `json:"error,omitempty"`
}

// Summarize builds the listing view of an execution.
func (e *Execution) Summarize() Summary {
	s := Summary{
		ID:           e.ID,
		WorkflowName: e.WorkflowName,
		Status:       e.Status,
		StartedAt:    e.StartedAt,
		CompletedAt:  e.CompletedAt,
		DurationMs:   e.DurationMs,
		BlockCount:   len(e.Blocks),
		Error:        e.Error,
	}
	for _, b := range e.Blocks {
		if b.Status == BlockStatusFailed {
			s.FailedBlocks++
		}
	}
	return s
}
