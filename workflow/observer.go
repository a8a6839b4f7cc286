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

	"axonflow/flowgraph/shared/logger"
)

// WorkflowEvent describes the start or end of a run.
type WorkflowEvent struct {
	ExecutionID  string
	WorkflowName string
	Status       ExecutionStatus
	Duration     time.Duration
	Err          error
}

// BlockEvent describes the start or end of one block in a run. Result is
// filled in for BlockFinished.
type BlockEvent struct {
	ExecutionID  string
	WorkflowName string
	Block        *Block
	Result       BlockExecution
	Duration     time.Duration
}

// Observer receives execution events. The executor delivers events for one
// run from a single goroutine, in order.
type Observer interface {
	WorkflowStarted(WorkflowEvent)
	BlockStarted(BlockEvent)
	BlockFinished(BlockEvent)
	WorkflowFinished(WorkflowEvent)
}

// NopObserver implements Observer with no-ops. Embed it to implement a
// subset of the methods.
type NopObserver struct{}

func (NopObserver) WorkflowStarted(WorkflowEvent)  {}
func (NopObserver) BlockStarted(BlockEvent)        {}
func (NopObserver) BlockFinished(BlockEvent)       {}
func (NopObserver) WorkflowFinished(WorkflowEvent) {}

var _ Observer = NopObserver{}

// LogObserver writes execution events as structured log entries.
type LogObserver struct {
	log *logger.Logger
}

// NewLogObserver creates a LogObserver writing to log.
func NewLogObserver(log *logger.Logger) *LogObserver {
	return &LogObserver{log: log}
}

func (o *LogObserver) WorkflowStarted(ev WorkflowEvent) {
	o.log.Info(ev.WorkflowName, ev.ExecutionID, "Workflow execution started", nil)
}

func (o *LogObserver) BlockStarted(ev BlockEvent) {
	o.log.Debug(ev.WorkflowName, ev.ExecutionID, "Block started", map[string]interface{}{
		"block_id":   ev.Block.ID(),
		"block_name": ev.Block.Name(),
		"block_type": ev.Block.Type(),
	})
}

func (o *LogObserver) BlockFinished(ev BlockEvent) {
	fields := map[string]interface{}{
		"block_id":    ev.Block.ID(),
		"block_name":  ev.Block.Name(),
		"block_type":  ev.Block.Type(),
		"status":      string(ev.Result.Status),
		"attempts":    ev.Result.Attempts,
		"duration_ms": ev.Result.DurationMs,
	}
	switch ev.Result.Status {
	case BlockStatusFailed:
		fields["error"] = ev.Result.Error
		o.log.Error(ev.WorkflowName, ev.ExecutionID, "Block failed", fields)
		return
	case BlockStatusSkipped:
		o.log.Debug(ev.WorkflowName, ev.ExecutionID, "Block skipped", fields)
		return
	}
	o.log.Info(ev.WorkflowName, ev.ExecutionID, "Block finished", fields)
}

func (o *LogObserver) WorkflowFinished(ev WorkflowEvent) {
	fields := map[string]interface{}{"status": string(ev.Status)}
	if ev.Err != nil {
		fields["error"] = ev.Err.Error()
		o.log.Error(ev.WorkflowName, ev.ExecutionID, "Workflow execution failed", fields)
		return
	}
	o.log.InfoWithDuration(ev.WorkflowName, ev.ExecutionID, "Workflow execution completed",
		float64(ev.Duration.Milliseconds()), fields)
}

var _ Observer = (*LogObserver)(nil)
