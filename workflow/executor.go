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
	"container/heap"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"axonflow/flowgraph/shared/logger"
)

// DefaultMaxParallel is the default number of blocks run at the same time.
const DefaultMaxParallel = 5

// FailurePolicy decides what happens to in-flight blocks once a block fails.
type FailurePolicy string

const (
	// CancelInFlight cancels the run context on the first failure. Blocks
	// already running observe the cancellation; nothing new is scheduled.
	CancelInFlight FailurePolicy = "cancel_in_flight"
	// DrainInFlight stops scheduling on the first failure but lets running
	// blocks finish.
	DrainInFlight FailurePolicy = "drain_in_flight"
)

// Valid reports whether p is a known policy.
func (p FailurePolicy) Valid() bool {
	return p == CancelInFlight || p == DrainInFlight
}

// Executor runs workflows. Ready blocks run concurrently on a bounded pool;
// a block starts only after every block feeding it has completed and its
// wire values have been delivered. An Executor holds no per-run state and
// may run several workflows at once.
type Executor struct {
	maxParallel   int
	failurePolicy FailurePolicy
	observers     []Observer
	log           *logger.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxParallel bounds the number of blocks running at the same time.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithFailurePolicy sets the in-flight handling on failure.
func WithFailurePolicy(p FailurePolicy) ExecutorOption {
	return func(e *Executor) {
		if p.Valid() {
			e.failurePolicy = p
		}
	}
}

// WithObserver adds an observer notified of execution events.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithLogger sets the logger handed to processors through RunContext.
func WithLogger(l *logger.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		maxParallel:   DefaultMaxParallel,
		failurePolicy: CancelInFlight,
		log:           logger.New("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxParallel returns the concurrency bound.
func (e *Executor) MaxParallel() int { return e.maxParallel }

// FailurePolicy returns the configured failure policy.
func (e *Executor) FailurePolicy() FailurePolicy { return e.failurePolicy }

type blockResult struct {
	index    int
	outputs  Values
	attempts int
	started  time.Time
	finished time.Time
	err      error
}

// run holds the state of one execution. Only the scheduling goroutine
// touches it; workers communicate through the results channel.
type run struct {
	exec       *Execution
	rc         RunContext
	g          *graph
	incoming   [][]*Wire
	outgoing   [][]*Wire
	pending    []int
	wireValues map[*Wire]any
	records    []BlockExecution
	rank       []int // position of each block in topological order
}

// Run executes wf with the given run parameters. An unvalidated workflow is
// validated first; a workflow with violations is rejected with a
// *ValidationError and no execution record.
//
// On success the execution record and a nil error are returned. On failure
// the record is still returned together with the first error, normally a
// *BlockExecutionError.
func (e *Executor) Run(ctx context.Context, wf *Workflow, params map[string]any) (*Execution, error) {
	if wf.State() == StateUnvalidated {
		if result := wf.Validate(); !result.Valid {
			return nil, result.Err(wf.Name())
		}
	}
	if err := wf.beginExecution(); err != nil {
		return nil, err
	}

	blocks, wires := wf.Blocks(), wf.Wires()
	g := buildGraph(blocks, wires)
	order, cycleErr := g.order()
	if cycleErr != nil {
		wf.finishExecution(false)
		return nil, cycleErr
	}

	exec := NewExecution(wf.Name(), params)
	r := &run{
		exec: exec,
		rc: RunContext{
			ExecutionID:  exec.ID,
			WorkflowName: exec.WorkflowName,
			Params:       params,
			Logger:       e.log,
		},
		g:          g,
		incoming:   make([][]*Wire, len(blocks)),
		outgoing:   make([][]*Wire, len(blocks)),
		pending:    make([]int, len(blocks)),
		wireValues: make(map[*Wire]any, len(wires)),
		records:    make([]BlockExecution, len(blocks)),
		rank:       make([]int, len(blocks)),
	}
	for pos, i := range order {
		r.rank[i] = pos
	}
	for _, w := range wires {
		from, to := g.index[w.source], g.index[w.target]
		r.outgoing[from] = append(r.outgoing[from], w)
		r.incoming[to] = append(r.incoming[to], w)
	}
	for i, b := range blocks {
		r.pending[i] = len(g.pred[i])
		r.records[i] = BlockExecution{
			BlockID:   b.id,
			BlockName: b.name,
			BlockType: b.blockType,
			Status:    BlockStatusPending,
		}
	}

	e.notifyWorkflowStarted(WorkflowEvent{ExecutionID: exec.ID, WorkflowName: exec.WorkflowName, Status: exec.Status})

	runErr := e.schedule(ctx, r)

	exec.Blocks = make([]BlockExecution, 0, len(order))
	for _, i := range order {
		rec := r.records[i]
		if rec.Status == BlockStatusPending {
			rec.Status = BlockStatusSkipped
			e.notifyBlockFinished(BlockEvent{
				ExecutionID:  exec.ID,
				WorkflowName: exec.WorkflowName,
				Block:        r.g.blocks[i],
				Result:       rec,
			})
		}
		exec.Blocks = append(exec.Blocks, rec)
		if rec.Status == BlockStatusCompleted && len(r.outgoing[i]) == 0 && len(rec.Outputs) > 0 {
			if exec.Outputs == nil {
				exec.Outputs = make(map[string]Values)
			}
			exec.Outputs[rec.BlockID] = rec.Outputs
		}
	}

	if runErr != nil {
		exec.MarkFailed(runErr.Error())
	} else {
		exec.MarkCompleted()
	}
	wf.finishExecution(runErr == nil)

	e.notifyWorkflowFinished(WorkflowEvent{
		ExecutionID:  exec.ID,
		WorkflowName: exec.WorkflowName,
		Status:       exec.Status,
		Duration:     time.Duration(exec.DurationMs) * time.Millisecond,
		Err:          runErr,
	})
	return exec, runErr
}

// schedule dispatches ready blocks until nothing is running and nothing
// more may start. It returns the first failure.
func (e *Executor) schedule(ctx context.Context, r *run) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan blockResult)
	ready := &rankHeap{rank: r.rank}
	for i := range r.pending {
		if r.pending[i] == 0 {
			heap.Push(ready, i)
		}
	}

	var firstErr error
	stopping := false
	running := 0

	for {
		if !stopping && ctx.Err() != nil {
			stopping = true
			firstErr = fmt.Errorf("workflow %q cancelled: %w", r.exec.WorkflowName, ctx.Err())
		}

		for !stopping && ready.Len() > 0 && running < e.maxParallel {
			i := heap.Pop(ready).(int)
			block := r.g.blocks[i]
			inputs := r.collectInputs(i)

			now := time.Now().UTC()
			r.records[i].Status = BlockStatusRunning
			r.records[i].StartedAt = &now
			e.notifyBlockStarted(BlockEvent{ExecutionID: r.exec.ID, WorkflowName: r.exec.WorkflowName, Block: block})

			running++
			rc := r.rc
			go func() {
				results <- e.runBlock(runCtx, rc, i, block, inputs)
			}()
		}

		if running == 0 {
			break
		}

		res := <-results
		running--
		block := r.g.blocks[res.index]

		if res.err == nil {
			res.outputs, res.err = r.checkOutputs(res.index, res.outputs)
		}

		if !stopping && ctx.Err() != nil {
			stopping = true
			firstErr = fmt.Errorf("workflow %q cancelled: %w", r.exec.WorkflowName, ctx.Err())
		}

		rec := &r.records[res.index]
		completed := res.finished
		rec.CompletedAt = &completed
		rec.Attempts = res.attempts
		rec.DurationMs = res.finished.Sub(res.started).Milliseconds()

		if res.err != nil {
			blockErr := &BlockExecutionError{
				BlockID:   block.id,
				BlockName: block.name,
				BlockType: block.blockType,
				Attempts:  res.attempts,
				Upstream:  r.upstream(res.index),
				Err:       res.err,
			}
			rec.Error = blockErr.Error()
			if stopping && r.cancelledBy(ctx, res.err) {
				rec.Status = BlockStatusCancelled
			} else {
				rec.Status = BlockStatusFailed
			}
			if firstErr == nil {
				firstErr = blockErr
			}
			if !stopping {
				stopping = true
				if e.failurePolicy == CancelInFlight {
					cancel()
				}
			}
		} else {
			rec.Status = BlockStatusCompleted
			rec.Outputs = res.outputs
			if !stopping {
				r.deliver(res.index, res.outputs, ready)
			}
		}

		e.notifyBlockFinished(BlockEvent{
			ExecutionID:  r.exec.ID,
			WorkflowName: r.exec.WorkflowName,
			Block:        block,
			Result:       *rec,
			Duration:     res.finished.Sub(res.started),
		})
	}

	return firstErr
}

// cancelledBy reports whether err comes from the run being stopped rather
// than from the block itself. A block's own timeout is a failure.
func (r *run) cancelledBy(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded)
}

// collectInputs gathers wire values and defaults for block i. Slice and map
// values are copied so blocks reading the same output never share storage.
func (r *run) collectInputs(i int) Values {
	block := r.g.blocks[i]
	inputs := make(Values, len(block.inputs))
	for _, w := range r.incoming[i] {
		if v, ok := r.wireValues[w]; ok {
			inputs[w.targetInput] = cloneValue(v)
		}
	}
	for _, in := range block.inputs {
		if _, ok := inputs[in.Name]; !ok && in.HasDefault() {
			inputs[in.Name] = cloneValue(in.Default)
		}
	}
	return inputs
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case []string:
		return slices.Clone(v)
	case []float64:
		return slices.Clone(v)
	case []byte:
		return slices.Clone(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// checkOutputs keeps declared outputs in canonical form and rejects values
// of the wrong type or missing values a downstream wire reads.
func (r *run) checkOutputs(i int, produced Values) (Values, error) {
	block := r.g.blocks[i]
	outputs := make(Values, len(block.outputs))
	for _, out := range block.outputs {
		v, ok := produced[out.Name]
		if !ok || v == nil {
			continue
		}
		canonical, ok := out.DataType.Coerce(v)
		if !ok {
			return nil, fmt.Errorf("%w: output %q expects %s, got %T", ErrOutputTypeMismatch, out.Name, out.DataType, v)
		}
		outputs[out.Name] = canonical
	}
	for _, w := range r.outgoing[i] {
		if _, ok := outputs[w.sourceOutput]; !ok {
			return nil, fmt.Errorf("%w: output %q is read by %s", ErrMissingOutput, w.sourceOutput, w.String())
		}
	}
	return outputs, nil
}

// deliver writes each outgoing wire's value once and releases successors
// whose last upstream block just completed.
func (r *run) deliver(i int, outputs Values, ready *rankHeap) {
	for _, w := range r.outgoing[i] {
		r.wireValues[w] = outputs[w.sourceOutput]
	}
	for _, next := range r.g.succ[i] {
		r.pending[next]--
		if r.pending[next] == 0 {
			heap.Push(ready, next)
		}
	}
}

func (r *run) upstream(i int) []string {
	if len(r.incoming[i]) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.incoming[i]))
	for _, w := range r.incoming[i] {
		out = append(out, fmt.Sprintf("%s.%s -> %s", w.source.label(), w.sourceOutput, w.targetInput))
	}
	return out
}

// runBlock invokes the processor, applying the block timeout and retry
// policy. Cancellation of ctx ends the attempts.
func (e *Executor) runBlock(ctx context.Context, rc RunContext, index int, block *Block, inputs Values) blockResult {
	res := blockResult{index: index, started: time.Now().UTC()}

	if block.processor == nil {
		res.err = Permanent(ErrNilProcessor)
		res.finished = time.Now().UTC()
		return res
	}

	policy := block.retry.normalized()
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.backoff(attempt - 1)
			e.log.Debug(rc.WorkflowName, rc.ExecutionID, "Retrying block", map[string]interface{}{
				"block_id": block.id,
				"attempt":  attempt + 1,
				"delay_ms": delay.Milliseconds(),
			})
			select {
			case <-ctx.Done():
				res.err = ctx.Err()
				res.finished = time.Now().UTC()
				return res
			case <-time.After(delay):
			}
		}

		res.attempts++
		rc.Attempt = res.attempts
		res.outputs, res.err = invoke(ctx, &rc, block, inputs)
		if res.err == nil || ctx.Err() != nil || IsPermanent(res.err) {
			break
		}
	}
	res.finished = time.Now().UTC()
	return res
}

// invoke runs one attempt with the block timeout and converts panics into
// errors.
func invoke(ctx context.Context, rc *RunContext, block *Block, inputs Values) (out Values, err error) {
	callCtx := ctx
	if block.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, block.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = fmt.Errorf("processor panicked: %v", p)
		}
	}()

	attemptInputs := make(Values, len(inputs))
	for k, v := range inputs {
		attemptInputs[k] = v
	}

	out, err = block.processor.Process(callCtx, rc, attemptInputs)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", block.timeout, err)
	}
	return out, err
}

func (e *Executor) notifyWorkflowStarted(ev WorkflowEvent) {
	for _, o := range e.observers {
		o.WorkflowStarted(ev)
	}
}

func (e *Executor) notifyBlockStarted(ev BlockEvent) {
	for _, o := range e.observers {
		o.BlockStarted(ev)
	}
}

func (e *Executor) notifyBlockFinished(ev BlockEvent) {
	for _, o := range e.observers {
		o.BlockFinished(ev)
	}
}

func (e *Executor) notifyWorkflowFinished(ev WorkflowEvent) {
	for _, o := range e.observers {
		o.WorkflowFinished(ev)
	}
}

// rankHeap orders ready blocks by topological position.
type rankHeap struct {
	items []int
	rank  []int
}

func (h *rankHeap) Len() int           { return len(h.items) }
func (h *rankHeap) Less(i, j int) bool { return h.rank[h.items[i]] < h.rank[h.items[j]] }
func (h *rankHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *rankHeap) Push(x any)         { h.items = append(h.items, x.(int)) }
func (h *rankHeap) Pop() any {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}
