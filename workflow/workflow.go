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
	"sync"
)

// State is the lifecycle state of a workflow.
type State string

const (
	StateUnvalidated State = "unvalidated"
	StateValid       State = "valid"
	StateExecuting   State = "executing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Workflow owns an ordered set of blocks and the wires between them.
// Declaration order is kept and used as the tie-break for topological
// ordering.
type Workflow struct {
	mu     sync.RWMutex
	name   string
	blocks []*Block
	wires  []*Wire
	state  State
}

// New creates an unvalidated workflow from already-constructed blocks and
// wires.
func New(name string, blocks []*Block, wires []*Wire) *Workflow {
	return &Workflow{
		name:   name,
		blocks: append([]*Block(nil), blocks...),
		wires:  append([]*Wire(nil), wires...),
		state:  StateUnvalidated,
	}
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// State returns the current lifecycle state.
func (w *Workflow) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Blocks returns the member blocks in declaration order.
func (w *Workflow) Blocks() []*Block {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*Block(nil), w.blocks...)
}

// Wires returns the wires in declaration order.
func (w *Workflow) Wires() []*Wire {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*Wire(nil), w.wires...)
}

// Block returns the member block with the given id.
func (w *Workflow) Block(id string) (*Block, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, b := range w.blocks {
		if b.id == id {
			return b, true
		}
	}
	return nil, false
}

// AddBlock appends a block. The same block instance cannot be added twice.
func (w *Workflow) AddBlock(b *Block) error {
	if b == nil {
		return fmt.Errorf("workflow %q: cannot add nil block", w.name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.mutableLocked(); err != nil {
		return err
	}
	for _, existing := range w.blocks {
		if existing == b {
			return &DuplicateBlockError{Block: b.id}
		}
	}
	w.blocks = append(w.blocks, b)
	w.state = StateUnvalidated
	return nil
}

// AddWire appends a wire. Membership and fan-in are checked by Validate.
func (w *Workflow) AddWire(wire *Wire) error {
	if wire == nil {
		return fmt.Errorf("workflow %q: cannot add nil wire", w.name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.mutableLocked(); err != nil {
		return err
	}
	w.wires = append(w.wires, wire)
	w.state = StateUnvalidated
	return nil
}

// Connect builds a wire between two member blocks and adds it.
func (w *Workflow) Connect(source *Block, sourceOutput string, target *Block, targetInput string) (*Wire, error) {
	wire, err := NewWire(source, sourceOutput, target, targetInput)
	if err != nil {
		return nil, err
	}
	if err := w.AddWire(wire); err != nil {
		return nil, err
	}
	return wire, nil
}

// RemoveBlock removes a block and every wire that references it. The
// removed wires are returned. Removing a block that is not a member is a
// no-op.
func (w *Workflow) RemoveBlock(b *Block) ([]*Wire, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.mutableLocked(); err != nil {
		return nil, err
	}

	idx := -1
	for i, existing := range w.blocks {
		if existing == b {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}
	w.blocks = append(w.blocks[:idx], w.blocks[idx+1:]...)

	var removed []*Wire
	kept := w.wires[:0]
	for _, wire := range w.wires {
		if wire.source == b || wire.target == b {
			removed = append(removed, wire)
			continue
		}
		kept = append(kept, wire)
	}
	for i := len(kept); i < len(w.wires); i++ {
		w.wires[i] = nil
	}
	w.wires = kept
	w.state = StateUnvalidated
	return removed, nil
}

// RemoveWire removes a wire. It reports whether the wire was a member.
func (w *Workflow) RemoveWire(wire *Wire) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.mutableLocked(); err != nil {
		return false, err
	}
	for i, existing := range w.wires {
		if existing == wire {
			w.wires = append(w.wires[:i], w.wires[i+1:]...)
			w.state = StateUnvalidated
			return true, nil
		}
	}
	return false, nil
}

func (w *Workflow) mutableLocked() error {
	if w.state == StateExecuting {
		return ErrWorkflowExecuting
	}
	return nil
}

// beginExecution moves a valid workflow to executing. A completed or failed
// workflow is re-armed first since its structure has not changed.
func (w *Workflow) beginExecution() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case StateValid, StateCompleted, StateFailed:
		w.state = StateExecuting
		return nil
	case StateExecuting:
		return ErrWorkflowExecuting
	default:
		return fmt.Errorf("%w: cannot execute from %s", ErrInvalidState, w.state)
	}
}

func (w *Workflow) finishExecution(ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateExecuting {
		return
	}
	if ok {
		w.state = StateCompleted
	} else {
		w.state = StateFailed
	}
}
