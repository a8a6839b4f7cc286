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

import "errors"

// ViolationKind classifies a structural problem found by Validate.
type ViolationKind string

const (
	ViolationDuplicateBlock   ViolationKind = "duplicate_block"
	ViolationDanglingWire     ViolationKind = "dangling_reference"
	ViolationPortNotFound     ViolationKind = "port_not_found"
	ViolationTypeMismatch     ViolationKind = "port_type_mismatch"
	ViolationDuplicateBinding ViolationKind = "duplicate_input_binding"
	ViolationUnboundInput     ViolationKind = "unbound_input"
	ViolationCycle            ViolationKind = "cycle"
)

// Violation is one structural problem. WireIndex is the position of the
// offending wire, -1 when the violation is not about a single wire.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	Message   string        `json:"message"`
	BlockID   string        `json:"block_id,omitempty"`
	Port      string        `json:"port,omitempty"`
	WireIndex int           `json:"wire_index"`
	Err       error         `json:"-"`
}

// ValidationResult lists every violation found, in a deterministic order.
type ValidationResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Has reports whether a violation of the given kind was found.
func (r ValidationResult) Has(kind ViolationKind) bool {
	for _, v := range r.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// Err returns a *ValidationError when the result has violations.
func (r ValidationResult) Err(workflow string) error {
	if len(r.Violations) == 0 {
		return nil
	}
	return &ValidationError{Workflow: workflow, Violations: r.Violations}
}

// Validate checks the workflow structure and reports every problem rather
// than stopping at the first. A clean result moves the workflow to Valid.
// Validate does not modify the graph, so repeated calls on an unchanged
// workflow return equal results.
func (w *Workflow) Validate() ValidationResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := validateGraph(w.blocks, w.wires)
	if result.Valid && w.state == StateUnvalidated {
		w.state = StateValid
	}
	return result
}

type binding struct {
	block *Block
	port  string
}

func validateGraph(blocks []*Block, wires []*Wire) ValidationResult {
	var violations []Violation
	add := func(kind ViolationKind, blockID, port string, wireIndex int, err error) {
		violations = append(violations, Violation{
			Kind:      kind,
			Message:   err.Error(),
			BlockID:   blockID,
			Port:      port,
			WireIndex: wireIndex,
			Err:       err,
		})
	}

	members := make(map[*Block]bool, len(blocks))
	ids := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if members[b] || ids[b.id] {
			add(ViolationDuplicateBlock, b.id, "", -1, &DuplicateBlockError{Block: b.id})
			continue
		}
		members[b] = true
		ids[b.id] = true
	}

	bindings := make(map[binding]int)
	var bindingOrder []binding
	for i, wire := range wires {
		if wire == nil {
			continue
		}
		ok := true
		for _, end := range []struct {
			name  string
			block *Block
		}{{"source", wire.source}, {"target", wire.target}} {
			if end.block == nil || !members[end.block] {
				ok = false
				add(ViolationDanglingWire, blockRef(end.block), "", i,
					&DanglingReferenceError{Wire: wire.String(), Block: blockRef(end.block), End: end.name})
			}
		}
		if !ok {
			continue
		}

		if err := checkWirePorts(wire.source, wire.sourceOutput, wire.target, wire.targetInput); err != nil {
			var notFound *PortNotFoundError
			if errors.As(err, &notFound) {
				blockID := wire.source.id
				if notFound.Direction == DirectionInput {
					blockID = wire.target.id
				}
				add(ViolationPortNotFound, blockID, notFound.Port, i, err)
			} else {
				add(ViolationTypeMismatch, wire.target.id, wire.targetInput, i, err)
			}
			continue
		}

		key := binding{block: wire.target, port: wire.targetInput}
		if bindings[key] == 0 {
			bindingOrder = append(bindingOrder, key)
		}
		bindings[key]++
	}

	for _, key := range bindingOrder {
		if n := bindings[key]; n > 1 {
			add(ViolationDuplicateBinding, key.block.id, key.port, -1,
				&DuplicateInputBindingError{Block: key.block.label(), Port: key.port, Wires: n})
		}
	}

	for _, b := range blocks {
		if b == nil || !members[b] {
			continue
		}
		for _, in := range b.inputs {
			if bindings[binding{block: b, port: in.Name}] > 0 || in.Optional || in.HasDefault() {
				continue
			}
			add(ViolationUnboundInput, b.id, in.Name, -1, &UnboundInputError{Block: b.label(), Port: in.Name})
		}
	}

	if _, cycleErr := topologicalOrder(uniqueMembers(blocks, members), wires); cycleErr != nil {
		add(ViolationCycle, "", "", -1, cycleErr)
	}

	return ValidationResult{Valid: len(violations) == 0, Violations: violations}
}

// uniqueMembers drops nil and repeated blocks, keeping first occurrences.
func uniqueMembers(blocks []*Block, members map[*Block]bool) []*Block {
	seen := make(map[*Block]bool, len(blocks))
	out := make([]*Block, 0, len(blocks))
	for _, b := range blocks {
		if b == nil || !members[b] || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}
