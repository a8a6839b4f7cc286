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

import "fmt"

// Wire is a directed connection from an output port of one block to an
// input port of another. A wire references its blocks without owning them
// and never changes after construction.
type Wire struct {
	source       *Block
	sourceOutput string
	target       *Block
	targetInput  string
}

// NewWire connects source.sourceOutput to target.targetInput. Both ports
// must exist and carry compatible data types.
func NewWire(source *Block, sourceOutput string, target *Block, targetInput string) (*Wire, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("wire %s -> %s: source and target blocks are required", sourceOutput, targetInput)
	}
	if err := checkWirePorts(source, sourceOutput, target, targetInput); err != nil {
		return nil, err
	}
	return &Wire{
		source:       source,
		sourceOutput: sourceOutput,
		target:       target,
		targetInput:  targetInput,
	}, nil
}

// MustWire is like NewWire but panics on error.
func MustWire(source *Block, sourceOutput string, target *Block, targetInput string) *Wire {
	w, err := NewWire(source, sourceOutput, target, targetInput)
	if err != nil {
		panic(err)
	}
	return w
}

func checkWirePorts(source *Block, sourceOutput string, target *Block, targetInput string) error {
	out, err := source.GetOutput(sourceOutput)
	if err != nil {
		return err
	}
	in, err := target.GetInput(targetInput)
	if err != nil {
		return err
	}
	if !out.DataType.CompatibleWith(in.DataType) {
		return &PortTypeMismatchError{
			SourceBlock: source.label(),
			SourcePort:  sourceOutput,
			SourceType:  out.DataType,
			TargetBlock: target.label(),
			TargetPort:  targetInput,
			TargetType:  in.DataType,
		}
	}
	return nil
}

// Source returns the block producing the value.
func (w *Wire) Source() *Block { return w.source }

// SourceOutput returns the name of the source output port.
func (w *Wire) SourceOutput() string { return w.sourceOutput }

// Target returns the block consuming the value.
func (w *Wire) Target() *Block { return w.target }

// TargetInput returns the name of the target input port.
func (w *Wire) TargetInput() string { return w.targetInput }

// String returns "source.port -> target.port" using block ids.
func (w *Wire) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", blockRef(w.source), w.sourceOutput, blockRef(w.target), w.targetInput)
}

func blockRef(b *Block) string {
	if b == nil {
		return "<nil>"
	}
	return b.id
}
