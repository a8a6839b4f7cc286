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
	"context"
	"time"

	"github.com/google/uuid"

	"axonflow/flowgraph/shared/logger"
)

// RunContext carries run-wide values shared by every block of one execution.
type RunContext struct {
	ExecutionID  string
	WorkflowName string
	// Params are the caller-supplied run parameters. Source blocks read them
	// to inject external values into the graph.
	Params map[string]any
	Logger *logger.Logger
	// Attempt is the 1-based attempt number of the current invocation.
	Attempt int
}

// Param returns a run parameter.
func (rc *RunContext) Param(name string) (any, bool) {
	if rc == nil || rc.Params == nil {
		return nil, false
	}
	v, ok := rc.Params[name]
	return v, ok
}

// Processor is the execution hook of a block. It receives the values
// delivered to the block's inputs and returns values for its outputs.
type Processor interface {
	Process(ctx context.Context, rc *RunContext, inputs Values) (Values, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, rc *RunContext, inputs Values) (Values, error)

// Process calls f(ctx, rc, inputs).
func (f ProcessorFunc) Process(ctx context.Context, rc *RunContext, inputs Values) (Values, error) {
	return f(ctx, rc, inputs)
}

// Block is a named processing unit with typed input and output ports.
// Ports are fixed at construction; wires and workflows refer to a block by
// identity.
type Block struct {
	id          string
	name        string
	blockType   string
	inputs      []Input
	outputs     []Output
	inputIndex  map[string]int
	outputIndex map[string]int
	processor   Processor
	timeout     time.Duration
	retry       RetryPolicy
	config      map[string]any
}

// BlockOption configures a Block at construction.
type BlockOption func(*Block)

// WithID sets the block identifier. A UUID is generated otherwise.
func WithID(id string) BlockOption {
	return func(b *Block) {
		b.id = id
	}
}

// WithType records the registry type the block was created from.
func WithType(blockType string) BlockOption {
	return func(b *Block) {
		b.blockType = blockType
	}
}

// WithProcessor sets the execution hook.
func WithProcessor(p Processor) BlockOption {
	return func(b *Block) {
		b.processor = p
	}
}

// WithProcessorFunc sets a function as the execution hook.
func WithProcessorFunc(fn func(ctx context.Context, rc *RunContext, inputs Values) (Values, error)) BlockOption {
	return WithProcessor(ProcessorFunc(fn))
}

// WithTimeout bounds each processor invocation.
func WithTimeout(d time.Duration) BlockOption {
	return func(b *Block) {
		b.timeout = d
	}
}

// WithRetry sets the retry policy applied when the processor fails.
func WithRetry(p RetryPolicy) BlockOption {
	return func(b *Block) {
		b.retry = p
	}
}

// WithConfig attaches the configuration the block was created with. It is
// kept so the block can be serialized back into a definition.
func WithConfig(cfg map[string]any) BlockOption {
	return func(b *Block) {
		b.config = cfg
	}
}

// NewBlock creates a block. Port names must be unique per direction and
// every port must carry a supported data type.
func NewBlock(name string, inputs []Input, outputs []Output, opts ...BlockOption) (*Block, error) {
	b := &Block{
		name:        name,
		inputs:      append([]Input(nil), inputs...),
		outputs:     append([]Output(nil), outputs...),
		inputIndex:  make(map[string]int, len(inputs)),
		outputIndex: make(map[string]int, len(outputs)),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.id == "" {
		b.id = uuid.New().String()
	}

	for i, in := range b.inputs {
		if err := checkPort(b, in.Port); err != nil {
			return nil, err
		}
		if _, dup := b.inputIndex[in.Name]; dup {
			return nil, &DuplicatePortError{Block: b.label(), Port: in.Name, Direction: DirectionInput}
		}
		if in.HasDefault() {
			v, ok := in.DataType.Coerce(in.Default)
			if !ok {
				return nil, &InvalidPortError{Block: b.label(), Port: in.Name, Reason: "default value does not match data type " + string(in.DataType)}
			}
			b.inputs[i].Default = v
		}
		b.inputIndex[in.Name] = i
	}
	for i, out := range b.outputs {
		if err := checkPort(b, out.Port); err != nil {
			return nil, err
		}
		if _, dup := b.outputIndex[out.Name]; dup {
			return nil, &DuplicatePortError{Block: b.label(), Port: out.Name, Direction: DirectionOutput}
		}
		b.outputIndex[out.Name] = i
	}
	return b, nil
}

// MustBlock is like NewBlock but panics on error. Intended for static
// declarations and tests.
func MustBlock(name string, inputs []Input, outputs []Output, opts ...BlockOption) *Block {
	b, err := NewBlock(name, inputs, outputs, opts...)
	if err != nil {
		panic(err)
	}
	return b
}

func checkPort(b *Block, p Port) error {
	if p.Name == "" {
		return &InvalidPortError{Block: b.label(), Port: p.Name, Reason: "port name is required"}
	}
	if !p.DataType.Valid() {
		return &InvalidPortError{Block: b.label(), Port: p.Name, Reason: "unsupported data type " + string(p.DataType)}
	}
	return nil
}

// ID returns the block identifier.
func (b *Block) ID() string { return b.id }

// Name returns the human-readable block name.
func (b *Block) Name() string { return b.name }

// Type returns the registry type id, empty for hand-built blocks.
func (b *Block) Type() string { return b.blockType }

// Timeout returns the per-invocation timeout, zero when unbounded.
func (b *Block) Timeout() time.Duration { return b.timeout }

// Retry returns the block's retry policy.
func (b *Block) Retry() RetryPolicy { return b.retry }

// Processor returns the execution hook, nil when none was set.
func (b *Block) Processor() Processor { return b.processor }

// Config returns a copy of the configuration the block was created with.
func (b *Block) Config() map[string]any {
	if b.config == nil {
		return nil
	}
	out := make(map[string]any, len(b.config))
	for k, v := range b.config {
		out[k] = v
	}
	return out
}

// Inputs returns the input ports in declaration order.
func (b *Block) Inputs() []Input {
	return append([]Input(nil), b.inputs...)
}

// Outputs returns the output ports in declaration order.
func (b *Block) Outputs() []Output {
	return append([]Output(nil), b.outputs...)
}

// GetInput returns the named input port.
func (b *Block) GetInput(name string) (Input, error) {
	i, ok := b.inputIndex[name]
	if !ok {
		return Input{}, &PortNotFoundError{Block: b.label(), Port: name, Direction: DirectionInput}
	}
	return b.inputs[i], nil
}

// GetOutput returns the named output port.
func (b *Block) GetOutput(name string) (Output, error) {
	i, ok := b.outputIndex[name]
	if !ok {
		return Output{}, &PortNotFoundError{Block: b.label(), Port: name, Direction: DirectionOutput}
	}
	return b.outputs[i], nil
}

// IsSource reports whether the block has no inputs.
func (b *Block) IsSource() bool { return len(b.inputs) == 0 }

// IsSink reports whether the block has no outputs.
func (b *Block) IsSink() bool { return len(b.outputs) == 0 }

// label is the name used in error messages.
func (b *Block) label() string {
	if b.name != "" {
		return b.name
	}
	return b.id
}

// String returns "name(id)".
func (b *Block) String() string {
	return b.name + "(" + b.id + ")"
}
