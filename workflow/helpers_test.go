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
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"axonflow/flowgraph/shared/logger"
)

func strIn(name string) Input   { return NewInput(name, DataTypeString, "") }
func strOut(name string) Output { return NewOutput(name, DataTypeString, "") }

// constBlock emits value on output "out".
func constBlock(t *testing.T, id, value string) *Block {
	t.Helper()
	b, err := NewBlock(id, nil, []Output{strOut("out")}, WithID(id),
		WithProcessorFunc(func(ctx context.Context, rc *RunContext, in Values) (Values, error) {
			return Values{"out": value}, nil
		}))
	require.NoError(t, err)
	return b
}

// concatBlock joins its string inputs in declaration order on output "out".
func concatBlock(t *testing.T, id string, inputs ...string) *Block {
	t.Helper()
	ports := make([]Input, 0, len(inputs))
	for _, name := range inputs {
		ports = append(ports, strIn(name))
	}
	b, err := NewBlock(id, ports, []Output{strOut("out")}, WithID(id),
		WithProcessorFunc(func(ctx context.Context, rc *RunContext, in Values) (Values, error) {
			parts := make([]string, 0, len(inputs))
			for _, name := range inputs {
				parts = append(parts, in.String(name))
			}
			return Values{"out": strings.Join(parts, "+")}, nil
		}))
	require.NoError(t, err)
	return b
}

// passBlock has one input "in" and one output "out" and no processor.
func passBlock(t *testing.T, id string) *Block {
	t.Helper()
	b, err := NewBlock(id, []Input{strIn("in")}, []Output{strOut("out")}, WithID(id))
	require.NoError(t, err)
	return b
}

func ids(blocks []*Block) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.ID())
	}
	return out
}

func quietExecutor(opts ...ExecutorOption) *Executor {
	return NewExecutor(append([]ExecutorOption{WithLogger(logger.Discard("executor"))}, opts...)...)
}

// recordingObserver captures events for assertions.
type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []BlockExecution
	runs     []WorkflowEvent
}

func (o *recordingObserver) WorkflowStarted(ev WorkflowEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, ev)
}

func (o *recordingObserver) BlockStarted(ev BlockEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, ev.Block.ID())
}

func (o *recordingObserver) BlockFinished(ev BlockEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, ev.Result)
}

func (o *recordingObserver) WorkflowFinished(ev WorkflowEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, ev)
}
