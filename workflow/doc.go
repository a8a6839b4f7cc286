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

/*
Package workflow implements a typed dataflow graph and its concurrent
executor.

# Overview

A Block is a named processing unit with typed input and output ports. A
Wire connects one block's output port to another block's input port and
can only be built between ports with the same DataType. A Workflow owns an
ordered set of blocks and wires, validates the graph and produces a
deterministic topological order. The Executor runs the graph, starting each
block once every block feeding it has completed.

# Data Types

DataType is a closed set of tags (string, integer, float, boolean,
string_list, float_list, object, bytes). Compatibility is exact equality.
Values crossing a wire are converted to the canonical Go form of their tag,
so a processor can rely on string, int64, float64, []string and so on.

# Building a Workflow

	input := workflow.MustBlock("InputBlock", nil, []workflow.Output{
	    workflow.NewOutput("text", workflow.DataTypeString, "Input data"),
	}, workflow.WithProcessorFunc(readInput))

	upper := workflow.MustBlock("Upper", []workflow.Input{
	    workflow.NewInput("text", workflow.DataTypeString, "Text to convert"),
	}, []workflow.Output{
	    workflow.NewOutput("text", workflow.DataTypeString, "Converted text"),
	}, workflow.WithProcessorFunc(toUpper))

	wire, err := workflow.NewWire(input, "text", upper, "text")
	wf := workflow.New("uppercase", []*workflow.Block{input, upper}, []*workflow.Wire{wire})

# Validation

Validate collects every structural problem instead of stopping at the
first one: dangling wire endpoints, more than one wire into an input,
required inputs with neither a wire nor a default, and cycles. A clean
result moves the workflow from Unvalidated to Valid. Any structural change
moves it back to Unvalidated.

An input is satisfied without a wire when it is marked Optional or carries
a Default. Any other unwired input is reported as UnboundInputError.

# Execution

	exec, err := workflow.NewExecutor(workflow.WithMaxParallel(4)).Run(ctx, wf, params)

Blocks whose inputs are satisfied run concurrently, up to MaxParallel at a
time. Each wire carries a single value per run. With the default
CancelInFlight policy the first failing block cancels the run context.
Blocks still running see the cancellation, and blocks not yet started are
marked skipped. DrainInFlight lets running blocks finish instead. Either
way the workflow ends Failed and Run returns a *BlockExecutionError naming
the block.

Per-block timeouts and retry policies are applied around each processor
invocation. Errors wrapped with Permanent are not retried.

# Definitions and Registry

Definitions are YAML or JSON documents that name blocks by id and type.
Definition.Build resolves types through a Registry that the application
builds at startup. There is no global registry.
*/
package workflow
