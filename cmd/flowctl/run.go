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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"axonflow/flowgraph/blocks"
	"axonflow/flowgraph/llm"
	"axonflow/flowgraph/shared/logger"
	"axonflow/flowgraph/workflow"
)

// offlineDeps lets model blocks build without a model backend, for
// validation and for serving with models.provider none. Calling them fails.
var offlineDeps = blocks.Deps{
	Provider: offlineProvider{},
	Reranker: llm.RerankerFunc(func(ctx context.Context, req llm.ReRankRequest) (*llm.ReRankResponse, error) {
		return nil, blocks.ErrNoReranker
	}),
}

type offlineProvider struct{}

func (offlineProvider) Name() string { return "offline" }

func (offlineProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, blocks.ErrNoProvider
}

// errInvalid signals that a definition failed validation. The violations
// have already been printed.
var errInvalid = errors.New("workflow is invalid")

func newRegistry(deps blocks.Deps) (*workflow.Registry, error) {
	reg := workflow.NewRegistry(workflow.WithRegistryLogger(log.New(io.Discard, "", 0)))
	if err := blocks.RegisterBuiltins(reg, deps); err != nil {
		return nil, fmt.Errorf("failed to register blocks: %w", err)
	}
	return reg, nil
}

// loadWorkflow parses, builds and validates a definition file, printing
// any violations to w.
func loadWorkflow(w io.Writer, path string, reg *workflow.Registry) (*workflow.Workflow, error) {
	def, err := workflow.LoadDefinitionFile(path)
	if err != nil {
		return nil, err
	}
	wf, err := def.Build(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow %q: %w", def.Name(), err)
	}
	result := wf.Validate()
	if !result.Valid {
		fmt.Fprintf(w, "Workflow %s has %d problem(s):\n", def.Name(), len(result.Violations))
		for _, v := range result.Violations {
			fmt.Fprintf(w, "  - [%s] %s\n", v.Kind, v.Message)
		}
		return nil, errInvalid
	}
	return wf, nil
}

func validateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a workflow definition",
		Long: `Parse a workflow definition, build it against the built-in block types
and check the graph: port bindings, types and cycles.

Examples:
  flowctl validate -f workflows/summarize.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			reg, err := newRegistry(offlineDeps)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			wf, err := loadWorkflow(out, file, reg)
			if err != nil {
				return err
			}
			order, err := wf.TopologicalOrder()
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(order))
			for _, b := range order {
				ids = append(ids, b.ID())
			}
			fmt.Fprintf(out, "Workflow %s is valid (%d blocks, %d wires)\n", wf.Name(), len(wf.Blocks()), len(wf.Wires()))
			fmt.Fprintf(out, "Execution order: %s\n", strings.Join(ids, " -> "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Workflow definition file (required)")
	return cmd
}

func runCmd() *cobra.Command {
	var (
		file          string
		params        []string
		output        string
		maxParallel   int
		failurePolicy string
		allowPrivate  bool
		logLevel      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow definition once",
		Long: `Run a workflow definition locally and print the execution record.

Parameters are passed as key=value pairs. Values that parse as JSON are
decoded, so --param docs='["a","b"]' yields a list.

Examples:
  flowctl run -f greeting.yaml --param name=world
  flowctl run -f rerank.yaml --param query=go --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			if output != "text" && output != "json" {
				return fmt.Errorf("--output must be text or json, got %q", output)
			}
			policy := workflow.FailurePolicy(failurePolicy)
			if !policy.Valid() {
				return fmt.Errorf("--failure-policy must be %s or %s", workflow.CancelInFlight, workflow.DrainInFlight)
			}
			runParams, err := parseParams(params)
			if err != nil {
				return err
			}

			reg, err := newRegistry(blocks.Deps{AllowPrivateIPs: allowPrivate})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			wf, err := loadWorkflow(out, file, reg)
			if err != nil {
				return err
			}

			l := logger.NewWithWriter("flowctl", cmd.ErrOrStderr())
			l.SetLevel(logger.ParseLevel(logLevel))
			executor := workflow.NewExecutor(
				workflow.WithLogger(l),
				workflow.WithObserver(workflow.NewLogObserver(l)),
				workflow.WithMaxParallel(maxParallel),
				workflow.WithFailurePolicy(policy),
			)

			exec, runErr := executor.Run(cmd.Context(), wf, runParams)
			if exec == nil {
				return runErr
			}
			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(exec); err != nil {
					return err
				}
			} else {
				printExecution(out, exec)
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Workflow definition file (required)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Run parameter as key=value (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "Maximum blocks running at once (0 = executor default)")
	cmd.Flags().StringVar(&failurePolicy, "failure-policy", string(workflow.CancelInFlight), "What happens to running blocks when one fails")
	cmd.Flags().BoolVar(&allowPrivate, "allow-private-ips", false, "Let http_request blocks reach private addresses")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level for execution events")
	return cmd
}

// parseParams turns key=value pairs into run parameters.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			params[key] = decoded
		} else {
			params[key] = raw
		}
	}
	return params, nil
}

func printExecution(w io.Writer, exec *workflow.Execution) {
	fmt.Fprintf(w, "Execution %s of %s: %s (%dms)\n", exec.ID, exec.WorkflowName, exec.Status, exec.DurationMs)
	if exec.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", exec.Error)
	}
	for _, b := range exec.Blocks {
		fmt.Fprintf(w, "  %-20s %-10s attempts=%d", b.BlockID, b.Status, b.Attempts)
		if b.Error != "" {
			fmt.Fprintf(w, " error=%q", b.Error)
		}
		fmt.Fprintln(w)
		for port, v := range b.Outputs {
			fmt.Fprintf(w, "      %s = %v\n", port, v)
		}
	}
}

func blockTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block-types",
		Short: "List the built-in block types",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := newRegistry(blocks.Deps{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, info := range reg.Types() {
				fmt.Fprintf(out, "%-14s %s\n", info.Type, info.Description)
				for _, in := range info.Inputs {
					fmt.Fprintf(out, "    in  %-12s %s\n", in.Name, in.DataType)
				}
				for _, o := range info.Outputs {
					fmt.Fprintf(out, "    out %-12s %s\n", o.Name, o.DataType)
				}
			}
			return nil
		},
	}
}
