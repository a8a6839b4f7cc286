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

package blocks

import (
	"context"
	"errors"
	"fmt"

	"axonflow/flowgraph/llm"
	"axonflow/flowgraph/workflow"
)

var llmChatInfo = workflow.BlockTypeInfo{
	Type:        TypeLLMChat,
	DisplayName: "LLM Chat",
	Description: "Sends a prompt to the configured completion provider.",
	Inputs: []workflow.Input{
		workflow.NewInput("prompt", workflow.DataTypeString, "User prompt"),
		{Port: workflow.Port{Name: "system", Label: "system", DataType: workflow.DataTypeString, Description: "System prompt, overrides config.system_prompt"}, Optional: true},
	},
	Outputs: []workflow.Output{
		workflow.NewOutput("content", workflow.DataTypeString, "Generated text"),
		workflow.NewOutput("model", workflow.DataTypeString, "Model that produced the response"),
		workflow.NewOutput("total_tokens", workflow.DataTypeInteger, "Tokens used"),
	},
}

// ErrNoProvider is returned when an llm_chat block is created without a
// completion provider.
var ErrNoProvider = errors.New("no completion provider configured")

// ErrNoReranker is returned when a rerank block is created without a
// reranker.
var ErrNoReranker = errors.New("no reranker configured")

func newLLMChat(deps Deps) workflow.BlockFactory {
	return func(spec workflow.BlockSpec) (*workflow.Block, error) {
		if deps.Provider == nil {
			return nil, ErrNoProvider
		}
		model, err := configString(spec.Config, "model", "")
		if err != nil {
			return nil, err
		}
		system, err := configString(spec.Config, "system_prompt", "")
		if err != nil {
			return nil, err
		}
		maxTokens, err := configInt(spec.Config, "max_tokens", 0)
		if err != nil {
			return nil, err
		}
		temperature, err := configFloat(spec.Config, "temperature", 0)
		if err != nil {
			return nil, err
		}
		provider := deps.Provider

		process := func(ctx context.Context, rc *workflow.RunContext, in workflow.Values) (workflow.Values, error) {
			req := llm.CompletionRequest{
				Prompt:       in.String("prompt"),
				SystemPrompt: system,
				MaxTokens:    maxTokens,
				Temperature:  temperature,
				Model:        model,
			}
			if in.Has("system") {
				req.SystemPrompt = in.String("system")
			}
			if err := req.Validate(); err != nil {
				return nil, workflow.Permanent(err)
			}

			resp, err := provider.Complete(ctx, req)
			if err != nil {
				if !llm.IsRetryable(err) {
					err = workflow.Permanent(err)
				}
				return nil, err
			}
			rc.Logger.Debug(rc.WorkflowName, rc.ExecutionID, "Completion received", map[string]interface{}{
				"provider":     provider.Name(),
				"model":        resp.Model,
				"total_tokens": resp.Usage.TotalTokens,
				"latency_ms":   resp.Latency.Milliseconds(),
			})
			return workflow.Values{
				"content":      resp.Content,
				"model":        resp.Model,
				"total_tokens": resp.Usage.TotalTokens,
			}, nil
		}

		opts := append(spec.Options(TypeLLMChat), workflow.WithProcessorFunc(process))
		return workflow.NewBlock(spec.Name, llmChatInfo.Inputs, llmChatInfo.Outputs, opts...)
	}
}

var rerankInfo = workflow.BlockTypeInfo{
	Type:        TypeRerank,
	DisplayName: "Rerank",
	Description: "Scores documents against a query. Results are sorted by ascending score when documents are returned.",
	Inputs: []workflow.Input{
		workflow.NewInput("query", workflow.DataTypeString, "Search query"),
		workflow.NewInput("documents", workflow.DataTypeStringList, "Candidate documents"),
	},
	Outputs: []workflow.Output{
		workflow.NewOutput("documents", workflow.DataTypeStringList, "Documents in response order"),
		workflow.NewOutput("scores", workflow.DataTypeFloatList, "Relevance scores in response order"),
	},
}

// newRerank config: model (required), top_k, return_documents (default
// true), truncation.
func newRerank(deps Deps) workflow.BlockFactory {
	return func(spec workflow.BlockSpec) (*workflow.Block, error) {
		if deps.Reranker == nil {
			return nil, ErrNoReranker
		}
		model, err := configString(spec.Config, "model", "")
		if err != nil {
			return nil, err
		}
		if model == "" {
			return nil, errors.New("rerank model is required")
		}

		var topK *int
		if _, ok := spec.Config["top_k"]; ok {
			k, err := configInt(spec.Config, "top_k", 0)
			if err != nil {
				return nil, err
			}
			if k < 1 {
				return nil, fmt.Errorf("top_k must be at least 1, got %d", k)
			}
			topK = &k
		}
		returnDocs, err := configBool(spec.Config, "return_documents", true)
		if err != nil {
			return nil, err
		}
		var truncation *bool
		if _, ok := spec.Config["truncation"]; ok {
			t, err := configBool(spec.Config, "truncation", false)
			if err != nil {
				return nil, err
			}
			truncation = &t
		}
		reranker := deps.Reranker

		process := func(ctx context.Context, rc *workflow.RunContext, in workflow.Values) (workflow.Values, error) {
			req := llm.ReRankRequest{
				Query:           in.String("query"),
				Documents:       in.Strings("documents"),
				Model:           model,
				TopK:            topK,
				ReturnDocuments: &returnDocs,
				Truncation:      truncation,
			}
			if err := req.Validate(); err != nil {
				return nil, workflow.Permanent(err)
			}
			resp, err := reranker.Rerank(ctx, req)
			if err != nil {
				if !llm.IsRetryable(err) {
					err = workflow.Permanent(err)
				}
				return nil, err
			}
			resp.Normalize()
			return workflow.Values{
				"documents": resp.Documents(),
				"scores":    resp.Scores(),
			}, nil
		}

		opts := append(spec.Options(TypeRerank), workflow.WithProcessorFunc(process))
		return workflow.NewBlock(spec.Name, rerankInfo.Inputs, rerankInfo.Outputs, opts...)
	}
}
