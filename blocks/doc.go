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

// Package blocks provides the built-in block types and registers them with a
// workflow.Registry.
//
//	reg := workflow.NewRegistry()
//	if err := blocks.RegisterBuiltins(reg, blocks.Deps{Provider: p, Reranker: r}); err != nil {
//	    return err
//	}
//
// Built-in types:
//
//   - text_input: emits a run parameter or a configured constant as text.
//   - list_input: emits a run parameter or configured items as a string list.
//   - template: renders a text/template over its declared string inputs.
//   - join: joins a string list with a separator.
//   - llm_chat: sends a prompt to a completion provider.
//   - rerank: scores documents against a query through a reranker.
//   - http_request: calls an HTTP endpoint with SSRF protection, retries and
//     a response size limit.
package blocks
