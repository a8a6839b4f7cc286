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

// Package llm defines the model-facing contracts used by flowgraph blocks.
//
// Two contracts live here:
//
//   - Provider, a minimal completion interface used by the llm_chat block.
//   - Reranker together with ReRankRequest and ReRankResponse, the data
//     contract for re-ranking a set of documents against a query.
//
// Applications supply concrete providers and rerankers when registering the
// built-in blocks. Package bedrock implements both on Amazon Bedrock.
//
// # Re-rank ordering
//
// A ReRankResponse built with NewReRankResponse (or normalized with
// Normalize) is sorted ascending by RelevanceScore only when every content
// carries its document text. If any content lacks the document, the order
// returned by the reranker is kept so that scores stay aligned with the
// caller's original document positions.
package llm
