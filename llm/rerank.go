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

package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ReRankRequest asks a reranker to score documents against a query.
type ReRankRequest struct {
	// Query is the search query documents are scored against.
	Query string `json:"query"`

	// Documents holds the candidate texts, one string per document.
	Documents []string `json:"documents"`

	// Model names the rerank model. There is no automatic model selection.
	Model string `json:"model"`

	// TopK limits the result to the K best documents. Nil returns a score
	// for every document. Leave it unset when ReturnDocuments is false,
	// otherwise scores can no longer be matched to their documents.
	TopK *int `json:"top_k"`

	// ReturnDocuments asks the reranker to echo document text in the
	// response. Sorting by score only happens when it does.
	ReturnDocuments *bool `json:"return_documents"`

	// Truncation allows the query and documents to be cut to fit the
	// model's context.
	Truncation *bool `json:"truncation"`
}

// Validate checks the request.
func (r ReRankRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if r.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if len(r.Documents) == 0 {
		return fmt.Errorf("%w: at least one document is required", ErrInvalidRequest)
	}
	if r.TopK != nil && *r.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1", ErrInvalidRequest)
	}
	return nil
}

// WantsDocuments reports whether ReturnDocuments is set to true.
func (r ReRankRequest) WantsDocuments() bool {
	return r.ReturnDocuments != nil && *r.ReturnDocuments
}

// ReRankContent is one scored document.
type ReRankContent struct {
	// Document is the original text, nil when the reranker did not return it.
	Document       *string `json:"document"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ReRankResponse is the result of a rerank call.
type ReRankResponse struct {
	Contents []ReRankContent `json:"contents"`
	Usage    Usage           `json:"usage"`
}

// NewReRankResponse builds a normalized response.
func NewReRankResponse(contents []ReRankContent, usage Usage) *ReRankResponse {
	r := &ReRankResponse{Contents: contents, Usage: usage}
	r.Normalize()
	return r
}

// Normalize sorts the contents ascending by relevance score if every
// content carries its document. Equal scores keep their relative order.
// Otherwise the order is left untouched.
func (r *ReRankResponse) Normalize() {
	for _, c := range r.Contents {
		if c.Document == nil {
			return
		}
	}
	sort.SliceStable(r.Contents, func(i, j int) bool {
		return r.Contents[i].RelevanceScore < r.Contents[j].RelevanceScore
	})
}

// Documents returns the document texts in response order. Contents without
// a document yield an empty string.
func (r *ReRankResponse) Documents() []string {
	out := make([]string, 0, len(r.Contents))
	for _, c := range r.Contents {
		if c.Document != nil {
			out = append(out, *c.Document)
		} else {
			out = append(out, "")
		}
	}
	return out
}

// Scores returns the relevance scores in response order.
func (r *ReRankResponse) Scores() []float64 {
	out := make([]float64, 0, len(r.Contents))
	for _, c := range r.Contents {
		out = append(out, c.RelevanceScore)
	}
	return out
}

// Reranker scores documents against a query.
type Reranker interface {
	Rerank(ctx context.Context, req ReRankRequest) (*ReRankResponse, error)
}

// RerankerFunc adapts a function to the Reranker interface.
type RerankerFunc func(ctx context.Context, req ReRankRequest) (*ReRankResponse, error)

// Rerank calls f.
func (f RerankerFunc) Rerank(ctx context.Context, req ReRankRequest) (*ReRankResponse, error) {
	return f(ctx, req)
}
