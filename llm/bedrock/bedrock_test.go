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


package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/flowgraph/llm"
)

type fakeInvokeAPI struct {
	body  string
	err   error
	calls []*bedrockruntime.InvokeModelInput
}

func (f *fakeInvokeAPI) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func (f *fakeInvokeAPI) sent(t *testing.T) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, f.calls)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(f.calls[len(f.calls)-1].Body, &payload))
	return payload
}

func testClient(api invokeAPI, model string) *Client {
	return newClient(api, Options{Model: model, Logger: log.New(io.Discard, "", 0)})
}

func TestModelFamily(t *testing.T) {
	cases := map[string]string{
		"anthropic.claude-3-5-sonnet-20240620-v1:0":    "anthropic",
		"us.anthropic.claude-sonnet-4-5-20250929-v1:0": "anthropic",
		"global.cohere.rerank-v3-5:0":                  "cohere",
		"amazon.titan-text-express-v1":                 "amazon",
		"meta.llama3-70b-instruct-v1:0":                "meta",
		"eu.bogus":                                     "",
		"claude":                                       "",
	}
	for model, want := range cases {
		assert.Equal(t, want, modelFamily(model), model)
	}
}

func TestClient_CompleteAnthropic(t *testing.T) {
	api := &fakeInvokeAPI{body: `{"content":[{"type":"text","text":"hi there"}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":3}}`}
	c := testClient(api, "")

	resp, err := c.Complete(context.Background(), llm.CompletionRequest{
		Prompt:       "say hi",
		SystemPrompt: "be brief",
		Temperature:  0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, DefaultModel, resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, llm.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, resp.Usage)

	require.Len(t, api.calls, 1)
	assert.Equal(t, DefaultModel, aws.ToString(api.calls[0].ModelId))
	assert.Equal(t, "application/json", aws.ToString(api.calls[0].ContentType))
	payload := api.sent(t)
	assert.Equal(t, "bedrock-2023-05-31", payload["anthropic_version"])
	assert.Equal(t, "be brief", payload["system"])
	assert.EqualValues(t, defaultMaxTokens, payload["max_tokens"])
}

func TestClient_CompleteOtherFamilies(t *testing.T) {
	cases := []struct {
		model, body, content string
		usage                llm.Usage
		promptKey            string
	}{
		{
			model:     "amazon.titan-text-express-v1",
			body:      `{"inputTextTokenCount":4,"results":[{"outputText":"titan","tokenCount":2,"completionReason":"FINISH"}]}`,
			content:   "titan",
			usage:     llm.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
			promptKey: "inputText",
		},
		{
			model:     "meta.llama3-70b-instruct-v1:0",
			body:      `{"generation":"llama","prompt_token_count":5,"generation_token_count":1}`,
			content:   "llama",
			usage:     llm.Usage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6},
			promptKey: "prompt",
		},
		{
			model:     "mistral.mistral-large-2402-v1:0",
			body:      `{"outputs":[{"text":"mistral","stop_reason":"stop"}]}`,
			content:   "mistral",
			promptKey: "prompt",
		},
	}
	for _, tc := range cases {
		t.Run(tc.model, func(t *testing.T) {
			api := &fakeInvokeAPI{body: tc.body}
			resp, err := testClient(api, "").Complete(context.Background(), llm.CompletionRequest{
				Prompt:       "question",
				SystemPrompt: "context",
				Model:        tc.model,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.content, resp.Content)
			assert.Equal(t, tc.model, resp.Model)
			assert.Equal(t, tc.usage, resp.Usage)
			assert.Equal(t, "context\n\nquestion", api.sent(t)[tc.promptKey])
		})
	}
}

func TestClient_CompleteUnsupportedModel(t *testing.T) {
	api := &fakeInvokeAPI{}
	_, err := testClient(api, "ai21.j2-ultra-v1").Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	assert.False(t, llm.IsRetryable(err))
	assert.Empty(t, api.calls)
}

func TestClient_CompleteInvalidRequest(t *testing.T) {
	api := &fakeInvokeAPI{}
	_, err := testClient(api, "").Complete(context.Background(), llm.CompletionRequest{})
	assert.ErrorIs(t, err, llm.ErrInvalidRequest)
	assert.Empty(t, api.calls)
}

func TestClient_ErrorClassification(t *testing.T) {
	cases := map[string]struct {
		code      string
		retryable bool
	}{
		"ThrottlingException":       {llm.ErrCodeRateLimit, true},
		"AccessDeniedException":     {llm.ErrCodeAuth, false},
		"ValidationException":       {llm.ErrCodeInvalidRequest, false},
		"ResourceNotFoundException": {llm.ErrCodeModelNotFound, false},
		"ModelTimeoutException":     {llm.ErrCodeTimeout, true},
		"InternalServerException":   {llm.ErrCodeServerError, true},
	}
	for apiCode, want := range cases {
		t.Run(apiCode, func(t *testing.T) {
			api := &fakeInvokeAPI{err: &smithy.GenericAPIError{Code: apiCode, Message: "nope"}}
			_, err := testClient(api, "").Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})

			var pe *llm.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, ProviderName, pe.Provider)
			assert.Equal(t, want.code, pe.Code)
			assert.Equal(t, want.retryable, llm.IsRetryable(err))
			assert.Equal(t, "nope", pe.Message)
		})
	}
}

func TestClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &fakeInvokeAPI{err: errors.New("request canceled")}

	_, err := testClient(api, "").Complete(ctx, llm.CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_RerankWithDocuments(t *testing.T) {
	api := &fakeInvokeAPI{body: `{"id":"r1","results":[{"index":2,"relevance_score":0.9},{"index":0,"relevance_score":0.4}]}`}
	topK := 2
	returnDocs := true

	resp, err := testClient(api, "").Rerank(context.Background(), llm.ReRankRequest{
		Query:           "what is go",
		Documents:       []string{"go is a language", "cats", "go has goroutines"},
		Model:           "cohere.rerank-v3-5:0",
		TopK:            &topK,
		ReturnDocuments: &returnDocs,
	})
	require.NoError(t, err)
	// normalized ascending by score
	assert.Equal(t, []string{"go is a language", "go has goroutines"}, resp.Documents())
	assert.Equal(t, []float64{0.4, 0.9}, resp.Scores())

	payload := api.sent(t)
	assert.Equal(t, "what is go", payload["query"])
	assert.EqualValues(t, 2, payload["top_n"])
	assert.EqualValues(t, 2, payload["api_version"])
	assert.Equal(t, "cohere.rerank-v3-5:0", aws.ToString(api.calls[0].ModelId))
}

func TestClient_RerankScoresFollowDocumentOrder(t *testing.T) {
	api := &fakeInvokeAPI{body: `{"results":[{"index":1,"relevance_score":0.8},{"index":0,"relevance_score":0.1}]}`}

	resp, err := testClient(api, "").Rerank(context.Background(), llm.ReRankRequest{
		Query:     "q",
		Documents: []string{"a", "b"},
		Model:     "amazon.rerank-v1:0",
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.8}, resp.Scores())
	for _, c := range resp.Contents {
		assert.Nil(t, c.Document)
	}
	payload := api.sent(t)
	assert.NotContains(t, payload, "top_n")
	assert.NotContains(t, payload, "api_version")
}

func TestClient_RerankRejectsBadInput(t *testing.T) {
	api := &fakeInvokeAPI{body: `{"results":[{"index":5,"relevance_score":0.8}]}`}
	c := testClient(api, "")

	_, err := c.Rerank(context.Background(), llm.ReRankRequest{Query: "q", Documents: []string{"a"}})
	assert.ErrorIs(t, err, llm.ErrInvalidRequest)

	_, err = c.Rerank(context.Background(), llm.ReRankRequest{Query: "q", Documents: []string{"a"}, Model: "anthropic.claude-v2"})
	require.Error(t, err)
	assert.False(t, llm.IsRetryable(err))
	assert.Empty(t, api.calls)

	_, err = c.Rerank(context.Background(), llm.ReRankRequest{Query: "q", Documents: []string{"a"}, Model: "cohere.rerank-v3-5:0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
