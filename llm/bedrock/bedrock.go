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


// Package bedrock implements llm.Provider and llm.Reranker on Amazon
// Bedrock through the InvokeModel API. Requests are signed with the default
// AWS credential chain.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"axonflow/flowgraph/llm"
)

const (
	// ProviderName identifies Bedrock in provider errors.
	ProviderName = "bedrock"

	DefaultRegion = "us-east-1"
	DefaultModel  = "anthropic.claude-3-5-sonnet-20240620-v1:0"

	// defaultMaxTokens is sent when a request leaves MaxTokens at zero.
	// Anthropic models on Bedrock reject requests without it.
	defaultMaxTokens = 1024
)

// invokeAPI is the part of the bedrockruntime client used here.
type invokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Options configures a Client.
type Options struct {
	Region string
	// Model is the completion model used when a request names none.
	Model  string
	Logger *log.Logger
}

// Client talks to Bedrock. It is safe for concurrent use.
type Client struct {
	api    invokeAPI
	region string
	model  string
	logger *log.Logger
}

// New creates a client using the default AWS credential chain. No request
// is made until the first call.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", opts.Region, err)
	}
	return newClient(bedrockruntime.NewFromConfig(cfg), opts), nil
}

func newClient(api invokeAPI, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[Bedrock] ", log.LstdFlags)
	}
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	return &Client{api: api, region: opts.Region, model: opts.Model, logger: logger}
}

// Name implements llm.Provider.
func (c *Client) Name() string { return ProviderName }

// Region returns the AWS region requests are sent to.
func (c *Client) Region() string { return c.region }

// Model returns the default completion model.
func (c *Client) Model() string { return c.model }

// Complete implements llm.Provider. The request body follows the model
// family named by the model id.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}
	family := modelFamily(model)
	body, err := completionBody(family, model, req)
	if err != nil {
		return nil, err
	}

	out, err := c.invoke(ctx, model, body)
	if err != nil {
		return nil, err
	}

	resp, err := parseCompletion(family, out)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", model, err)
	}
	resp.Model = model
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	resp.Latency = time.Since(start)
	return resp, nil
}

// Rerank implements llm.Reranker with the Cohere or Amazon rerank models.
// Truncation is left to the model, which truncates long documents itself.
//
// Without ReturnDocuments the scores are put back in the caller's document
// order so they line up with the submitted documents.
func (c *Client) Rerank(ctx context.Context, req llm.ReRankRequest) (*llm.ReRankResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	family := modelFamily(req.Model)
	payload := map[string]interface{}{
		"query":     req.Query,
		"documents": req.Documents,
	}
	if req.TopK != nil {
		payload["top_n"] = *req.TopK
	}
	switch family {
	case "cohere":
		payload["api_version"] = 2
	case "amazon":
	default:
		return nil, unsupportedModel(req.Model, "rerank")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	out, err := c.invoke(ctx, req.Model, body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", req.Model, err)
	}

	results := parsed.Results
	if !req.WantsDocuments() {
		sort.SliceStable(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	}
	contents := make([]llm.ReRankContent, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(req.Documents) {
			return nil, llm.NewProviderError(ProviderName, llm.ErrCodeServerError,
				fmt.Sprintf("rerank result index %d out of range for %d documents", r.Index, len(req.Documents)))
		}
		content := llm.ReRankContent{RelevanceScore: r.RelevanceScore}
		if req.WantsDocuments() {
			doc := req.Documents[r.Index]
			content.Document = &doc
		}
		contents = append(contents, content)
	}
	return llm.NewReRankResponse(contents, llm.Usage{}), nil
}

func (c *Client) invoke(ctx context.Context, model string, body []byte) ([]byte, error) {
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Printf("API call failed (model: %s): %v", model, err)
		return nil, classify(err)
	}
	return out.Body, nil
}

// classify maps Bedrock API errors to provider errors so callers can tell
// throttling and outages from bad requests.
func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("bedrock API error: %w", err)
	}
	code := llm.ErrCodeServerError
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "ServiceQuotaExceededException", "TooManyRequestsException":
		code = llm.ErrCodeRateLimit
	case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
		code = llm.ErrCodeAuth
	case "ValidationException":
		code = llm.ErrCodeInvalidRequest
	case "ResourceNotFoundException":
		code = llm.ErrCodeModelNotFound
	case "ModelTimeoutException":
		code = llm.ErrCodeTimeout
	case "ModelNotReadyException", "ServiceUnavailableException":
		code = llm.ErrCodeUnavailable
	}
	pe := llm.NewProviderError(ProviderName, code, apiErr.ErrorMessage())
	pe.Cause = err
	return pe
}

func unsupportedModel(model, use string) error {
	return llm.NewProviderError(ProviderName, llm.ErrCodeInvalidRequest,
		fmt.Sprintf("model %q is not supported for %s", model, use))
}

// inferenceProfilePrefixes are the regional prefixes of inference profile ids.
var inferenceProfilePrefixes = map[string]bool{"eu": true, "us": true, "apac": true, "global": true}

// modelFamily returns the provider segment of a model id, e.g. "anthropic"
// for anthropic.claude-3-5-sonnet-20240620-v1:0 or
// us.anthropic.claude-sonnet-4-5-20250929-v1:0.
func modelFamily(model string) string {
	segments := strings.Split(model, ".")
	if len(segments) < 2 {
		return ""
	}
	if inferenceProfilePrefixes[segments[0]] {
		if len(segments) < 3 {
			return ""
		}
		return segments[1]
	}
	return segments[0]
}

func completionBody(family, model string, req llm.CompletionRequest) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	prompt := req.Prompt
	if req.SystemPrompt != "" && family != "anthropic" {
		prompt = req.SystemPrompt + "\n\n" + req.Prompt
	}

	var payload map[string]interface{}
	switch family {
	case "anthropic":
		payload = map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        maxTokens,
			"temperature":       req.Temperature,
			"messages": []map[string]string{
				{"role": "user", "content": req.Prompt},
			},
		}
		if req.SystemPrompt != "" {
			payload["system"] = req.SystemPrompt
		}
		if len(req.StopSequences) > 0 {
			payload["stop_sequences"] = req.StopSequences
		}
	case "amazon":
		cfg := map[string]interface{}{
			"maxTokenCount": maxTokens,
			"temperature":   req.Temperature,
			"topP":          0.9,
		}
		if len(req.StopSequences) > 0 {
			cfg["stopSequences"] = req.StopSequences
		}
		payload = map[string]interface{}{"inputText": prompt, "textGenerationConfig": cfg}
	case "meta":
		payload = map[string]interface{}{
			"prompt":      prompt,
			"max_gen_len": maxTokens,
			"temperature": req.Temperature,
			"top_p":       0.9,
		}
	case "mistral":
		payload = map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  maxTokens,
			"temperature": req.Temperature,
			"top_p":       0.9,
		}
		if len(req.StopSequences) > 0 {
			payload["stop"] = req.StopSequences
		}
	default:
		return nil, unsupportedModel(model, "completion")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}
	return body, nil
}

func parseCompletion(family string, body []byte) (*llm.CompletionResponse, error) {
	switch family {
	case "anthropic":
		var resp struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			StopReason string `json:"stop_reason"`
			Usage      struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		out := &llm.CompletionResponse{
			FinishReason: finishReason(resp.StopReason),
			Usage:        llm.Usage{PromptTokens: resp.Usage.InputTokens, CompletionTokens: resp.Usage.OutputTokens},
		}
		if len(resp.Content) > 0 {
			out.Content = resp.Content[0].Text
		}
		return out, nil

	case "amazon":
		var resp struct {
			Results []struct {
				OutputText       string `json:"outputText"`
				TokenCount       int    `json:"tokenCount"`
				CompletionReason string `json:"completionReason"`
			} `json:"results"`
			InputTextTokenCount int `json:"inputTextTokenCount"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		out := &llm.CompletionResponse{Usage: llm.Usage{PromptTokens: resp.InputTextTokenCount}}
		if len(resp.Results) > 0 {
			out.Content = resp.Results[0].OutputText
			out.Usage.CompletionTokens = resp.Results[0].TokenCount
			out.FinishReason = finishReason(resp.Results[0].CompletionReason)
		}
		return out, nil

	case "meta":
		var resp struct {
			Generation       string `json:"generation"`
			PromptTokenCount int    `json:"prompt_token_count"`
			GenTokenCount    int    `json:"generation_token_count"`
			StopReason       string `json:"stop_reason"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		return &llm.CompletionResponse{
			Content:      resp.Generation,
			FinishReason: finishReason(resp.StopReason),
			Usage:        llm.Usage{PromptTokens: resp.PromptTokenCount, CompletionTokens: resp.GenTokenCount},
		}, nil

	case "mistral":
		// Mistral reports no token counts.
		var resp struct {
			Outputs []struct {
				Text       string `json:"text"`
				StopReason string `json:"stop_reason"`
			} `json:"outputs"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		out := &llm.CompletionResponse{}
		if len(resp.Outputs) > 0 {
			out.Content = resp.Outputs[0].Text
			out.FinishReason = finishReason(resp.Outputs[0].StopReason)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported model family %q", family)
}

// finishReason normalizes the vendor stop reasons to stop, max_tokens and
// content_filter. Unknown reasons pass through lowercased.
func finishReason(reason string) string {
	switch strings.ToLower(reason) {
	case "":
		return ""
	case "end_turn", "stop_sequence", "stop", "finish":
		return "stop"
	case "max_tokens", "length", "max_gen_len":
		return "max_tokens"
	case "content_filtered", "content_filter":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}

var (
	_ llm.Provider = (*Client)(nil)
	_ llm.Reranker = (*Client)(nil)
)
