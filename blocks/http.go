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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"axonflow/flowgraph/workflow"
)

const (
	// DefaultHTTPTimeout is the default HTTP request timeout
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultMaxResponseSize is the maximum response body size (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024
	// DefaultHTTPMaxRetries is the default number of retry attempts
	DefaultHTTPMaxRetries = 3
	// DefaultHTTPRetryDelay is the initial delay between retries
	DefaultHTTPRetryDelay = 100 * time.Millisecond
	// MaxHTTPRetryDelay is the maximum delay between retries
	MaxHTTPRetryDelay = 5 * time.Second
)

var httpRequestInfo = workflow.BlockTypeInfo{
	Type:        TypeHTTPRequest,
	DisplayName: "HTTP Request",
	Description: "Calls an HTTP endpoint. Private and loopback addresses are rejected unless allowed.",
	Inputs: []workflow.Input{
		{Port: workflow.Port{Name: "url", Label: "url", DataType: workflow.DataTypeString, Description: "Overrides config.url"}, Optional: true},
		{Port: workflow.Port{Name: "body", Label: "body", DataType: workflow.DataTypeString, Description: "Request body"}, Optional: true},
	},
	Outputs: []workflow.Output{
		workflow.NewOutput("status", workflow.DataTypeInteger, "HTTP status code"),
		workflow.NewOutput("body", workflow.DataTypeString, "Response body"),
		workflow.NewOutput("json", workflow.DataTypeObject, "Decoded JSON response, when the body is JSON"),
	},
}

var validHTTPMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
}

type httpRequester struct {
	client          *http.Client
	method          string
	url             string
	headers         map[string]string
	maxResponseSize int64
	maxRetries      int
	retryDelay      time.Duration
	allowPrivateIPs bool
}

// newHTTPRequest config: url, method (GET), headers, max_response_size,
// max_retries, retry_delay, allow_private_ips.
func newHTTPRequest(deps Deps) workflow.BlockFactory {
	return func(spec workflow.BlockSpec) (*workflow.Block, error) {
		h := &httpRequester{client: deps.HTTPClient}
		if h.client == nil {
			h.client = &http.Client{Timeout: DefaultHTTPTimeout}
		}

		var err error
		if h.url, err = configString(spec.Config, "url", ""); err != nil {
			return nil, err
		}
		if h.url != "" {
			if _, err := parseHTTPURL(h.url); err != nil {
				return nil, err
			}
		}
		method, err := configString(spec.Config, "method", http.MethodGet)
		if err != nil {
			return nil, err
		}
		h.method = strings.ToUpper(method)
		if !validHTTPMethods[h.method] {
			return nil, fmt.Errorf("unsupported HTTP method: %s", method)
		}
		if h.headers, err = configStringMap(spec.Config, "headers"); err != nil {
			return nil, err
		}
		size, err := configInt(spec.Config, "max_response_size", DefaultMaxResponseSize)
		if err != nil {
			return nil, err
		}
		if size <= 0 {
			return nil, errors.New("max_response_size must be positive")
		}
		h.maxResponseSize = int64(size)
		if h.maxRetries, err = configInt(spec.Config, "max_retries", DefaultHTTPMaxRetries); err != nil {
			return nil, err
		}
		if h.maxRetries < 0 {
			return nil, errors.New("max_retries must not be negative")
		}
		if h.retryDelay, err = configDuration(spec.Config, "retry_delay", DefaultHTTPRetryDelay); err != nil {
			return nil, err
		}
		allow, err := configBool(spec.Config, "allow_private_ips", false)
		if err != nil {
			return nil, err
		}
		h.allowPrivateIPs = allow || deps.AllowPrivateIPs

		opts := append(spec.Options(TypeHTTPRequest), workflow.WithProcessor(h))
		return workflow.NewBlock(spec.Name, httpRequestInfo.Inputs, httpRequestInfo.Outputs, opts...)
	}
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("url must use http or https scheme")
	}
	if u.Hostname() == "" {
		return nil, errors.New("url must include a host")
	}
	return u, nil
}

// Process implements workflow.Processor.
func (h *httpRequester) Process(ctx context.Context, rc *workflow.RunContext, in workflow.Values) (workflow.Values, error) {
	target := h.url
	if in.Has("url") {
		target = in.String("url")
	}
	if target == "" {
		return nil, workflow.Permanent(errors.New("no url configured or delivered"))
	}
	u, err := parseHTTPURL(target)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	if !h.allowPrivateIPs {
		if err := validateHost(ctx, u.Hostname()); err != nil {
			return nil, workflow.Permanent(fmt.Errorf("SSRF protection: %w", err))
		}
	}

	var body []byte
	if in.Has("body") {
		body = []byte(in.String("body"))
	}

	resp, err := h.do(ctx, rc, u.String(), body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > h.maxResponseSize {
		return nil, workflow.Permanent(fmt.Errorf("response size exceeds limit of %d bytes", h.maxResponseSize))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(data)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
		if !isRetryableStatusCode(resp.StatusCode) {
			err = workflow.Permanent(err)
		}
		return nil, err
	}

	out := workflow.Values{
		"status": resp.StatusCode,
		"body":   string(data),
	}
	var decoded any
	if len(data) > 0 && json.Unmarshal(data, &decoded) == nil {
		out["json"] = decoded
	}
	return out, nil
}

// do sends the request, retrying connection errors and retryable status
// codes. POST and PATCH are only retried on connection errors.
func (h *httpRequester) do(ctx context.Context, rc *workflow.RunContext, target string, body []byte) (*http.Response, error) {
	idempotent := h.method != http.MethodPost && h.method != http.MethodPatch
	var lastErr error

	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(h.retryDelay, attempt)
			rc.Logger.Debug(rc.WorkflowName, rc.ExecutionID, "Retrying HTTP request", map[string]interface{}{
				"attempt":  attempt,
				"max":      h.maxRetries,
				"delay_ms": delay.Milliseconds(),
				"error":    lastErr.Error(),
			})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, h.method, target, reader)
		if err != nil {
			return nil, workflow.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		h.applyHeaders(req, body != nil)

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		if !idempotent || !isRetryableStatusCode(resp.StatusCode) || attempt == h.maxRetries {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil, fmt.Errorf("request failed after retries: %w", lastErr)
}

func (h *httpRequester) applyHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "AxonFlow-Flowgraph/1.0")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, val := range h.headers {
		req.Header.Set(key, val)
	}
}

// validateHost checks if the host is safe to connect to (SSRF protection)
func validateHost(ctx context.Context, host string) error {
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("failed to resolve host %s: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("connection to private IP %s is not allowed (host: %s)", ip, host)
		}
	}
	return nil
}

// isPrivateIP checks if an IP address is private/reserved
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		// 169.254.0.0/16 and 127.0.0.0/8
		if (ip4[0] == 169 && ip4[1] == 254) || ip4[0] == 127 {
			return true
		}
	}
	return false
}

func calculateBackoff(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > MaxHTTPRetryDelay || delay <= 0 {
		delay = MaxHTTPRetryDelay
	}
	return delay
}

func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
