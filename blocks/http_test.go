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
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/flowgraph/workflow"
)

func newHTTPBlock(t *testing.T, cfg map[string]any, allowPrivate bool) *workflow.Block {
	t.Helper()
	reg := newTestRegistry(t, Deps{AllowPrivateIPs: allowPrivate})
	b, err := reg.Create(TypeHTTPRequest, workflow.BlockSpec{ID: "call", Config: cfg})
	require.NoError(t, err)
	return b
}

func TestHTTPRequest_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	b := newHTTPBlock(t, map[string]any{
		"url":     server.URL + "/status",
		"headers": map[string]any{"X-API-Key": "secret"},
	}, true)

	out, err := b.Processor().Process(context.Background(), &workflow.RunContext{}, workflow.Values{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out["status"])
	assert.Equal(t, `{"ok":true}`, out["body"])
	assert.Equal(t, map[string]any{"ok": true}, out["json"])
}

func TestHTTPRequest_PostBodyAndURLInput(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		received = string(data)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte("created"))
	}))
	defer server.Close()

	b := newHTTPBlock(t, map[string]any{"method": "post", "allow_private_ips": true}, false)
	out, err := b.Processor().Process(context.Background(), &workflow.RunContext{}, workflow.Values{
		"url":  server.URL,
		"body": `{"name":"x"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"x"}`, received)
	assert.Equal(t, "created", out["body"])
	_, hasJSON := out["json"]
	assert.False(t, hasJSON)
}

func TestHTTPRequest_RetriesRetryableStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	b := newHTTPBlock(t, map[string]any{"url": server.URL, "retry_delay": "1ms"}, true)
	out, err := b.Processor().Process(context.Background(), &workflow.RunContext{}, workflow.Values{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out["body"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPRequest_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(strings.Repeat("x", 300)))
	}))
	defer server.Close()

	b := newHTTPBlock(t, map[string]any{"url": server.URL, "retry_delay": "1ms"}, true)
	_, err := b.Processor().Process(context.Background(), &workflow.RunContext{}, workflow.Values{})
	require.Error(t, err)
	assert.True(t, workflow.IsPermanent(err))
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Contains(t, err.Error(), "...")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPRequest_ServerErrorAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	b := newHTTPBlock(t, map[string]any{"url": server.URL, "retry_delay": "1ms", "max_retries": 1}, true)
	_, err := b.Processor().Process(context.Background(), &workflow.RunContext{}, workflow.Values{})
	require.Error(t, err)
	assert.False(t, workflow.IsPermanent(err))
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestHTTPRequest_ResponseSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer server.Close()

	b := newHTTPBlock(t, map[string]any{"url": server.URL, "max_response_size": 16}, true)
	_, err := b.Processor().Process(context.Background(), &workflow.RunContext{}, workflow.Values{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit of 16 bytes")
}

func TestHTTPRequest_SSRFProtection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))
	defer server.Close()

	b := newHTTPBlock(t, map[string]any{"url": server.URL}, false)
	_, err := b.Processor().Process(context.Background(), &workflow.RunContext{}, workflow.Values{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF protection")
	assert.True(t, workflow.IsPermanent(err))
}

func TestHTTPRequest_Config(t *testing.T) {
	reg := newTestRegistry(t, Deps{})
	bad := []map[string]any{
		{"url": "ftp://example.com"},
		{"url": "http://"},
		{"method": "TRACE"},
		{"max_response_size": 0},
		{"max_retries": -1},
		{"retry_delay": "soon"},
		{"headers": map[string]any{"X": 1}},
	}
	for _, cfg := range bad {
		_, err := reg.Create(TypeHTTPRequest, workflow.BlockSpec{ID: "h", Config: cfg})
		assert.Error(t, err, "%v", cfg)
	}

	b, err := reg.Create(TypeHTTPRequest, workflow.BlockSpec{ID: "h"})
	require.NoError(t, err)
	_, err = b.Processor().Process(context.Background(), &workflow.RunContext{}, workflow.Values{})
	assert.True(t, workflow.IsPermanent(err))
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"192.168.0.10", true},
		{"172.16.5.4", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"8.8.8.8", false},
		{"2001:4860:4860::8888", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.private, isPrivateIP(net.ParseIP(tt.ip)))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, DefaultHTTPRetryDelay, calculateBackoff(DefaultHTTPRetryDelay, 1))
	assert.Equal(t, 4*DefaultHTTPRetryDelay, calculateBackoff(DefaultHTTPRetryDelay, 3))
	assert.Equal(t, MaxHTTPRetryDelay, calculateBackoff(DefaultHTTPRetryDelay, 20))
}
