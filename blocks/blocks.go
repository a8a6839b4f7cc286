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
	"fmt"
	"net/http"
	"strconv"
	"time"

	"axonflow/flowgraph/llm"
	"axonflow/flowgraph/workflow"
)

// Block type ids.
const (
	TypeTextInput   = "text_input"
	TypeListInput   = "list_input"
	TypeTemplate    = "template"
	TypeJoin        = "join"
	TypeLLMChat     = "llm_chat"
	TypeRerank      = "rerank"
	TypeHTTPRequest = "http_request"
)

// Deps are the external services built-in blocks call. A nil Provider or
// Reranker leaves the corresponding block type registered; creating an
// instance then fails.
type Deps struct {
	Provider llm.Provider
	Reranker llm.Reranker
	// HTTPClient is used by http_request blocks. Defaults to a client with
	// DefaultHTTPTimeout.
	HTTPClient *http.Client
	// AllowPrivateIPs disables SSRF protection for every http_request block.
	// Only meant for tests and trusted networks.
	AllowPrivateIPs bool
}

type builtin struct {
	info    workflow.BlockTypeInfo
	factory func(deps Deps) workflow.BlockFactory
}

func builtins() []builtin {
	return []builtin{
		{textInputInfo, newTextInput},
		{listInputInfo, newListInput},
		{templateInfo, newTemplate},
		{joinInfo, newJoin},
		{llmChatInfo, newLLMChat},
		{rerankInfo, newRerank},
		{httpRequestInfo, newHTTPRequest},
	}
}

// RegisterBuiltins registers every built-in block type with reg.
func RegisterBuiltins(reg *workflow.Registry, deps Deps) error {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	for _, b := range builtins() {
		if err := reg.Register(b.info, b.factory(deps)); err != nil {
			return err
		}
	}
	return nil
}

// config helpers. Values come from decoded YAML or JSON, so numbers may be
// int or float64 and lists arrive as []any.

func configString(cfg map[string]any, key, def string) (string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("config %q must be a string, got %T", key, v)
	}
	return s, nil
}

func configInt(cfg map[string]any, key string, def int) (int, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("config %q must be an integer, got %v", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("config %q must be an integer: %w", key, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("config %q must be an integer, got %T", key, v)
}

func configFloat(cfg map[string]any, key string, def float64) (float64, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("config %q must be a number, got %T", key, v)
}

func configBool(cfg map[string]any, key string, def bool) (bool, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("config %q must be a boolean, got %T", key, v)
	}
	return b, nil
}

func configStrings(cfg map[string]any, key string) ([]string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return nil, nil
	}
	out, ok := workflow.DataTypeStringList.Coerce(v)
	if !ok {
		return nil, fmt.Errorf("config %q must be a list of strings, got %T", key, v)
	}
	return out.([]string), nil
}

func configStringMap(cfg map[string]any, key string) (map[string]string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return nil, nil
	}
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]string:
		for k, s := range m {
			out[k] = s
		}
	case map[string]any:
		for k, raw := range m {
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("config %q: value for %q must be a string", key, k)
			}
			out[k] = s
		}
	default:
		return nil, fmt.Errorf("config %q must be a map of strings, got %T", key, v)
	}
	return out, nil
}

func configDuration(cfg map[string]any, key string, def time.Duration) (time.Duration, error) {
	s, err := configString(cfg, key, "")
	if err != nil || s == "" {
		return def, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config %q: %w", key, err)
	}
	return d, nil
}
