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

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/flowgraph/storage"
	"axonflow/flowgraph/workflow"
)

type failingRepo struct {
	storage.NoOpExecutionRepository
}

func (failingRepo) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func (failingRepo) ListExecutions(ctx context.Context, opts storage.ListOptions) ([]workflow.Summary, int, error) {
	return nil, 0, errors.New("connection refused")
}

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})
	h := NewHandler(svc, metrics, log.New(io.Discard, "", 0))
	srv := httptest.NewServer(h.Router([]string{"*"}))
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHandler_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := do(t, "GET", srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode[map[string]string](t, body)["status"])

	resp, body = do(t, "GET", srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "# metrics")
}

func TestHandler_HealthUnavailable(t *testing.T) {
	svc, _ := newTestService(t)
	svc.executions = failingRepo{}
	srv := httptest.NewServer(NewHandler(svc, nil, log.New(io.Discard, "", 0)).Router([]string{"*"}))
	defer srv.Close()

	resp, _ := do(t, "GET", srv.URL+"/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = do(t, "GET", srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, "GET", srv.URL+"/api/v1/executions", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", decode[ErrorResponse](t, body).Code)
}

func TestHandler_DefinitionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/api/v1/workflows"

	resp, body := do(t, "PUT", base+"/greeting", greetingDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	saved := decode[workflow.Definition](t, body)
	assert.Equal(t, "greeting", saved.Name())

	resp, body = do(t, "GET", base+"/greeting", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[workflow.Definition](t, body).Spec.Blocks, 2)

	resp, body = do(t, "GET", base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[ListDefinitionsResponse](t, body).Total)

	resp, _ = do(t, "DELETE", base+"/greeting", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, "GET", base+"/greeting", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errResp := decode[ErrorResponse](t, body)
	assert.Equal(t, "NOT_FOUND", errResp.Code)
	assert.Equal(t, "not_found", errResp.Error)

	resp, _ = do(t, "DELETE", base+"/greeting", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_PutDefinitionJSONAndNameFill(t *testing.T) {
	srv, _ := newTestServer(t)
	doc := map[string]any{
		"apiVersion": workflow.DefinitionAPIVersion,
		"kind":       workflow.DefinitionKind,
		"metadata":   map[string]any{},
		"spec": map[string]any{
			"blocks": []map[string]any{{"id": "who", "type": "text_input", "config": map[string]any{"value": "x"}}},
		},
	}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	resp, body := do(t, "PUT", srv.URL+"/api/v1/workflows/from-json", string(payload))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	filled := decode[workflow.Definition](t, body)
	assert.Equal(t, "from-json", filled.Name())
}

func TestHandler_PutDefinitionErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/api/v1/workflows/"

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed document", "greeting", "{not: [valid", http.StatusBadRequest, "BAD_REQUEST"},
		{"name mismatch", "other", greetingDoc, http.StatusBadRequest, "NAME_MISMATCH"},
		{"bad shape", "greeting", "apiVersion: v0\nkind: Workflow\nmetadata:\n  name: greeting\n", http.StatusUnprocessableEntity, "INVALID_DEFINITION"},
		{"invalid graph", "unbound", unboundDoc, http.StatusUnprocessableEntity, "INVALID_DEFINITION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, "PUT", base+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.Equal(t, tt.code, decode[ErrorResponse](t, body).Code)
		})
	}
}

func TestHandler_PutInvalidGraphListsViolations(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := do(t, "PUT", srv.URL+"/api/v1/workflows/unbound", unboundDoc)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	out := decode[InvalidDefinitionResponse](t, body)
	require.Len(t, out.Violations, 1)
	assert.Equal(t, workflow.ViolationUnboundInput, out.Violations[0].Kind)
	assert.Equal(t, "greet", out.Violations[0].BlockID)
}

func TestHandler_ValidateDefinition(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/api/v1/workflows/"

	resp, body := do(t, "POST", base+"unbound/validate", unboundDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	result := decode[workflow.ValidationResult](t, body)
	assert.False(t, result.Valid)
	assert.Len(t, result.Violations, 1)

	resp, _ = do(t, "POST", base+"greeting/validate", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, "PUT", base+"greeting", greetingDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = do(t, "POST", base+"greeting/validate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[workflow.ValidationResult](t, body).Valid)
}

func TestHandler_ValidateDefinitionUnsizedEmptyBody(t *testing.T) {
	svc, _ := newTestService(t)
	router := NewHandler(svc, http.NotFoundHandler(), log.New(io.Discard, "", 0)).Router([]string{"*"})
	def, err := workflow.ParseDefinition([]byte(greetingDoc))
	require.NoError(t, err)
	require.NoError(t, svc.SaveDefinition(context.Background(), def))

	for _, body := range []string{"", "\n  \n"} {
		req := httptest.NewRequest("POST", "/api/v1/workflows/greeting/validate", strings.NewReader(body))
		// a chunked request carries no length
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, decode[workflow.ValidationResult](t, rec.Body.Bytes()).Valid)
	}
}

func TestHandler_ExecuteAndHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	api := srv.URL + "/api/v1"

	resp, _ := do(t, "PUT", api+"/workflows/greeting", greetingDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, "PUT", api+"/workflows/strict", strictDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, "POST", api+"/workflows/greeting/execute", `{"params":{"name":"http"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	exec := decode[workflow.Execution](t, body)
	assert.Equal(t, workflow.ExecutionStatusCompleted, exec.Status)
	out, ok := exec.Output("greet", "text")
	require.True(t, ok)
	assert.Equal(t, "hello http", out)

	resp, body = do(t, "POST", api+"/workflows/strict/execute", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	failed := decode[workflow.Execution](t, body)
	assert.Equal(t, workflow.ExecutionStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)

	resp, body = do(t, "GET", api+"/executions?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[ListExecutionsResponse](t, body)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.Limit)
	assert.Len(t, list.Executions, 1)

	resp, body = do(t, "GET", api+"/executions?workflow=greeting&status=completed", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decode[ListExecutionsResponse](t, body)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, exec.ID, list.Executions[0].ID)

	resp, body = do(t, "GET", api+"/executions/"+exec.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, exec.ID, decode[workflow.Execution](t, body).ID)

	resp, _ = do(t, "DELETE", api+"/executions/"+exec.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, "GET", api+"/executions/"+exec.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_ExecuteErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	api := srv.URL + "/api/v1/workflows/"

	resp, _ := do(t, "POST", api+"missing/execute", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, "PUT", api+"greeting", greetingDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := do(t, "POST", api+"greeting/execute", "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", decode[ErrorResponse](t, body).Code)
}

func TestHandler_ListBlockTypes(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := do(t, "GET", srv.URL+"/api/v1/block-types", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		BlockTypes []workflow.BlockTypeInfo `json:"block_types"`
		Total      int                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, len(out.BlockTypes), out.Total)
	assert.Greater(t, out.Total, 0)
}

func TestHandler_CORSPreflight(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, nil, log.New(io.Discard, "", 0)).Router([]string{"https://app.example.com"})

	req := httptest.NewRequest("OPTIONS", "/api/v1/workflows", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/health", bytes.NewReader(nil))
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
