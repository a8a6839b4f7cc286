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
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"gopkg.in/yaml.v3"

	"axonflow/flowgraph/storage"
	"axonflow/flowgraph/workflow"
)

// MaxRequestBodySize bounds definition and execute request bodies.
const MaxRequestBodySize = 1 << 20

// Handler serves the flowgraph HTTP API.
type Handler struct {
	service *Service
	logger  *log.Logger
	metrics http.Handler
}

// NewHandler creates a handler. metrics may be nil, in which case
// /metrics is not served. A nil logger uses log.Default().
func NewHandler(service *Service, metrics http.Handler, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, logger: logger, metrics: metrics}
}

// RegisterRoutes registers the API routes with a gorilla/mux router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/workflows", h.ListDefinitions).Methods("GET")
	api.HandleFunc("/workflows/{name}", h.GetDefinition).Methods("GET")
	api.HandleFunc("/workflows/{name}", h.PutDefinition).Methods("PUT")
	api.HandleFunc("/workflows/{name}", h.DeleteDefinition).Methods("DELETE")
	api.HandleFunc("/workflows/{name}/validate", h.ValidateDefinition).Methods("POST")
	api.HandleFunc("/workflows/{name}/execute", h.ExecuteWorkflow).Methods("POST")
	api.HandleFunc("/executions", h.ListExecutions).Methods("GET")
	api.HandleFunc("/executions/{id}", h.GetExecution).Methods("GET")
	api.HandleFunc("/executions/{id}", h.DeleteExecution).Methods("DELETE")
	api.HandleFunc("/block-types", h.ListBlockTypes).Methods("GET")
}

// Router returns the routes wrapped in CORS handling for origins.
func (h *Handler) Router(origins []string) http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	})
	return c.Handler(r)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		h.logger.Printf("[Flowgraph] Health check failed: %v", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ListDefinitionsResponse is the response for listing definitions
type ListDefinitionsResponse struct {
	Workflows []*workflow.Definition `json:"workflows"`
	Total     int                    `json:"total"`
}

// ListDefinitions handles GET /api/v1/workflows
func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.service.ListDefinitions(r.Context())
	if err != nil {
		h.logger.Printf("[Flowgraph] ListDefinitions error: %v", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list workflows")
		return
	}
	h.writeJSON(w, http.StatusOK, ListDefinitionsResponse{Workflows: defs, Total: len(defs)})
}

// GetDefinition handles GET /api/v1/workflows/{name}
func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	def, err := h.service.GetDefinition(r.Context(), name)
	if err != nil {
		h.handleStoreError(w, "GetDefinition", err, "Workflow not found")
		return
	}
	h.writeJSON(w, http.StatusOK, def)
}

// PutDefinition handles PUT /api/v1/workflows/{name}. The body is a YAML or
// JSON definition; an empty metadata.name takes the path name.
func (h *Handler) PutDefinition(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	def, ok := h.readDefinition(w, r, name)
	if !ok {
		return
	}
	if err := h.service.SaveDefinition(r.Context(), def); err != nil {
		h.handleDefinitionError(w, "PutDefinition", err)
		return
	}
	h.writeJSON(w, http.StatusOK, def)
}

// DeleteDefinition handles DELETE /api/v1/workflows/{name}
func (h *Handler) DeleteDefinition(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.service.DeleteDefinition(r.Context(), name); err != nil {
		h.handleStoreError(w, "DeleteDefinition", err, "Workflow not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateDefinition handles POST /api/v1/workflows/{name}/validate. With a
// body the submitted definition is validated; with an empty or blank body
// the stored definition is.
func (h *Handler) ValidateDefinition(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Failed to read request body")
		return
	}

	var def *workflow.Definition
	if len(bytes.TrimSpace(body)) == 0 {
		stored, err := h.service.GetDefinition(r.Context(), name)
		if err != nil {
			h.handleStoreError(w, "ValidateDefinition", err, "Workflow not found")
			return
		}
		def = stored
	} else {
		var ok bool
		if def, ok = h.parseDefinition(w, body, name); !ok {
			return
		}
	}

	result, err := h.service.ValidateDefinition(def)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "INVALID_DEFINITION", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ExecuteRequest is the optional body of an execute call
type ExecuteRequest struct {
	Params map[string]any `json:"params"`
}

// ExecuteWorkflow handles POST /api/v1/workflows/{name}/execute. A run that
// fails still answers 200 with the record; its status says failed.
func (h *Handler) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req ExecuteRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Failed to read request body")
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON: "+err.Error())
			return
		}
	}

	exec, err := h.service.Execute(r.Context(), name, req.Params)
	if exec != nil {
		h.writeJSON(w, http.StatusOK, exec)
		return
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "NOT_FOUND", "Workflow not found")
	case errors.Is(err, storage.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, ErrInvalidDefinition):
		h.writeError(w, http.StatusUnprocessableEntity, "INVALID_DEFINITION", err.Error())
	default:
		h.logger.Printf("[Flowgraph] ExecuteWorkflow error for %s: %v", name, err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to execute workflow")
	}
}

// ListExecutionsResponse is the response for listing executions
type ListExecutionsResponse struct {
	Executions []workflow.Summary `json:"executions"`
	Total      int                `json:"total"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// ListExecutions handles GET /api/v1/executions
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		WorkflowName: q.Get("workflow"),
		Status:       q.Get("status"),
	}
	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			opts.Limit = l
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			opts.Offset = o
		}
	}
	opts = opts.Normalize()

	summaries, total, err := h.service.ListExecutions(r.Context(), opts)
	if err != nil {
		h.logger.Printf("[Flowgraph] ListExecutions error: %v", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list executions")
		return
	}
	h.writeJSON(w, http.StatusOK, ListExecutionsResponse{
		Executions: summaries,
		Total:      total,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
	})
}

// GetExecution handles GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, err := h.service.GetExecution(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, "GetExecution", err, "Execution not found")
		return
	}
	h.writeJSON(w, http.StatusOK, exec)
}

// DeleteExecution handles DELETE /api/v1/executions/{id}
func (h *Handler) DeleteExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.DeleteExecution(r.Context(), id); err != nil {
		h.handleStoreError(w, "DeleteExecution", err, "Execution not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBlockTypes handles GET /api/v1/block-types
func (h *Handler) ListBlockTypes(w http.ResponseWriter, r *http.Request) {
	types := h.service.BlockTypes()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"block_types": types,
		"total":       len(types),
	})
}

// readDefinition parses the request body and reconciles its name with the
// path. It writes the error response itself.
func (h *Handler) readDefinition(w http.ResponseWriter, r *http.Request, name string) (*workflow.Definition, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Failed to read request body")
		return nil, false
	}
	return h.parseDefinition(w, body, name)
}

func (h *Handler) parseDefinition(w http.ResponseWriter, body []byte, name string) (*workflow.Definition, bool) {
	var def workflow.Definition
	// JSON is valid YAML, so one decoder serves both content types.
	if err := yaml.Unmarshal(body, &def); err != nil {
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid definition document: "+err.Error())
		return nil, false
	}
	if def.Metadata.Name == "" {
		def.Metadata.Name = name
	}
	if def.Metadata.Name != name {
		h.writeError(w, http.StatusBadRequest, "NAME_MISMATCH",
			ErrNameMismatch.Error()+": "+def.Metadata.Name+" != "+name)
		return nil, false
	}
	if err := def.Validate(); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "INVALID_DEFINITION", err.Error())
		return nil, false
	}
	return &def, true
}

func (h *Handler) handleDefinitionError(w http.ResponseWriter, op string, err error) {
	var invalid *InvalidDefinitionError
	switch {
	case errors.As(err, &invalid) && len(invalid.Violations) > 0:
		h.writeJSON(w, http.StatusUnprocessableEntity, InvalidDefinitionResponse{
			ErrorResponse: ErrorResponse{Error: "invalid_definition", Code: "INVALID_DEFINITION", Message: err.Error()},
			Violations:    invalid.Violations,
		})
	case errors.Is(err, ErrInvalidDefinition):
		h.writeError(w, http.StatusUnprocessableEntity, "INVALID_DEFINITION", err.Error())
	case errors.Is(err, storage.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	default:
		h.logger.Printf("[Flowgraph] %s error: %v", op, err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save workflow")
	}
}

func (h *Handler) handleStoreError(w http.ResponseWriter, op string, err error, notFound string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "NOT_FOUND", notFound)
	case errors.Is(err, storage.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	default:
		h.logger.Printf("[Flowgraph] %s error: %v", op, err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
	}
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InvalidDefinitionResponse adds the graph violations to an error
type InvalidDefinitionResponse struct {
	ErrorResponse
	Violations []workflow.Violation `json:"violations"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("[Flowgraph] Failed to write response: %v", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   strings.ToLower(code),
		Code:    code,
		Message: message,
	})
}
