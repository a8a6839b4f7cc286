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

package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"axonflow/flowgraph/storage"
	"axonflow/flowgraph/workflow"
)

func TestToDefinitionDoc(t *testing.T) {
	def := &workflow.Definition{
		APIVersion: workflow.DefinitionAPIVersion,
		Kind:       workflow.DefinitionKind,
		Metadata:   workflow.DefinitionMetadata{Name: "greeting", Description: "greets"},
		Spec: workflow.DefinitionSpec{
			Blocks: []workflow.BlockDef{{ID: "a", Type: "text_input", Config: map[string]any{"value": "x", "n": 3}}},
		},
	}

	doc, err := toDefinitionDoc(def)
	require.NoError(t, err)
	assert.Equal(t, "greeting", doc.Name)
	assert.Equal(t, "greets", doc.Description)
	assert.False(t, doc.UpdatedAt.IsZero())

	back, err := storage.DecodeDefinition([]byte(doc.Document))
	require.NoError(t, err)
	assert.Equal(t, "x", back.Spec.Blocks[0].Config["value"])
	assert.Equal(t, 3, back.Spec.Blocks[0].Config["n"])

	_, err = toDefinitionDoc(&workflow.Definition{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestExecutionDoc_RoundTrip(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)
	exec := &workflow.Execution{
		ID:           "exec-1",
		WorkflowName: "greeting",
		Status:       workflow.ExecutionStatusFailed,
		StartedAt:    started,
		CompletedAt:  &completed,
		DurationMs:   1500,
		Error:        "block b failed",
		Blocks: []workflow.BlockExecution{
			{BlockID: "a", Status: workflow.BlockStatusCompleted},
			{BlockID: "b", Status: workflow.BlockStatusFailed},
		},
	}

	doc, err := toExecutionDoc(exec)
	require.NoError(t, err)
	assert.Equal(t, "failed", doc.Status)
	assert.Equal(t, 2, doc.BlockCount)
	assert.Equal(t, 1, doc.FailedBlocks)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var decoded executionDoc
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	sum := decoded.summary()
	assert.Equal(t, exec.Summarize().ID, sum.ID)
	assert.Equal(t, workflow.ExecutionStatusFailed, sum.Status)
	assert.True(t, started.Equal(sum.StartedAt))
	require.NotNil(t, sum.CompletedAt)
	assert.True(t, completed.Equal(*sum.CompletedAt))
	assert.Equal(t, "block b failed", sum.Error)

	record, err := storage.DecodeExecution([]byte(decoded.Record))
	require.NoError(t, err)
	assert.Len(t, record.Blocks, 2)

	_, err = toExecutionDoc(&workflow.Execution{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestExecutionDoc_OmitsEmptyCompletion(t *testing.T) {
	doc, err := toExecutionDoc(&workflow.Execution{ID: "e", WorkflowName: "wf", Status: workflow.ExecutionStatusRunning})
	require.NoError(t, err)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	assert.NotContains(t, m, "completed_at")
	assert.NotContains(t, m, "error")
	assert.Equal(t, "e", m["_id"])
}

func TestListFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, listFilter(storage.ListOptions{}))
	assert.Equal(t, bson.M{"workflow_name": "greeting"}, listFilter(storage.ListOptions{WorkflowName: "greeting"}))
	assert.Equal(t, bson.M{"workflow_name": "greeting", "status": "failed"},
		listFilter(storage.ListOptions{WorkflowName: "greeting", Status: "failed"}))
}
