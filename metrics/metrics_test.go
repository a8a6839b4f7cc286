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

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/flowgraph/shared/logger"
	"axonflow/flowgraph/workflow"
)

func runWorkflow(t *testing.T, c *Collector, wf *workflow.Workflow) error {
	t.Helper()
	exec := workflow.NewExecutor(workflow.WithLogger(logger.Discard("executor")), workflow.WithObserver(c))
	_, err := exec.Run(context.Background(), wf, nil)
	return err
}

func TestCollector_SuccessfulRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	src := workflow.MustBlock("src", nil,
		[]workflow.Output{workflow.NewOutput("out", workflow.DataTypeString, "")},
		workflow.WithID("src"), workflow.WithType("text_input"),
		workflow.WithProcessorFunc(func(ctx context.Context, rc *workflow.RunContext, in workflow.Values) (workflow.Values, error) {
			return workflow.Values{"out": "x"}, nil
		}))
	calls := 0
	flaky := workflow.MustBlock("flaky",
		[]workflow.Input{workflow.NewInput("in", workflow.DataTypeString, "")},
		nil,
		workflow.WithID("flaky"), workflow.WithType("flaky"),
		workflow.WithRetry(workflow.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}),
		workflow.WithProcessorFunc(func(ctx context.Context, rc *workflow.RunContext, in workflow.Values) (workflow.Values, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("transient")
			}
			return workflow.Values{}, nil
		}))
	wf := workflow.New("ok", []*workflow.Block{src, flaky}, []*workflow.Wire{workflow.MustWire(src, "out", flaky, "in")})

	require.NoError(t, runWorkflow(t, c, wf))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.executions.WithLabelValues("ok", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.blocks.WithLabelValues("text_input", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.blocks.WithLabelValues("flaky", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.blockRetries.WithLabelValues("flaky")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 2, testutil.CollectAndCount(c.blockDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(c.executionDuration))
}

func TestCollector_FailedRun(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	bad := workflow.MustBlock("bad", nil, nil, workflow.WithID("bad"),
		workflow.WithProcessorFunc(func(ctx context.Context, rc *workflow.RunContext, in workflow.Values) (workflow.Values, error) {
			return nil, workflow.Permanent(errors.New("boom"))
		}))

	require.Error(t, runWorkflow(t, c, workflow.New("broken", []*workflow.Block{bad}, nil)))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.executions.WithLabelValues("broken", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.blocks.WithLabelValues(untypedBlock, "failed")))
	assert.Equal(t, 0, testutil.CollectAndCount(c.blockRetries))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
}

func TestCollector_SkippedBlocksCounted(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	bad := workflow.MustBlock("bad", nil,
		[]workflow.Output{workflow.NewOutput("out", workflow.DataTypeString, "")},
		workflow.WithID("bad"), workflow.WithType("text_input"),
		workflow.WithProcessorFunc(func(ctx context.Context, rc *workflow.RunContext, in workflow.Values) (workflow.Values, error) {
			return nil, workflow.Permanent(errors.New("boom"))
		}))
	after := workflow.MustBlock("after",
		[]workflow.Input{workflow.NewInput("in", workflow.DataTypeString, "")},
		nil,
		workflow.WithID("after"), workflow.WithType("sink"),
		workflow.WithProcessorFunc(func(ctx context.Context, rc *workflow.RunContext, in workflow.Values) (workflow.Values, error) {
			return workflow.Values{}, nil
		}))
	wf := workflow.New("halted", []*workflow.Block{bad, after}, []*workflow.Wire{workflow.MustWire(bad, "out", after, "in")})

	require.Error(t, runWorkflow(t, c, wf))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.blocks.WithLabelValues("text_input", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.blocks.WithLabelValues("sink", "skipped")))
	// skipped blocks never ran, so only the failed block has a duration
	assert.Equal(t, 1, testutil.CollectAndCount(c.blockDuration))
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
	assert.Panics(t, func() { MustNewCollector(reg) })
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := MustNewCollector(reg)
	c.WorkflowFinished(workflow.WorkflowEvent{WorkflowName: "wf", Status: workflow.ExecutionStatusCompleted, Duration: 20 * time.Millisecond})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `axonflow_flowgraph_executions_total{status="completed",workflow="wf"} 1`)
	assert.Contains(t, rec.Body.String(), "axonflow_flowgraph_execution_duration_milliseconds_bucket")
}
