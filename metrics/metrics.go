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

// Package metrics exports workflow execution metrics to Prometheus through
// a workflow.Observer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"axonflow/flowgraph/workflow"
)

// untypedBlock labels blocks built without a registry type.
const untypedBlock = "custom"

// Collector records execution metrics. It is safe for concurrent runs.
type Collector struct {
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	inFlight          prometheus.Gauge
	blocks            *prometheus.CounterVec
	blockDuration     *prometheus.HistogramVec
	blockRetries      *prometheus.CounterVec
}

var _ workflow.Observer = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axonflow_flowgraph_executions_total",
				Help: "Total number of workflow executions by final status",
			},
			[]string{"workflow", "status"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "axonflow_flowgraph_execution_duration_milliseconds",
				Help:    "Workflow execution duration in milliseconds",
				Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
			},
			[]string{"workflow"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "axonflow_flowgraph_executions_in_flight",
				Help: "Number of workflow executions currently running",
			},
		),
		blocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axonflow_flowgraph_blocks_total",
				Help: "Total number of block executions by final status",
			},
			[]string{"block_type", "status"},
		),
		blockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "axonflow_flowgraph_block_duration_milliseconds",
				Help:    "Block execution duration in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
			},
			[]string{"block_type"},
		),
		blockRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axonflow_flowgraph_block_retries_total",
				Help: "Total number of block retry attempts",
			},
			[]string{"block_type"},
		),
	}

	for _, col := range []prometheus.Collector{
		c.executions, c.executionDuration, c.inFlight,
		c.blocks, c.blockDuration, c.blockRetries,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNewCollector is like NewCollector but panics on registration errors.
func MustNewCollector(reg prometheus.Registerer) *Collector {
	c, err := NewCollector(reg)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Collector) WorkflowStarted(ev workflow.WorkflowEvent) {
	c.inFlight.Inc()
}

func (c *Collector) BlockStarted(ev workflow.BlockEvent) {}

func (c *Collector) BlockFinished(ev workflow.BlockEvent) {
	blockType := ev.Result.BlockType
	if blockType == "" {
		blockType = untypedBlock
	}
	c.blocks.WithLabelValues(blockType, string(ev.Result.Status)).Inc()
	if ev.Result.Attempts > 0 {
		c.blockDuration.WithLabelValues(blockType).Observe(float64(ev.Duration.Milliseconds()))
	}
	if ev.Result.Attempts > 1 {
		c.blockRetries.WithLabelValues(blockType).Add(float64(ev.Result.Attempts - 1))
	}
}

func (c *Collector) WorkflowFinished(ev workflow.WorkflowEvent) {
	c.inFlight.Dec()
	c.executions.WithLabelValues(ev.WorkflowName, string(ev.Status)).Inc()
	c.executionDuration.WithLabelValues(ev.WorkflowName).Observe(float64(ev.Duration.Milliseconds()))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
