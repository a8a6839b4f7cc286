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

/*
Package logger provides structured JSON logging for flowgraph components.

# Overview

Every entry is a single JSON line written to stdout (or a supplied writer),
so logs can be shipped to CloudWatch, ELK or any other aggregator without
parsing.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (executor, service, flowctl, ...)
  - Instance ID and container name
  - Workflow name and execution ID for run correlation
  - Custom fields

# Usage

	log := logger.New("executor")

	log.Info("summarize", execID, "Block completed", map[string]interface{}{
	    "block": "llm",
	})

	log.InfoWithDuration("summarize", execID, "Workflow completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Levels

The minimum level is taken from the LOG_LEVEL environment variable and
defaults to INFO. SetLevel overrides it at runtime.
*/
package logger
