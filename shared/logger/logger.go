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

package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

// ParseLevel converts a level name to a LogLevel. Unknown names map to INFO.
func ParseLevel(s string) LogLevel {
	lvl := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[lvl]; ok {
		return lvl
	}
	return INFO
}

// Logger provides structured JSON logging scoped to a component. Entries
// carry the workflow name and execution id so a run can be traced across
// the executor, the service and the stores.
type Logger struct {
	Component  string
	InstanceID string
	Container  string

	mu       sync.Mutex
	out      *log.Logger
	minLevel LogLevel
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp   string                 `json:"timestamp"`
	Level       LogLevel               `json:"level"`
	Component   string                 `json:"component"`
	InstanceID  string                 `json:"instance_id"`
	Container   string                 `json:"container"`
	Workflow    string                 `json:"workflow,omitempty"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Message     string                 `json:"message"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component writing to stdout.
// The minimum level is read from LOG_LEVEL.
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
		out:        log.New(os.Stdout, "", 0),
		minLevel:   ParseLevel(os.Getenv("LOG_LEVEL")),
	}
}

// NewWithWriter creates a Logger that writes to w. Useful for tests and for
// routing logs to a file.
func NewWithWriter(component string, w io.Writer) *Logger {
	l := New(component)
	l.out = log.New(w, "", 0)
	return l
}

// Discard returns a Logger that drops every entry.
func Discard(component string) *Logger {
	return NewWithWriter(component, io.Discard)
}

// SetLevel changes the minimum level written.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return levelRank[level] >= levelRank[l.minLevel]
}

// Log creates a structured log entry and writes it as one JSON line
func (l *Logger) Log(level LogLevel, workflow, executionID, message string, fields map[string]interface{}) {
	if l == nil || !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Level:       level,
		Component:   l.Component,
		InstanceID:  l.InstanceID,
		Container:   l.Container,
		Workflow:    workflow,
		ExecutionID: executionID,
		Message:     message,
		Fields:      fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	out := l.out
	if out == nil {
		out = log.Default()
	}
	out.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(workflow, executionID, message string, fields map[string]interface{}) {
	l.Log(INFO, workflow, executionID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(workflow, executionID, message string, fields map[string]interface{}) {
	l.Log(ERROR, workflow, executionID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(workflow, executionID, message string, fields map[string]interface{}) {
	l.Log(WARN, workflow, executionID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(workflow, executionID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, workflow, executionID, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(workflow, executionID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(workflow, executionID, message, fields)
}

// ErrorWithCode logs an error with status code
func (l *Logger) ErrorWithCode(workflow, executionID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(workflow, executionID, message, fields)
}
