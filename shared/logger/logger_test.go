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
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		instanceID     string
		expectedInstID string
	}{
		{name: "with instance ID set", instanceID: "instance-123", expectedInstID: "instance-123"},
		{name: "without instance ID", instanceID: "", expectedInstID: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("INSTANCE_ID", tt.instanceID)

			l := New("executor")
			if l.Component != "executor" {
				t.Errorf("Expected component executor, got %s", l.Component)
			}
			if l.InstanceID != tt.expectedInstID {
				t.Errorf("Expected instance ID %s, got %s", tt.expectedInstID, l.InstanceID)
			}
			if l.Container == "" {
				t.Error("Expected container to be set from hostname")
			}
		})
	}
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) LogEntry {
	t.Helper()
	var entry LogEntry
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v\nOutput: %s", err, line)
	}
	return entry
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(*Logger, string, string, string, map[string]interface{})
		level   LogLevel
	}{
		{name: "Info log", logFunc: (*Logger).Info, level: INFO},
		{name: "Error log", logFunc: (*Logger).Error, level: ERROR},
		{name: "Warn log", logFunc: (*Logger).Warn, level: WARN},
		{name: "Debug log", logFunc: (*Logger).Debug, level: DEBUG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWithWriter("test-component", &buf)
			l.SetLevel(DEBUG)

			tt.logFunc(l, "summarize", "exec-1", "message", map[string]interface{}{"block": "llm"})

			entry := decodeEntry(t, &buf)
			if entry.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, entry.Level)
			}
			if entry.Workflow != "summarize" {
				t.Errorf("Expected workflow summarize, got %s", entry.Workflow)
			}
			if entry.ExecutionID != "exec-1" {
				t.Errorf("Expected execution id exec-1, got %s", entry.ExecutionID)
			}
			if entry.Fields["block"] != "llm" {
				t.Errorf("Expected field block=llm, got %v", entry.Fields["block"])
			}
			if _, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err != nil {
				t.Errorf("Invalid timestamp format: %s", entry.Timestamp)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("test-component", &buf)
	l.SetLevel(WARN)

	l.Info("wf", "", "dropped", nil)
	l.Debug("wf", "", "dropped", nil)
	if buf.Len() != 0 {
		t.Fatalf("Expected no output below WARN, got %q", buf.String())
	}

	l.Warn("wf", "", "kept", nil)
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("Expected WARN entry to be written")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		" WARN ":  WARN,
		"error":   ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestInfoWithDuration(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("test-component", &buf)
	l.SetLevel(INFO)

	l.InfoWithDuration("wf", "exec-1", "done", 12.5, nil)

	entry := decodeEntry(t, &buf)
	if entry.Fields["duration_ms"] != 12.5 {
		t.Errorf("Expected duration_ms 12.5, got %v", entry.Fields["duration_ms"])
	}
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("test-component", &buf)

	l.ErrorWithCode("wf", "exec-1", "failed", 500, errors.New("boom"), map[string]interface{}{"path": "/x"})

	entry := decodeEntry(t, &buf)
	if entry.Fields["status_code"] != float64(500) {
		t.Errorf("Expected status_code 500, got %v", entry.Fields["status_code"])
	}
	if entry.Fields["error"] != "boom" {
		t.Errorf("Expected error boom, got %v", entry.Fields["error"])
	}
	if entry.Fields["path"] != "/x" {
		t.Errorf("Expected path field to be kept")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Info("wf", "", "ignored", nil)
}
