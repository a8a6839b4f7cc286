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

package sqlstore

import (
	"fmt"
	"strings"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	// Name is the database/sql driver name.
	Name string

	placeholder func(n int) string
	schema      []string
	upsertDef   string
	upsertExec  string
}

// Postgres is the PostgreSQL dialect (driver lib/pq).
var Postgres = Dialect{
	Name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	schema: []string{
		`CREATE TABLE IF NOT EXISTS flowgraph_definitions (
			name VARCHAR(255) PRIMARY KEY,
			description TEXT,
			document JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS flowgraph_executions (
			id VARCHAR(64) PRIMARY KEY,
			workflow_name VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			block_count INTEGER NOT NULL DEFAULT 0,
			failed_blocks INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			record JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flowgraph_executions_workflow
			ON flowgraph_executions (workflow_name, started_at DESC)`,
	},
	upsertDef: `
		INSERT INTO flowgraph_definitions (name, description, document, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at`,
	upsertExec: `
		INSERT INTO flowgraph_executions (
			id, workflow_name, status, started_at, completed_at,
			duration_ms, block_count, failed_blocks, error_message, record
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			block_count = EXCLUDED.block_count,
			failed_blocks = EXCLUDED.failed_blocks,
			error_message = EXCLUDED.error_message,
			record = EXCLUDED.record`,
}

// MySQL is the MySQL dialect (driver go-sql-driver/mysql). The DSN must use
// parseTime=true; Open sets it.
var MySQL = Dialect{
	Name:        "mysql",
	placeholder: func(int) string { return "?" },
	schema: []string{
		`CREATE TABLE IF NOT EXISTS flowgraph_definitions (
			name VARCHAR(255) PRIMARY KEY,
			description TEXT,
			document JSON NOT NULL,
			updated_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS flowgraph_executions (
			id VARCHAR(64) PRIMARY KEY,
			workflow_name VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			started_at DATETIME(6) NOT NULL,
			completed_at DATETIME(6) NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			block_count INT NOT NULL DEFAULT 0,
			failed_blocks INT NOT NULL DEFAULT 0,
			error_message TEXT,
			record JSON NOT NULL,
			INDEX idx_flowgraph_executions_workflow (workflow_name, started_at)
		)`,
	},
	upsertDef: `
		INSERT INTO flowgraph_definitions (name, description, document, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			description = VALUES(description),
			document = VALUES(document),
			updated_at = VALUES(updated_at)`,
	upsertExec: `
		INSERT INTO flowgraph_executions (
			id, workflow_name, status, started_at, completed_at,
			duration_ms, block_count, failed_blocks, error_message, record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			completed_at = VALUES(completed_at),
			duration_ms = VALUES(duration_ms),
			block_count = VALUES(block_count),
			failed_blocks = VALUES(failed_blocks),
			error_message = VALUES(error_message),
			record = VALUES(record)`,
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
}

// bind rewrites "?" markers in query to the dialect's placeholders.
func (d Dialect) bind(query string) string {
	if d.placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
