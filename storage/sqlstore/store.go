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

// Package sqlstore persists workflow definitions and execution records in
// PostgreSQL or MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // PostgreSQL driver

	"axonflow/flowgraph/storage"
	"axonflow/flowgraph/workflow"
)

const pingTimeout = 5 * time.Second

// Store implements storage.DefinitionStore and storage.ExecutionRepository
// over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var (
	_ storage.DefinitionStore     = (*Store)(nil)
	_ storage.ExecutionRepository = (*Store)(nil)
)

// New wraps an open database handle.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open connects to the database named by driver ("postgres" or "mysql")
// and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if dialect.Name == MySQL.Name {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(dialect.Name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Name, err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := New(db, dialect)
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// Save creates or replaces a definition.
func (s *Store) Save(ctx context.Context, def *workflow.Definition) error {
	doc, err := storage.EncodeDefinition(def)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.dialect.upsertDef,
		def.Metadata.Name,
		def.Metadata.Description,
		doc,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save definition: %w", err)
	}
	return nil
}

// Get loads a definition by name.
func (s *Store) Get(ctx context.Context, name string) (*workflow.Definition, error) {
	query := s.dialect.bind(`SELECT document FROM flowgraph_definitions WHERE name = ?`)

	var doc []byte
	err := s.db.QueryRowContext(ctx, query, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("definition %q: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	return storage.DecodeDefinition(doc)
}

// List returns every definition sorted by name.
func (s *Store) List(ctx context.Context) ([]*workflow.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM flowgraph_definitions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	defs := []*workflow.Definition{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		def, err := storage.DecodeDefinition(doc)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}
	return defs, nil
}

// Delete removes a definition.
func (s *Store) Delete(ctx context.Context, name string) error {
	query := s.dialect.bind(`DELETE FROM flowgraph_definitions WHERE name = ?`)
	if err := s.execOne(ctx, query, name); err != nil {
		return fmt.Errorf("definition %q: %w", name, err)
	}
	return nil
}

// SaveExecution creates or replaces an execution record.
func (s *Store) SaveExecution(ctx context.Context, exec *workflow.Execution) error {
	record, err := storage.EncodeExecution(exec)
	if err != nil {
		return err
	}
	sum := exec.Summarize()

	_, err = s.db.ExecContext(ctx, s.dialect.upsertExec,
		sum.ID,
		sum.WorkflowName,
		string(sum.Status),
		sum.StartedAt,
		sum.CompletedAt,
		sum.DurationMs,
		sum.BlockCount,
		sum.FailedBlocks,
		sum.Error,
		record,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// GetExecution loads an execution record by id.
func (s *Store) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	query := s.dialect.bind(`SELECT record FROM flowgraph_executions WHERE id = ?`)

	var record []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %q: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return storage.DecodeExecution(record)
}

// ListExecutions returns summaries newest first with the total count of
// matching records.
func (s *Store) ListExecutions(ctx context.Context, opts storage.ListOptions) ([]workflow.Summary, int, error) {
	opts = opts.Normalize()

	var where []string
	var args []any
	if opts.WorkflowName != "" {
		where = append(where, "workflow_name = ?")
		args = append(args, opts.WorkflowName)
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, opts.Status)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := s.dialect.bind("SELECT COUNT(*) FROM flowgraph_executions" + clause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	listQuery := s.dialect.bind(`SELECT id, workflow_name, status, started_at, completed_at,
		duration_ms, block_count, failed_blocks, error_message
		FROM flowgraph_executions` + clause + `
		ORDER BY started_at DESC, id
		LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryContext(ctx, listQuery, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	summaries := []workflow.Summary{}
	for rows.Next() {
		var (
			sum         workflow.Summary
			status      string
			completedAt sql.NullTime
			errMsg      sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.WorkflowName, &status, &sum.StartedAt, &completedAt,
			&sum.DurationMs, &sum.BlockCount, &sum.FailedBlocks, &errMsg); err != nil {
			return nil, 0, fmt.Errorf("failed to scan execution: %w", err)
		}
		sum.Status = workflow.ExecutionStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			sum.CompletedAt = &t
		}
		sum.Error = errMsg.String
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating executions: %w", err)
	}
	return summaries, total, nil
}

// DeleteExecution removes an execution record.
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	query := s.dialect.bind(`DELETE FROM flowgraph_executions WHERE id = ?`)
	if err := s.execOne(ctx, query, id); err != nil {
		return fmt.Errorf("execution %q: %w", id, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrDatabaseUnavailable, err)
	}
	return nil
}

// execOne runs a statement that must affect exactly one row.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
