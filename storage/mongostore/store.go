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

// Package mongostore persists workflow definitions and execution records in
// MongoDB. Definitions and full execution records are kept as JSON strings
// so that arbitrary block config survives a round trip unchanged. Listing
// fields of an execution are stored alongside for querying.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"axonflow/flowgraph/storage"
	"axonflow/flowgraph/workflow"
)

const (
	definitionsCollection = "flowgraph_definitions"
	executionsCollection  = "flowgraph_executions"

	// DefaultConnectTimeout bounds Connect
	DefaultConnectTimeout = 10 * time.Second
)

type definitionDoc struct {
	Name        string    `bson:"_id"`
	Description string    `bson:"description,omitempty"`
	Document    string    `bson:"document"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type executionDoc struct {
	ID           string     `bson:"_id"`
	WorkflowName string     `bson:"workflow_name"`
	Status       string     `bson:"status"`
	StartedAt    time.Time  `bson:"started_at"`
	CompletedAt  *time.Time `bson:"completed_at,omitempty"`
	DurationMs   int64      `bson:"duration_ms"`
	BlockCount   int        `bson:"block_count"`
	FailedBlocks int        `bson:"failed_blocks"`
	Error        string     `bson:"error,omitempty"`
	Record       string     `bson:"record,omitempty"`
}

// Store implements storage.DefinitionStore and storage.ExecutionRepository.
type Store struct {
	client      *mongo.Client
	definitions *mongo.Collection
	executions  *mongo.Collection
}

var (
	_ storage.DefinitionStore     = (*Store)(nil)
	_ storage.ExecutionRepository = (*Store)(nil)
)

// New uses the collections of db.
func New(db *mongo.Database) *Store {
	return &Store{
		client:      db.Client(),
		definitions: db.Collection(definitionsCollection),
		executions:  db.Collection(executionsCollection),
	}
}

// Connect dials uri, verifies the primary is reachable and opens database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName("AxonFlow-Flowgraph").
		SetConnectTimeout(DefaultConnectTimeout).
		SetRetryWrites(true).
		SetRetryReads(true)

	connectCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	s := New(client.Database(database))
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// EnsureIndexes creates the execution listing index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.executions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "workflow_name", Value: 1}, {Key: "started_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create execution index: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, def *workflow.Definition) error {
	doc, err := toDefinitionDoc(def)
	if err != nil {
		return err
	}
	_, err = s.definitions.ReplaceOne(ctx, bson.M{"_id": doc.Name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save definition: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (*workflow.Definition, error) {
	var doc definitionDoc
	err := s.definitions.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("definition %q: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	return storage.DecodeDefinition([]byte(doc.Document))
}

func (s *Store) List(ctx context.Context) ([]*workflow.Definition, error) {
	cursor, err := s.definitions.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []definitionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode definitions: %w", err)
	}
	defs := make([]*workflow.Definition, 0, len(docs))
	for _, doc := range docs {
		def, err := storage.DecodeDefinition([]byte(doc.Document))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.definitions.DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return fmt.Errorf("failed to delete definition: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("definition %q: %w", name, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) SaveExecution(ctx context.Context, exec *workflow.Execution) error {
	doc, err := toExecutionDoc(exec)
	if err != nil {
		return err
	}
	_, err = s.executions.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*workflow.Execution, error) {
	var doc executionDoc
	err := s.executions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("execution %q: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return storage.DecodeExecution([]byte(doc.Record))
}

// ListExecutions reads only the listing fields; the record is projected out.
func (s *Store) ListExecutions(ctx context.Context, opts storage.ListOptions) ([]workflow.Summary, int, error) {
	opts = opts.Normalize()
	filter := listFilter(opts)

	total, err := s.executions.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit)).
		SetProjection(bson.M{"record": 0})
	cursor, err := s.executions.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}
	defer cursor.Close(ctx)

	summaries := []workflow.Summary{}
	for cursor.Next(ctx) {
		var doc executionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("failed to decode execution: %w", err)
		}
		summaries = append(summaries, doc.summary())
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating executions: %w", err)
	}
	return summaries, int(total), nil
}

func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	res, err := s.executions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete execution: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("execution %q: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrDatabaseUnavailable, err)
	}
	return nil
}

func toDefinitionDoc(def *workflow.Definition) (definitionDoc, error) {
	data, err := storage.EncodeDefinition(def)
	if err != nil {
		return definitionDoc{}, err
	}
	return definitionDoc{
		Name:        def.Metadata.Name,
		Description: def.Metadata.Description,
		Document:    string(data),
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

func toExecutionDoc(exec *workflow.Execution) (executionDoc, error) {
	data, err := storage.EncodeExecution(exec)
	if err != nil {
		return executionDoc{}, err
	}
	sum := exec.Summarize()
	return executionDoc{
		ID:           sum.ID,
		WorkflowName: sum.WorkflowName,
		Status:       string(sum.Status),
		StartedAt:    sum.StartedAt,
		CompletedAt:  sum.CompletedAt,
		DurationMs:   sum.DurationMs,
		BlockCount:   sum.BlockCount,
		FailedBlocks: sum.FailedBlocks,
		Error:        sum.Error,
		Record:       string(data),
	}, nil
}

func (d executionDoc) summary() workflow.Summary {
	return workflow.Summary{
		ID:           d.ID,
		WorkflowName: d.WorkflowName,
		Status:       workflow.ExecutionStatus(d.Status),
		StartedAt:    d.StartedAt,
		CompletedAt:  d.CompletedAt,
		DurationMs:   d.DurationMs,
		BlockCount:   d.BlockCount,
		FailedBlocks: d.FailedBlocks,
		Error:        d.Error,
	}
}

func listFilter(opts storage.ListOptions) bson.M {
	filter := bson.M{}
	if opts.WorkflowName != "" {
		filter["workflow_name"] = opts.WorkflowName
	}
	if opts.Status != "" {
		filter["status"] = opts.Status
	}
	return filter
}
