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

package workflow

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefinitionAPIVersion is the current definition schema version
	DefinitionAPIVersion = "flowgraph.axonflow.io/v1"
	// DefinitionKind is the kind of a workflow definition document
	DefinitionKind = "Workflow"
)

// Definition is the serialized form of a workflow, following the
// Kubernetes-style apiVersion/kind pattern. Blocks are identified by id and
// resolved into instances through a Registry.
type Definition struct {
	APIVersion string             `yaml:"apiVersion" json:"apiVersion"`
	Kind       string             `yaml:"kind" json:"kind"`
	Metadata   DefinitionMetadata `yaml:"metadata" json:"metadata"`
	Spec       DefinitionSpec     `yaml:"spec" json:"spec"`
}

// DefinitionMetadata identifies a definition
type DefinitionMetadata struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string            `yaml:"version,omitempty" json:"version,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// DefinitionSpec holds the graph
type DefinitionSpec struct {
	Blocks []BlockDef `yaml:"blocks" json:"blocks"`
	Wires  []WireDef  `yaml:"wires,omitempty" json:"wires,omitempty"`
}

// BlockDef declares one block instance
type BlockDef struct {
	ID         string         `yaml:"id" json:"id"`
	Type       string         `yaml:"type" json:"type"`
	Name       string         `yaml:"name,omitempty" json:"name,omitempty"`
	Config     map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	Timeout    string         `yaml:"timeout,omitempty" json:"timeout,omitempty"`         // e.g. "30s"
	Retries    int            `yaml:"retries,omitempty" json:"retries,omitempty"`         // extra attempts after the first
	RetryDelay string         `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"` // initial backoff, e.g. "500ms"
}

// WireDef connects "block.output" to "block.input"
type WireDef struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Endpoints splits From and To into block id and port name.
func (w WireDef) Endpoints() (srcBlock, srcPort, dstBlock, dstPort string, err error) {
	var ok bool
	if srcBlock, srcPort, ok = splitEndpoint(w.From); !ok {
		return "", "", "", "", fmt.Errorf("wire from %q: expected block.port", w.From)
	}
	if dstBlock, dstPort, ok = splitEndpoint(w.To); !ok {
		return "", "", "", "", fmt.Errorf("wire to %q: expected block.port", w.To)
	}
	return srcBlock, srcPort, dstBlock, dstPort, nil
}

func splitEndpoint(s string) (string, string, bool) {
	block, port, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || block == "" || port == "" {
		return "", "", false
	}
	return block, port, true
}

// Name returns the workflow name.
func (d *Definition) Name() string { return d.Metadata.Name }

var blockIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks the document shape: version, kind, name, block ids and
// wire endpoint syntax. Graph checks happen when the built workflow is
// validated.
func (d *Definition) Validate() error {
	var errs []error
	if d.APIVersion != DefinitionAPIVersion {
		errs = append(errs, fmt.Errorf("unsupported apiVersion %q (expected %s)", d.APIVersion, DefinitionAPIVersion))
	}
	if d.Kind != DefinitionKind {
		errs = append(errs, fmt.Errorf("unsupported kind %q (expected %s)", d.Kind, DefinitionKind))
	}
	if d.Metadata.Name == "" {
		errs = append(errs, errors.New("metadata.name is required"))
	}
	if len(d.Spec.Blocks) == 0 {
		errs = append(errs, errors.New("spec.blocks must declare at least one block"))
	}

	seen := make(map[string]bool, len(d.Spec.Blocks))
	for i, b := range d.Spec.Blocks {
		switch {
		case b.ID == "":
			errs = append(errs, fmt.Errorf("spec.blocks[%d]: id is required", i))
		case !blockIDPattern.MatchString(b.ID):
			errs = append(errs, fmt.Errorf("spec.blocks[%d]: id %q may only contain letters, digits, '-' and '_'", i, b.ID))
		case seen[b.ID]:
			errs = append(errs, fmt.Errorf("spec.blocks[%d]: duplicate id %q", i, b.ID))
		}
		seen[b.ID] = true
		if b.Type == "" {
			errs = append(errs, fmt.Errorf("spec.blocks[%d]: type is required", i))
		}
		if _, err := parseOptionalDuration(b.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("spec.blocks[%d]: timeout: %w", i, err))
		}
		if _, err := parseOptionalDuration(b.RetryDelay); err != nil {
			errs = append(errs, fmt.Errorf("spec.blocks[%d]: retry_delay: %w", i, err))
		}
		if b.Retries < 0 {
			errs = append(errs, fmt.Errorf("spec.blocks[%d]: retries must not be negative", i))
		}
	}
	for i, w := range d.Spec.Wires {
		if _, _, _, _, err := w.Endpoints(); err != nil {
			errs = append(errs, fmt.Errorf("spec.wires[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}

// Build resolves the definition into a workflow using reg. Every problem
// found while creating blocks and wires is returned together. The returned
// workflow is unvalidated.
func (d *Definition) Build(reg *Registry) (*Workflow, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var errs []error
	blocks := make([]*Block, 0, len(d.Spec.Blocks))
	byID := make(map[string]*Block, len(d.Spec.Blocks))
	for _, def := range d.Spec.Blocks {
		timeout, _ := parseOptionalDuration(def.Timeout)
		delay, _ := parseOptionalDuration(def.RetryDelay)
		b, err := reg.Create(def.Type, BlockSpec{
			ID:      def.ID,
			Name:    def.Name,
			Config:  def.Config,
			Timeout: timeout,
			Retry:   RetryPolicy{MaxRetries: def.Retries, BaseDelay: delay},
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		blocks = append(blocks, b)
		byID[def.ID] = b
	}

	wires := make([]*Wire, 0, len(d.Spec.Wires))
	for i, def := range d.Spec.Wires {
		srcID, srcPort, dstID, dstPort, _ := def.Endpoints()
		src, okSrc := byID[srcID]
		dst, okDst := byID[dstID]
		if !okSrc && !declares(d, srcID) {
			errs = append(errs, &DanglingReferenceError{Wire: fmt.Sprintf("spec.wires[%d]", i), Block: srcID, End: "source"})
		}
		if !okDst && !declares(d, dstID) {
			errs = append(errs, &DanglingReferenceError{Wire: fmt.Sprintf("spec.wires[%d]", i), Block: dstID, End: "target"})
		}
		if !okSrc || !okDst {
			continue
		}
		w, err := NewWire(src, srcPort, dst, dstPort)
		if err != nil {
			errs = append(errs, fmt.Errorf("spec.wires[%d]: %w", i, err))
			continue
		}
		wires = append(wires, w)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return New(d.Metadata.Name, blocks, wires), nil
}

// declares reports whether the definition declares a block id, used to
// avoid reporting a dangling wire for a block that merely failed to build.
func declares(d *Definition, id string) bool {
	for _, b := range d.Spec.Blocks {
		if b.ID == id {
			return true
		}
	}
	return false
}

// DefinitionFromWorkflow serializes a workflow. Every block must have been
// created through a registry so that it carries a type.
func DefinitionFromWorkflow(wf *Workflow) (*Definition, error) {
	d := &Definition{
		APIVersion: DefinitionAPIVersion,
		Kind:       DefinitionKind,
		Metadata:   DefinitionMetadata{Name: wf.Name()},
	}
	for _, b := range wf.Blocks() {
		if b.blockType == "" {
			return nil, fmt.Errorf("block %s has no type and cannot be serialized", b)
		}
		def := BlockDef{
			ID:      b.id,
			Type:    b.blockType,
			Name:    b.name,
			Config:  b.Config(),
			Retries: b.retry.MaxRetries,
		}
		if b.timeout > 0 {
			def.Timeout = b.timeout.String()
		}
		if b.retry.BaseDelay > 0 {
			def.RetryDelay = b.retry.BaseDelay.String()
		}
		d.Spec.Blocks = append(d.Spec.Blocks, def)
	}
	for _, w := range wf.Wires() {
		d.Spec.Wires = append(d.Spec.Wires, WireDef{
			From: blockRef(w.source) + "." + w.sourceOutput,
			To:   blockRef(w.target) + "." + w.targetInput,
		})
	}
	return d, nil
}

// ParseDefinition parses a YAML (or JSON) document and validates its shape.
func ParseDefinition(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	return &d, nil
}

// LoadDefinitionFile reads a definition from disk, expanding ${VAR} and
// ${VAR:-default} references from the environment first.
func LoadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}
	return ParseDefinition([]byte(ExpandEnv(string(data))))
}

// Marshal encodes the definition as YAML.
func (d *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

var envVarRegex = regexp.MustCompile(`\$\{[^}]+\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with environment values.
// Undefined variables without a default expand to the empty string.
func ExpandEnv(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		name := match[2 : len(match)-1]
		defaultVal := ""
		if idx := strings.Index(name, ":-"); idx != -1 {
			defaultVal = name[idx+2:]
			name = name[:idx]
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultVal
	})
}
