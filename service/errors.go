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

package service

import (
	"errors"

	"axonflow/flowgraph/workflow"
)

var (
	// ErrInvalidDefinition is returned when a definition does not parse,
	// does not build against the registry, or builds an invalid graph.
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrNameMismatch is returned when the name in a request path differs
	// from metadata.name in the body.
	ErrNameMismatch = errors.New("definition name does not match request")
)

// InvalidDefinitionError carries the graph violations of a definition that
// built but did not validate.
type InvalidDefinitionError struct {
	Name       string
	Violations []workflow.Violation
	Err        error
}

func (e *InvalidDefinitionError) Error() string {
	return ErrInvalidDefinition.Error() + ": " + e.Err.Error()
}

func (e *InvalidDefinitionError) Unwrap() []error {
	return []error{ErrInvalidDefinition, e.Err}
}
