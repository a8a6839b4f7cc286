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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DanglingReference(t *testing.T) {
	a := constBlock(t, "a", "x")
	outsider := passBlock(t, "outsider")
	wf := New("wf", []*Block{a}, []*Wire{MustWire(a, "out", outsider, "in")})

	result := wf.Validate()
	require.False(t, result.Valid)
	require.True(t, result.Has(ViolationDanglingWire))
	assert.Equal(t, StateUnvalidated, wf.State())

	var dangling *DanglingReferenceError
	require.True(t, errors.As(result.Err(wf.Name()), &dangling))
	assert.Equal(t, "outsider", dangling.Block)
	assert.Equal(t, "target", dangling.End)
	assert.Equal(t, 0, result.Violations[0].WireIndex)
}

func TestValidate_DuplicateInputBinding(t *testing.T) {
	a := constBlock(t, "a", "x")
	b := constBlock(t, "b", "y")
	c := passBlock(t, "c")
	wf := New("wf", []*Block{a, b, c}, []*Wire{
		MustWire(a, "out", c, "in"),
		MustWire(b, "out", c, "in"),
	})

	result := wf.Validate()
	require.False(t, result.Valid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, ViolationDuplicateBinding, result.Violations[0].Kind)

	var dup *DuplicateInputBindingError
	require.True(t, errors.As(result.Err(wf.Name()), &dup))
	assert.Equal(t, 2, dup.Wires)
	assert.Equal(t, "in", dup.Port)
}

func TestValidate_FanOutAllowed(t *testing.T) {
	a := constBlock(t, "a", "x")
	b := passBlock(t, "b")
	c := passBlock(t, "c")
	wf := New("wf", []*Block{a, b, c}, []*Wire{
		MustWire(a, "out", b, "in"),
		MustWire(a, "out", c, "in"),
	})

	assert.True(t, wf.Validate().Valid)
}

func TestValidate_UnboundInputPolicy(t *testing.T) {
	required := passBlock(t, "required")
	optional := MustBlock("optional", []Input{{Port: Port{Name: "in", DataType: DataTypeString}, Optional: true}}, nil, WithID("optional"))
	defaulted := MustBlock("defaulted", []Input{{Port: Port{Name: "in", DataType: DataTypeString}, Default: "d"}}, nil, WithID("defaulted"))

	result := New("wf", []*Block{required, optional, defaulted}, nil).Validate()
	require.False(t, result.Valid)
	require.Len(t, result.Violations, 1)
	v := result.Violations[0]
	assert.Equal(t, ViolationUnboundInput, v.Kind)
	assert.Equal(t, "required", v.BlockID)
	assert.Equal(t, "in", v.Port)

	var unbound *UnboundInputError
	assert.True(t, errors.As(v.Err, &unbound))
}

func TestValidate_Cycle(t *testing.T) {
	a := passBlock(t, "a")
	b := passBlock(t, "b")
	wf := New("wf", []*Block{a, b}, []*Wire{
		MustWire(a, "out", b, "in"),
		MustWire(b, "out", a, "in"),
	})

	result := wf.Validate()
	require.False(t, result.Valid)
	assert.True(t, result.Has(ViolationCycle))

	var cyclic *CyclicGraphError
	assert.True(t, errors.As(result.Err(wf.Name()), &cyclic))
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	a := constBlock(t, "a", "x")
	b := constBlock(t, "b", "y")
	c := passBlock(t, "c")
	d := passBlock(t, "d")
	outsider := passBlock(t, "outsider")
	wf := New("wf", []*Block{a, b, c, d}, []*Wire{
		MustWire(a, "out", c, "in"),
		MustWire(b, "out", c, "in"),
		MustWire(a, "out", outsider, "in"),
	})

	result := wf.Validate()
	require.False(t, result.Valid)
	kinds := make([]ViolationKind, 0, len(result.Violations))
	for _, v := range result.Violations {
		kinds = append(kinds, v.Kind)
	}
	assert.Equal(t, []ViolationKind{
		ViolationDanglingWire,
		ViolationDuplicateBinding,
		ViolationUnboundInput,
	}, kinds)
	assert.Equal(t, "d", result.Violations[2].BlockID)
}

func TestValidate_DuplicateBlock(t *testing.T) {
	a := constBlock(t, "a", "x")
	sameID := constBlock(t, "a", "y")
	wf := New("wf", []*Block{a, a, sameID}, nil)

	result := wf.Validate()
	require.False(t, result.Valid)
	count := 0
	for _, v := range result.Violations {
		if v.Kind == ViolationDuplicateBlock {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestValidate_Idempotent(t *testing.T) {
	a := passBlock(t, "a")
	b := passBlock(t, "b")
	c := passBlock(t, "c")
	wf := New("wf", []*Block{a, b, c}, []*Wire{
		MustWire(a, "out", b, "in"),
		MustWire(b, "out", a, "in"),
	})

	first := wf.Validate()
	second := wf.Validate()
	assert.Equal(t, first.Valid, second.Valid)
	require.Equal(t, len(first.Violations), len(second.Violations))
	for i := range first.Violations {
		assert.Equal(t, first.Violations[i].Kind, second.Violations[i].Kind)
		assert.Equal(t, first.Violations[i].Message, second.Violations[i].Message)
		assert.Equal(t, first.Violations[i].BlockID, second.Violations[i].BlockID)
	}

	valid := New("ok", []*Block{constBlock(t, "x", "1")}, nil)
	assert.Equal(t, valid.Validate(), valid.Validate())
}

func TestValidationError_UnwrapsEveryViolation(t *testing.T) {
	a := passBlock(t, "a")
	b := passBlock(t, "b")
	outsider := constBlock(t, "outsider", "x")
	wf := New("wf", []*Block{a, b}, []*Wire{
		MustWire(a, "out", b, "in"),
		MustWire(b, "out", a, "in"),
		MustWire(outsider, "out", b, "in"),
	})

	err := wf.Validate().Err(wf.Name())
	require.Error(t, err)

	var cyclic *CyclicGraphError
	var dangling *DanglingReferenceError
	assert.True(t, errors.As(err, &cyclic))
	assert.True(t, errors.As(err, &dangling))
	assert.Contains(t, err.Error(), `workflow "wf" is invalid`)
}
