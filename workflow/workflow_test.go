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

func TestWorkflowCreation(t *testing.T) {
	input := newInputBlock(DataTypeString)
	process := newProcessBlock()
	wire := MustWire(input, "output1", process, "input1")

	wf := New("test_workflow", []*Block{input, process}, []*Wire{wire})

	assert.Equal(t, "test_workflow", wf.Name())
	assert.Len(t, wf.Blocks(), 2)
	assert.Len(t, wf.Wires(), 1)
	assert.Same(t, input, wf.Wires()[0].Source())
	assert.Same(t, process, wf.Wires()[0].Target())
	assert.Equal(t, StateUnvalidated, wf.State())
}

func TestWorkflow_ValidateMovesToValid(t *testing.T) {
	input := newInputBlock(DataTypeString)
	process := newProcessBlock()
	wf := New("wf", []*Block{input, process}, []*Wire{MustWire(input, "output1", process, "input1")})

	result := wf.Validate()
	assert.True(t, result.Valid)
	assert.Empty(t, result.Violations)
	assert.NoError(t, result.Err(wf.Name()))
	assert.Equal(t, StateValid, wf.State())
}

func TestWorkflow_MutationsResetState(t *testing.T) {
	a := constBlock(t, "a", "x")
	b := MustBlock("b", []Input{{Port: Port{Name: "in", DataType: DataTypeString}, Optional: true}},
		[]Output{strOut("out")}, WithID("b"))
	wf := New("wf", []*Block{a}, nil)

	steps := []struct {
		name   string
		mutate func() error
	}{
		{"add block", func() error { return wf.AddBlock(b) }},
		{"add wire", func() error {
			_, err := wf.Connect(a, "out", b, "in")
			return err
		}},
		{"remove wire", func() error {
			_, err := wf.RemoveWire(wf.Wires()[0])
			return err
		}},
		{"remove block", func() error {
			_, err := wf.RemoveBlock(b)
			return err
		}},
	}

	for _, step := range steps {
		require.True(t, wf.Validate().Valid, step.name)
		require.Equal(t, StateValid, wf.State(), step.name)
		require.NoError(t, step.mutate(), step.name)
		assert.Equal(t, StateUnvalidated, wf.State(), step.name)
	}
}

func TestWorkflow_ValidToUnvalidatedOnMutation(t *testing.T) {
	a := constBlock(t, "a", "x")
	wf := New("wf", []*Block{a}, nil)
	require.True(t, wf.Validate().Valid)
	require.Equal(t, StateValid, wf.State())

	require.NoError(t, wf.AddBlock(constBlock(t, "c", "y")))
	assert.Equal(t, StateUnvalidated, wf.State())
}

func TestWorkflow_AddBlockTwice(t *testing.T) {
	a := constBlock(t, "a", "x")
	wf := New("wf", []*Block{a}, nil)

	err := wf.AddBlock(a)
	var dup *DuplicateBlockError
	require.True(t, errors.As(err, &dup))
	assert.Len(t, wf.Blocks(), 1)
	assert.Error(t, wf.AddBlock(nil))
	assert.Error(t, wf.AddWire(nil))
}

func TestWorkflow_RemoveBlockCascades(t *testing.T) {
	a := constBlock(t, "a", "x")
	b := passBlock(t, "b")
	c := passBlock(t, "c")
	ab := MustWire(a, "out", b, "in")
	bc := MustWire(b, "out", c, "in")
	ac := MustWire(a, "out", c, "in")
	wf := New("wf", []*Block{a, b, c}, []*Wire{ab, bc, ac})

	removed, err := wf.RemoveBlock(b)
	require.NoError(t, err)
	assert.ElementsMatch(t, []*Wire{ab, bc}, removed)
	assert.Equal(t, []string{"a", "c"}, ids(wf.Blocks()))

	remaining := wf.Wires()
	require.Len(t, remaining, 1)
	assert.Same(t, ac, remaining[0])
	for _, w := range remaining {
		assert.NotSame(t, b, w.Source())
		assert.NotSame(t, b, w.Target())
	}

	result := wf.Validate()
	assert.False(t, result.Has(ViolationDanglingWire))
}

func TestWorkflow_RemoveUnknown(t *testing.T) {
	a := constBlock(t, "a", "x")
	wf := New("wf", []*Block{a}, nil)

	removed, err := wf.RemoveBlock(passBlock(t, "other"))
	require.NoError(t, err)
	assert.Nil(t, removed)

	ok, err := wf.RemoveWire(MustWire(a, "out", passBlock(t, "x"), "in"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkflow_BlockLookup(t *testing.T) {
	a := constBlock(t, "a", "x")
	wf := New("wf", []*Block{a}, nil)

	got, ok := wf.Block("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = wf.Block("missing")
	assert.False(t, ok)
}

func TestWorkflow_SlicesAreCopies(t *testing.T) {
	a := constBlock(t, "a", "x")
	wf := New("wf", []*Block{a}, nil)
	blocks := wf.Blocks()
	blocks[0] = nil
	assert.Same(t, a, wf.Blocks()[0])
}
