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

func TestTopologicalOrder_Linear(t *testing.T) {
	a := constBlock(t, "a", "x")
	b := passBlock(t, "b")
	c := passBlock(t, "c")
	// declared in reverse to show that dependencies win over declaration order
	wf := New("wf", []*Block{c, b, a}, []*Wire{
		MustWire(a, "out", b, "in"),
		MustWire(b, "out", c, "in"),
	})

	order, err := wf.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(order))
}

func TestTopologicalOrder_DeclarationTieBreak(t *testing.T) {
	z := constBlock(t, "z", "1")
	y := constBlock(t, "y", "2")
	x := concatBlock(t, "x", "left", "right")
	w := passBlock(t, "w")
	wf := New("wf", []*Block{z, w, y, x}, []*Wire{
		MustWire(z, "out", x, "left"),
		MustWire(y, "out", x, "right"),
		MustWire(y, "out", w, "in"),
	})

	order, err := wf.TopologicalOrder()
	require.NoError(t, err)
	// z and y are both ready; z is declared first. After y, w (declared
	// before x) and x become ready.
	assert.Equal(t, []string{"z", "y", "w", "x"}, ids(order))

	again, err := wf.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, ids(order), ids(again))
}

func TestTopologicalOrder_IndependentBlocksKeepDeclarationOrder(t *testing.T) {
	blocks := []*Block{constBlock(t, "c", "1"), constBlock(t, "a", "2"), constBlock(t, "b", "3")}
	order, err := New("wf", blocks, nil).TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(order))
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	a := passBlock(t, "a")
	b := passBlock(t, "b")
	wf := New("wf", []*Block{a, b}, []*Wire{
		MustWire(a, "out", b, "in"),
		MustWire(b, "out", a, "in"),
	})

	_, err := wf.TopologicalOrder()
	var cyclic *CyclicGraphError
	require.True(t, errors.As(err, &cyclic))
	assert.Equal(t, []string{"a", "b", "a"}, cyclic.Cycle)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestTopologicalOrder_CycleDownstreamOfSource(t *testing.T) {
	src := constBlock(t, "src", "x")
	a := concatBlock(t, "a", "seed", "loop")
	b := passBlock(t, "b")
	c := passBlock(t, "c")
	wf := New("wf", []*Block{c, src, a, b}, []*Wire{
		MustWire(src, "out", a, "seed"),
		MustWire(a, "out", b, "in"),
		MustWire(b, "out", a, "loop"),
		MustWire(b, "out", c, "in"),
	})

	_, err := wf.TopologicalOrder()
	var cyclic *CyclicGraphError
	require.True(t, errors.As(err, &cyclic))
	assert.Equal(t, []string{"a", "b", "a"}, cyclic.Cycle)
}

func TestTopologicalOrder_SelfLoop(t *testing.T) {
	a := passBlock(t, "a")
	wf := New("wf", []*Block{a}, []*Wire{MustWire(a, "out", a, "in")})

	_, err := wf.TopologicalOrder()
	var cyclic *CyclicGraphError
	require.True(t, errors.As(err, &cyclic))
	assert.Equal(t, []string{"a", "a"}, cyclic.Cycle)
}

func TestTopologicalOrder_IgnoresDanglingWires(t *testing.T) {
	a := constBlock(t, "a", "x")
	outsider := passBlock(t, "outsider")
	wf := New("wf", []*Block{a}, []*Wire{MustWire(a, "out", outsider, "in")})

	order, err := wf.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(order))
}

func TestTopologicalOrder_RepeatedBlockListedOnce(t *testing.T) {
	a := constBlock(t, "a", "x")
	b := passBlock(t, "b")
	wf := New("wf", []*Block{a, b, a, nil}, []*Wire{MustWire(a, "out", b, "in")})

	order, err := wf.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(order))
}
