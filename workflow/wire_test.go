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

func newInputBlock(dt DataType) *Block {
	return MustBlock("InputBlock", nil, []Output{NewOutput("output1", dt, "Input data")})
}

func newProcessBlock() *Block {
	return MustBlock("ProcessBlock",
		[]Input{NewInput("input1", DataTypeString, "Input data")},
		[]Output{NewOutput("output1", DataTypeString, "Processed data")},
	)
}

func TestNewWire(t *testing.T) {
	input := newInputBlock(DataTypeString)
	process := newProcessBlock()

	w, err := NewWire(input, "output1", process, "input1")
	require.NoError(t, err)
	assert.Same(t, input, w.Source())
	assert.Same(t, process, w.Target())
	assert.Equal(t, "output1", w.SourceOutput())
	assert.Equal(t, "input1", w.TargetInput())
	assert.Contains(t, w.String(), input.ID()+".output1")
}

func TestNewWire_TypeMismatch(t *testing.T) {
	bad := newInputBlock(DataTypeInteger)
	process := newProcessBlock()

	_, err := NewWire(bad, "output1", process, "input1")
	var mismatch *PortTypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, DataTypeInteger, mismatch.SourceType)
	assert.Equal(t, DataTypeString, mismatch.TargetType)
	assert.Equal(t, "input1", mismatch.TargetPort)
}

func TestNewWire_PortNotFound(t *testing.T) {
	input := newInputBlock(DataTypeString)
	process := newProcessBlock()

	tests := []struct {
		name      string
		output    string
		input     string
		direction Direction
	}{
		{"missing source output", "nope", "input1", DirectionOutput},
		{"missing target input", "output1", "nope", DirectionInput},
		{"input name used as output", "input1", "input1", DirectionOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWire(input, tt.output, process, tt.input)
			var notFound *PortNotFoundError
			require.True(t, errors.As(err, &notFound))
			assert.Equal(t, tt.direction, notFound.Direction)
		})
	}
}

func TestNewWire_NilBlocks(t *testing.T) {
	_, err := NewWire(nil, "a", newProcessBlock(), "input1")
	assert.Error(t, err)
}

func TestMustWire_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustWire(newInputBlock(DataTypeInteger), "output1", newProcessBlock(), "input1")
	})
}
