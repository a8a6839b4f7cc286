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
	"math"
	"sort"
)

// DataType is the semantic type tag carried by a port. The set is closed:
// wires are only allowed between ports with identical tags.
type DataType string

// Supported data types.
const (
	DataTypeString     DataType = "string"
	DataTypeInteger    DataType = "integer"
	DataTypeFloat      DataType = "float"
	DataTypeBoolean    DataType = "boolean"
	DataTypeStringList DataType = "string_list"
	DataTypeFloatList  DataType = "float_list"
	DataTypeObject     DataType = "object"
	DataTypeBytes      DataType = "bytes"
)

var validDataTypes = map[DataType]bool{
	DataTypeString:     true,
	DataTypeInteger:    true,
	DataTypeFloat:      true,
	DataTypeBoolean:    true,
	DataTypeStringList: true,
	DataTypeFloatList:  true,
	DataTypeObject:     true,
	DataTypeBytes:      true,
}

// DataTypes returns every supported data type in lexical order.
func DataTypes() []DataType {
	out := make([]DataType, 0, len(validDataTypes))
	for dt := range validDataTypes {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether t is one of the supported data types.
func (t DataType) Valid() bool {
	return validDataTypes[t]
}

// CompatibleWith reports whether a value produced on a port of type t may be
// delivered to a port of type target.
func (t DataType) CompatibleWith(target DataType) bool {
	return t == target
}

// Check reports whether value conforms to t.
func (t DataType) Check(value any) bool {
	_, ok := t.Coerce(value)
	return ok
}

// Coerce converts value into the canonical Go representation for t:
// string, int64, float64, bool, []string, []float64, any (object) or []byte.
// Decoded JSON and YAML values ([]any, float64 numbers) are accepted.
func (t DataType) Coerce(value any) (any, bool) {
	if value == nil {
		return nil, false
	}
	switch t {
	case DataTypeString:
		s, ok := value.(string)
		return s, ok
	case DataTypeInteger:
		return toInt64(value)
	case DataTypeFloat:
		return toFloat64(value)
	case DataTypeBoolean:
		b, ok := value.(bool)
		return b, ok
	case DataTypeStringList:
		switch v := value.(type) {
		case []string:
			return v, true
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, false
				}
				out = append(out, s)
			}
			return out, true
		}
		return nil, false
	case DataTypeFloatList:
		switch v := value.(type) {
		case []float64:
			return v, true
		case []any:
			out := make([]float64, 0, len(v))
			for _, item := range v {
				f, ok := toFloat64(item)
				if !ok {
					return nil, false
				}
				out = append(out, f.(float64))
			}
			return out, true
		}
		return nil, false
	case DataTypeObject:
		return value, true
	case DataTypeBytes:
		switch v := value.(type) {
		case []byte:
			return v, true
		case string:
			return []byte(v), true
		}
		return nil, false
	}
	return nil, false
}

func toInt64(value any) (any, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float64:
		// JSON numbers decode as float64
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), true
		}
	}
	return nil, false
}

func toFloat64(value any) (any, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return nil, false
}

// Port is a named, typed slot on a block.
type Port struct {
	Name        string   `json:"name" yaml:"name"`
	Label       string   `json:"label,omitempty" yaml:"label,omitempty"`
	DataType    DataType `json:"data_type" yaml:"data_type"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Input is a port consumed by a block. An optional input may be left
// unbound; a default is delivered when no wire feeds the port.
type Input struct {
	Port     `yaml:",inline"`
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`
	Default  any  `json:"default,omitempty" yaml:"default,omitempty"`
}

// HasDefault reports whether the input carries a default value.
func (in Input) HasDefault() bool {
	return in.Default != nil
}

// Output is a port produced by a block.
type Output struct {
	Port `yaml:",inline"`
}

// NewInput is a shorthand for a required input port.
func NewInput(name string, dt DataType, description string) Input {
	return Input{Port: Port{Name: name, Label: name, DataType: dt, Description: description}}
}

// NewOutput is a shorthand for an output port.
func NewOutput(name string, dt DataType, description string) Output {
	return Output{Port: Port{Name: name, Label: name, DataType: dt, Description: description}}
}

// Values maps port names to values. Values handed to a processor are in the
// canonical representation of each port's data type.
type Values map[string]any

// Has reports whether name is present.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// String returns the named string value, or "" when absent.
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Int returns the named integer value, or 0 when absent.
func (v Values) Int(name string) int64 {
	i, _ := v[name].(int64)
	return i
}

// Float returns the named float value, or 0 when absent.
func (v Values) Float(name string) float64 {
	f, _ := v[name].(float64)
	return f
}

// Bool returns the named boolean value, or false when absent.
func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

// Strings returns the named string list, or nil when absent.
func (v Values) Strings(name string) []string {
	s, _ := v[name].([]string)
	return s
}

// Floats returns the named float list, or nil when absent.
func (v Values) Floats(name string) []float64 {
	f, _ := v[name].([]float64)
	return f
}
