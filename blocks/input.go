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

package blocks

import (
	"context"
	"errors"
	"fmt"

	"axonflow/flowgraph/workflow"
)

var textInputInfo = workflow.BlockTypeInfo{
	Type:        TypeTextInput,
	DisplayName: "Text Input",
	Description: "Emits a run parameter, falling back to a configured value.",
	Outputs:     []workflow.Output{workflow.NewOutput("text", workflow.DataTypeString, "Input text")},
}

// newTextInput config: param (run parameter name), value (fallback).
func newTextInput(Deps) workflow.BlockFactory {
	return func(spec workflow.BlockSpec) (*workflow.Block, error) {
		param, err := configString(spec.Config, "param", "")
		if err != nil {
			return nil, err
		}
		value, hasValue := spec.Config["value"]
		if hasValue {
			if _, ok := value.(string); !ok {
				return nil, fmt.Errorf("config \"value\" must be a string, got %T", value)
			}
		}
		if param == "" && !hasValue {
			return nil, errors.New("text_input needs a param or a value")
		}

		process := func(ctx context.Context, rc *workflow.RunContext, _ workflow.Values) (workflow.Values, error) {
			if param != "" {
				if v, ok := rc.Param(param); ok {
					s, ok := v.(string)
					if !ok {
						return nil, workflow.Permanent(fmt.Errorf("run parameter %q must be a string, got %T", param, v))
					}
					return workflow.Values{"text": s}, nil
				}
			}
			if hasValue {
				return workflow.Values{"text": value}, nil
			}
			return nil, workflow.Permanent(fmt.Errorf("run parameter %q is required", param))
		}

		opts := append(spec.Options(TypeTextInput), workflow.WithProcessorFunc(process))
		return workflow.NewBlock(spec.Name, nil, textInputInfo.Outputs, opts...)
	}
}

var listInputInfo = workflow.BlockTypeInfo{
	Type:        TypeListInput,
	DisplayName: "List Input",
	Description: "Emits a run parameter or configured items as a string list.",
	Outputs:     []workflow.Output{workflow.NewOutput("items", workflow.DataTypeStringList, "Input items")},
}

// newListInput config: param, items.
func newListInput(Deps) workflow.BlockFactory {
	return func(spec workflow.BlockSpec) (*workflow.Block, error) {
		param, err := configString(spec.Config, "param", "")
		if err != nil {
			return nil, err
		}
		items, err := configStrings(spec.Config, "items")
		if err != nil {
			return nil, err
		}
		_, hasItems := spec.Config["items"]
		if param == "" && !hasItems {
			return nil, errors.New("list_input needs a param or items")
		}
		if items == nil {
			items = []string{}
		}

		process := func(ctx context.Context, rc *workflow.RunContext, _ workflow.Values) (workflow.Values, error) {
			if param != "" {
				if v, ok := rc.Param(param); ok {
					list, ok := workflow.DataTypeStringList.Coerce(v)
					if !ok {
						return nil, workflow.Permanent(fmt.Errorf("run parameter %q must be a list of strings, got %T", param, v))
					}
					return workflow.Values{"items": list}, nil
				}
			}
			if hasItems {
				return workflow.Values{"items": append([]string(nil), items...)}, nil
			}
			return nil, workflow.Permanent(fmt.Errorf("run parameter %q is required", param))
		}

		opts := append(spec.Options(TypeListInput), workflow.WithProcessorFunc(process))
		return workflow.NewBlock(spec.Name, nil, listInputInfo.Outputs, opts...)
	}
}
