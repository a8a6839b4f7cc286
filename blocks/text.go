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
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"axonflow/flowgraph/workflow"
)

var templateInfo = workflow.BlockTypeInfo{
	Type:         TypeTemplate,
	DisplayName:  "Template",
	Description:  "Renders a Go text/template. Each name in config.inputs becomes a string input; run parameters are available as .params.",
	Outputs:      []workflow.Output{workflow.NewOutput("text", workflow.DataTypeString, "Rendered text")},
	DynamicPorts: true,
}

var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"join":  strings.Join,
}

const paramsKey = "params"

func newTemplate(Deps) workflow.BlockFactory {
	return func(spec workflow.BlockSpec) (*workflow.Block, error) {
		text, err := configString(spec.Config, "template", "")
		if err != nil {
			return nil, err
		}
		if text == "" {
			return nil, errors.New("template is required")
		}
		names, err := configStrings(spec.Config, "inputs")
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(spec.ID).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template: %w", err)
		}

		inputs := make([]workflow.Input, 0, len(names))
		for _, name := range names {
			if name == paramsKey {
				return nil, fmt.Errorf("input name %q is reserved", paramsKey)
			}
			inputs = append(inputs, workflow.NewInput(name, workflow.DataTypeString, ""))
		}

		process := func(ctx context.Context, rc *workflow.RunContext, in workflow.Values) (workflow.Values, error) {
			data := make(map[string]any, len(in)+1)
			for k, v := range in {
				data[k] = v
			}
			params := rc.Params
			if params == nil {
				params = map[string]any{}
			}
			data[paramsKey] = params

			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, data); err != nil {
				return nil, workflow.Permanent(fmt.Errorf("render template: %w", err))
			}
			return workflow.Values{"text": buf.String()}, nil
		}

		opts := append(spec.Options(TypeTemplate), workflow.WithProcessorFunc(process))
		return workflow.NewBlock(spec.Name, inputs, templateInfo.Outputs, opts...)
	}
}

var joinInfo = workflow.BlockTypeInfo{
	Type:        TypeJoin,
	DisplayName: "Join",
	Description: "Joins a string list with config.separator (default newline).",
	Inputs:      []workflow.Input{workflow.NewInput("items", workflow.DataTypeStringList, "Items to join")},
	Outputs:     []workflow.Output{workflow.NewOutput("text", workflow.DataTypeString, "Joined text")},
}

func newJoin(Deps) workflow.BlockFactory {
	return func(spec workflow.BlockSpec) (*workflow.Block, error) {
		sep, err := configString(spec.Config, "separator", "\n")
		if err != nil {
			return nil, err
		}
		process := func(ctx context.Context, rc *workflow.RunContext, in workflow.Values) (workflow.Values, error) {
			return workflow.Values{"text": strings.Join(in.Strings("items"), sep)}, nil
		}
		opts := append(spec.Options(TypeJoin), workflow.WithProcessorFunc(process))
		return workflow.NewBlock(spec.Name, joinInfo.Inputs, joinInfo.Outputs, opts...)
	}
}
