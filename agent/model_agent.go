package agent

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/hupe1980/flowmesh/model"
	"github.com/hupe1980/flowmesh/workflow"
)

// defaultPromptTemplate renders the task identity and input payload into a
// single completion prompt.
const defaultPromptTemplate = `Perform the task "{{.name}}" ({{.capability}}).
{{if .input}}Input:
{{range $k, $v := .input}}- {{$k}}: {{$v}}
{{end}}{{end}}Respond with the task result.`

// ModelAgent fulfills a capability by driving a language model: it renders a
// prompt template from the task, issues one completion, and returns the
// generated text as the task output.
type ModelAgent struct {
	BaseAgent
	model model.Model
	opts  ModelAgentOptions
}

// ModelAgentOptions configures a ModelAgent.
type ModelAgentOptions struct {
	// Instruction is passed to the model as system-level guidance.
	Instruction string
	// PromptTemplate renders the user prompt from {{.name}}, {{.capability}}
	// and {{.input}}. Defaults to a generic task prompt.
	PromptTemplate string
	// MaxConcurrent caps simultaneous executions.
	MaxConcurrent int
}

// NewModelAgent creates a model-backed agent for the capability.
func NewModelAgent(name string, capability workflow.Capability, mdl model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		PromptTemplate: defaultPromptTemplate,
		MaxConcurrent:  DefaultMaxConcurrent,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ModelAgent{
		BaseAgent: NewBaseAgent(name, capability, func(o *BaseOptions) {
			o.MaxConcurrent = opts.MaxConcurrent
		}),
		model: mdl,
		opts:  opts,
	}
}

// Execute implements Agent.
func (m *ModelAgent) Execute(ctx context.Context, task *workflow.Task) (workflow.Payload, error) {
	if err := m.AcquireSlot(); err != nil {
		return nil, err
	}
	defer m.ReleaseSlot()

	prompt, err := renderPrompt(m.opts.PromptTemplate, map[string]any{
		"name":       task.Name,
		"capability": string(task.Capability),
		"input":      map[string]any(task.Input),
	})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	resp, err := m.model.Generate(ctx, model.Request{
		Instructions: m.opts.Instruction,
		Prompt:       prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("model generation: %w", err)
	}

	out := workflow.Payload{
		"status": "success",
		"output": resp.Text,
		"model":  m.model.Info().Name,
	}
	if resp.Usage != nil {
		out["total_tokens"] = resp.Usage.TotalTokens
	}

	return out, nil
}

// promptFuncs are the helpers available inside prompt templates.
var promptFuncs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, sep)
	},
}

// renderPrompt expands a prompt template against the task state using
// text/template. Prompts are plain text, so no HTML escaping is applied.
// Strings without template markers pass through untouched.
func renderPrompt(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(promptFuncs).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", err
	}

	return buf.String(), nil
}
