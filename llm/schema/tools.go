package schema

import "encoding/json"

// ToolDefinition 声明一个模型可调用的工具。
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`

	// InputSchema 通常是一个 JSON Schema 对象
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice models the caller's preference for tool usage.
// For ToolChoiceFunction, set FunctionName.
type ToolChoice struct {
	Mode         ToolChoiceMode `json:"mode"`
	FunctionName string         `json:"function_name,omitempty"`
}
