package schema

import "strings"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart 表示消息内容的一个片段（文本、图片等）。
//
// 对于简单文本消息，使用单个 TextContent 部分（通过 schema.TextPart）。
type ContentPart interface {
	isPart()
}

type TextContent struct {
	Text string
}

func (TextContent) isPart() {}

// ImageContent 内联图片数据（base64 等由 provider 层编码）。
type ImageContent struct {
	MIMEType string
	Data     []byte
}

func (ImageContent) isPart() {}

type ImageURLContent struct {
	URL      string
	MIMEType string
}

func (ImageURLContent) isPart() {}

type FileURLContent struct {
	URL      string
	MIMEType string
}

func (FileURLContent) isPart() {}

// ToolCall 表示一次完整的工具调用。
//
// Arguments 是原始 JSON 文本。流式响应期间参数按片段累积，
// 只有在消息定稿后才保证是完整的 JSON。
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`

	// Index 是同一轮并行调用中的位置
	Index int `json:"index"`
}

// ToolResult 表示工具执行结果，回传给模型。
type ToolResult struct {
	Name       string        `json:"name"`
	Content    []ContentPart `json:"content"`
	ToolCallID string        `json:"tool_call_id"`
}

// Message 是规范化的聊天消息。
//
// Status 和 TurnIndex 仅对 provider 返回的消息有意义；
// 请求消息的 Status 保持零值。
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`

	// Name 可选的发送者名称，并非所有 provider 都支持
	Name string `json:"name,omitempty"`

	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	Status    Status `json:"status,omitempty"`
	TurnIndex int    `json:"turn_index,omitempty"`
}

// Text returns the concatenated plain text of all text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Content {
		if tp, ok := p.(TextContent); ok && tp.Text != "" {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}
