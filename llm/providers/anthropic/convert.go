package anthropic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumik/llmwire/llm"
	"github.com/lumik/llmwire/llm/schema"
)

// wire 内容块，Messages API 的请求与响应共用这一形状
type apiContentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Source *apiImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type apiImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

type apiTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

func (p *Provider) mapRequest(cfg llm.RequestConfig, messages []schema.Message, streaming bool) (map[string]any, error) {
	model := cfg.Model
	if model == "" {
		model = p.model
	}

	// system 消息不进消息数组，拼接为顶级 system 字段
	var system strings.Builder
	wmessages := make([]apiMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == schema.RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Text())
			continue
		}
		wm, err := mapMessage(msg)
		if err != nil {
			return nil, err
		}
		wmessages = append(wmessages, wm)
	}

	maxTokens := defaultMaxTokens
	if cfg.MaxTokens != nil {
		maxTokens = *cfg.MaxTokens
	}

	m := map[string]any{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   wmessages,
	}
	if system.Len() > 0 {
		m["system"] = system.String()
	}
	if cfg.Temperature != nil {
		m["temperature"] = *cfg.Temperature
	}
	if cfg.TopP != nil {
		m["top_p"] = *cfg.TopP
	}
	if len(cfg.Stop) > 0 {
		m["stop_sequences"] = cfg.Stop
	}
	if len(cfg.Tools) > 0 {
		wtools := make([]apiTool, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			wtools = append(wtools, apiTool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
		m["tools"] = wtools
	}
	if cfg.ToolChoice != nil {
		m["tool_choice"] = mapToolChoice(*cfg.ToolChoice)
	}
	if streaming {
		m["stream"] = true
	}

	for k, v := range cfg.Extra {
		if _, exists := m[k]; exists && !cfg.AllowExtraOverride {
			p.tr.Logger.Warn("llm: extra field shadowed by standard option", "provider", llm.ProviderAnthropic, "field", k)
			continue
		}
		m[k] = v
	}
	return m, nil
}

func mapMessage(msg schema.Message) (apiMessage, error) {
	// 工具结果作为 user 消息的 tool_result 块回传
	if msg.Role == schema.RoleTool || len(msg.ToolResults) > 0 {
		blocks := make([]apiContentBlock, 0, len(msg.ToolResults))
		for _, tr := range msg.ToolResults {
			blocks = append(blocks, apiContentBlock{
				Type:      "tool_result",
				ToolUseID: tr.ToolCallID,
				Content:   flattenText(tr.Content),
			})
		}
		return apiMessage{Role: "user", Content: blocks}, nil
	}

	blocks := make([]apiContentBlock, 0, len(msg.Content)+len(msg.ToolCalls))
	for _, part := range msg.Content {
		switch v := part.(type) {
		case schema.TextContent:
			blocks = append(blocks, apiContentBlock{Type: "text", Text: v.Text})
		case schema.ImageContent:
			blocks = append(blocks, apiContentBlock{Type: "image", Source: &apiImageSource{
				Type:      "base64",
				MediaType: v.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(v.Data),
			}})
		case schema.ImageURLContent:
			blocks = append(blocks, apiContentBlock{Type: "image", Source: &apiImageSource{
				Type: "url",
				URL:  v.URL,
			}})
		default:
			return apiMessage{}, fmt.Errorf("llm: anthropic does not support content part %T", part)
		}
	}
	for _, tc := range msg.ToolCalls {
		input := json.RawMessage(tc.Arguments)
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, apiContentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Name,
			Input: input,
		})
	}
	return apiMessage{Role: string(msg.Role), Content: blocks}, nil
}

func flattenText(parts []schema.ContentPart) string {
	var b strings.Builder
	for _, part := range parts {
		if tp, ok := part.(schema.TextContent); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

func mapToolChoice(tc schema.ToolChoice) any {
	switch tc.Mode {
	case schema.ToolChoiceNone:
		return map[string]any{"type": "none"}
	case schema.ToolChoiceRequired:
		return map[string]any{"type": "any"}
	case schema.ToolChoiceFunction:
		return map[string]any{"type": "tool", "name": tc.FunctionName}
	default:
		return map[string]any{"type": "auto"}
	}
}
