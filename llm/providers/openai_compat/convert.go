package openai_compat

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumik/llmwire/llm"
	"github.com/lumik/llmwire/llm/schema"
)

// apiMessage / api* types model OpenAI-compatible wire payloads. They are
// intentionally distinct from the canonical schema types.
type apiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
	Name    string `json:"name,omitempty"`

	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
}

type apiToolCall struct {
	Index    int             `json:"index"`
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Function apiFunctionCall `json:"function"`
}

type apiFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type apiTool struct {
	Type     string         `json:"type"`
	Function apiFunctionDef `json:"function"`
}

type apiFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func (p *Provider) mapRequest(cfg llm.RequestConfig, messages []schema.Message, streaming bool) (map[string]any, error) {
	model := cfg.Model
	if model == "" {
		model = p.model
	}

	wmessages := make([]apiMessage, 0, len(messages))
	for _, msg := range messages {
		wms, err := p.mapMessage(msg)
		if err != nil {
			return nil, err
		}
		wmessages = append(wmessages, wms...)
	}

	m := map[string]any{
		"model":    model,
		"messages": wmessages,
	}

	if cfg.Temperature != nil {
		m["temperature"] = *cfg.Temperature
	}
	if cfg.TopP != nil {
		m["top_p"] = *cfg.TopP
	}
	if cfg.MaxTokens != nil {
		m["max_tokens"] = *cfg.MaxTokens
	}
	if cfg.Seed != nil {
		m["seed"] = *cfg.Seed
	}
	if cfg.PresencePenalty != nil {
		m["presence_penalty"] = *cfg.PresencePenalty
	}
	if cfg.FrequencyPenalty != nil {
		m["frequency_penalty"] = *cfg.FrequencyPenalty
	}
	if len(cfg.Stop) > 0 {
		m["stop"] = cfg.Stop
	}
	if cfg.N != nil {
		m["n"] = *cfg.N
	}
	if len(cfg.Tools) > 0 {
		wtools := make([]apiTool, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			wtools = append(wtools, apiTool{
				Type: "function",
				Function: apiFunctionDef{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}
		m["tools"] = wtools
	}
	if cfg.ToolChoice != nil {
		m["tool_choice"] = mapToolChoice(*cfg.ToolChoice)
	}
	if cfg.ResponseFormat != nil {
		m["response_format"] = cfg.ResponseFormat
	}

	if streaming {
		m["stream"] = true
		// 请求在最后一个 chunk 上报 token 用量
		m["stream_options"] = map[string]any{"include_usage": true}
	}

	for k, v := range cfg.Extra {
		if _, exists := m[k]; exists && !cfg.AllowExtraOverride {
			p.tr.Logger.Warn("llm: extra field shadowed by standard option", "provider", p.name, "field", k)
			continue
		}
		m[k] = v
	}
	return m, nil
}

// mapMessage 可能展开为多条 wire 消息：tool 角色的每个 ToolResult
// 在 OpenAI 协议中是一条独立的 tool 消息。
func (p *Provider) mapMessage(msg schema.Message) ([]apiMessage, error) {
	if msg.Role == schema.RoleTool || len(msg.ToolResults) > 0 {
		out := make([]apiMessage, 0, len(msg.ToolResults))
		for _, tr := range msg.ToolResults {
			out = append(out, apiMessage{
				Role:       "tool",
				Content:    flattenText(tr.Content),
				ToolCallID: tr.ToolCallID,
			})
		}
		return out, nil
	}

	wm := apiMessage{Role: string(msg.Role), Name: msg.Name}
	content, err := mapContent(p.name, msg.Content)
	if err != nil {
		return nil, err
	}
	wm.Content = content

	if len(msg.ToolCalls) > 0 {
		wm.ToolCalls = make([]apiToolCall, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, apiToolCall{
				Index: tc.Index,
				ID:    tc.ID,
				Type:  "function",
				Function: apiFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
	}
	return []apiMessage{wm}, nil
}

func mapContent(provider llm.Provider, parts []schema.ContentPart) (any, error) {
	if len(parts) == 0 {
		return "", nil
	}

	// 单个纯文本部分用最简单的字符串表示
	if len(parts) == 1 {
		if tp, ok := parts[0].(schema.TextContent); ok {
			return tp.Text, nil
		}
	}

	out := make([]any, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case schema.TextContent:
			out = append(out, map[string]any{"type": "text", "text": v.Text})
		case schema.ImageURLContent:
			out = append(out, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": v.URL},
			})
		case schema.ImageContent:
			url := "data:" + v.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(v.Data)
			out = append(out, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": url},
			})
		default:
			return nil, fmt.Errorf("llm: %s does not support content part %T", provider, part)
		}
	}
	return out, nil
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
		return "none"
	case schema.ToolChoiceRequired:
		return "required"
	case schema.ToolChoiceFunction:
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": tc.FunctionName},
		}
	default:
		return "auto"
	}
}
