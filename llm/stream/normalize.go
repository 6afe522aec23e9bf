package stream

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/lumik/llmwire/llm/schema"
)

// normalizer maps decoded provider payloads to canonical deltas. The same
// mapping logic serves both modes: normalizeEvent for streaming payloads
// and normalizeResponse for a complete response body.
type normalizer interface {
	normalizeEvent(payload json.RawMessage) ([]schema.Delta, *schema.Usage, error)
	normalizeResponse(payload json.RawMessage) (schema.ChatResponse, error)
}

// statusFromReason maps provider finish-reason strings to the canonical
// Status. An unrecognized reason does not terminate the stream: it maps to
// incomplete and is logged, since providers add reason strings faster than
// clients update.
func statusFromReason(reason string, provider string, logger *slog.Logger) schema.Status {
	switch reason {
	case "stop", "end_turn", "stop_sequence", "tool_calls", "tool_use":
		return schema.StatusComplete
	case "length", "max_tokens", "model_length":
		return schema.StatusLength
	case "cancelled", "canceled", "abort":
		return schema.StatusCancelled
	}
	logger.Warn("llm: unrecognized finish reason", "provider", provider, "reason", reason)
	return schema.StatusIncomplete
}

// openaiNormalizer decodes chat.completion / chat.completion.chunk
// payloads (OpenAI and compatible providers: DeepSeek, Qwen, Kimi, ...).
type openaiNormalizer struct {
	provider string
	logger   *slog.Logger
}

type oaToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *oaUsage) toSchema() *schema.Usage {
	if u == nil {
		return nil
	}
	return &schema.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

type oaChunk struct {
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string       `json:"role"`
			Content   string       `json:"content"`
			ToolCalls []oaToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *oaUsage `json:"usage"`
}

func (n *openaiNormalizer) normalizeEvent(payload json.RawMessage) ([]schema.Delta, *schema.Usage, error) {
	if pe := detectErrorPayload(n.provider, payload); pe != nil {
		return nil, nil, pe
	}

	var chunk oaChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, nil, &DecodeError{Unit: string(payload), Cause: err}
	}

	// 每个 choice 产出一个 Delta，多个并行补全共享同一个载荷
	var deltas []schema.Delta
	for _, c := range chunk.Choices {
		d := schema.Delta{
			TurnIndex: c.Index,
			Role:      schema.Role(c.Delta.Role),
			Content:   c.Delta.Content,
			Status:    schema.StatusIncomplete,
		}
		for _, tc := range c.Delta.ToolCalls {
			d.ToolCalls = append(d.ToolCalls, schema.ToolCallDelta{
				Index:          tc.Index,
				ID:             tc.ID,
				Name:           tc.Function.Name,
				ArgumentsDelta: tc.Function.Arguments,
			})
		}
		if c.FinishReason != nil && *c.FinishReason != "" {
			d.Status = statusFromReason(*c.FinishReason, n.provider, n.logger)
		}
		deltas = append(deltas, d)
	}
	return deltas, chunk.Usage.toSchema(), nil
}

type oaResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string       `json:"role"`
			Content   string       `json:"content"`
			ToolCalls []oaToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *oaUsage `json:"usage"`
}

func (n *openaiNormalizer) normalizeResponse(payload json.RawMessage) (schema.ChatResponse, error) {
	if pe := detectErrorPayload(n.provider, payload); pe != nil {
		return schema.ChatResponse{}, pe
	}

	var in oaResponse
	if err := json.Unmarshal(payload, &in); err != nil {
		return schema.ChatResponse{}, &DecodeError{Unit: string(payload), Cause: err}
	}

	out := schema.ChatResponse{
		ID:    in.ID,
		Model: in.Model,
		Usage: in.Usage.toSchema(),
	}
	// 批式响应等价于每个 choice 一个终止 Delta，走同一条定稿路径
	for _, c := range in.Choices {
		d := schema.Delta{
			TurnIndex: c.Index,
			Role:      schema.Role(c.Message.Role),
			Content:   c.Message.Content,
			Status:    statusFromReason(c.FinishReason, n.provider, n.logger),
		}
		for i, tc := range c.Message.ToolCalls {
			idx := tc.Index
			if idx == 0 && i > 0 {
				idx = i // batch responses may omit per-call indexes
			}
			d.ToolCalls = append(d.ToolCalls, schema.ToolCallDelta{
				Index:          idx,
				ID:             tc.ID,
				Name:           tc.Function.Name,
				ArgumentsDelta: tc.Function.Arguments,
			})
		}
		out.Messages = append(out.Messages, Finalize(d))
	}
	sortMessages(out.Messages)
	return out, nil
}

// anthropicNormalizer decodes Messages API stream events
// (message_start, content_block_start/delta/stop, message_delta,
// message_stop, ping) and complete message payloads.
type anthropicNormalizer struct {
	provider string
	logger   *slog.Logger
}

type antContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type antEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	Message *struct {
		Role  string `json:"role"`
		Usage *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`

	ContentBlock *antContentBlock `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (n *anthropicNormalizer) normalizeEvent(payload json.RawMessage) ([]schema.Delta, *schema.Usage, error) {
	if pe := detectErrorPayload(n.provider, payload); pe != nil {
		return nil, nil, pe
	}

	var ev antEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, nil, &DecodeError{Unit: string(payload), Cause: err}
	}

	switch ev.Type {
	case "message_start":
		d := schema.Delta{Status: schema.StatusIncomplete}
		var usage *schema.Usage
		if ev.Message != nil {
			d.Role = schema.Role(ev.Message.Role)
			if ev.Message.Usage != nil {
				usage = &schema.Usage{PromptTokens: ev.Message.Usage.InputTokens}
			}
		}
		return []schema.Delta{d}, usage, nil

	case "content_block_start":
		if ev.ContentBlock == nil || ev.ContentBlock.Type != "tool_use" {
			return nil, nil, nil
		}
		return []schema.Delta{{
			Status: schema.StatusIncomplete,
			ToolCalls: []schema.ToolCallDelta{{
				Index: ev.Index,
				ID:    ev.ContentBlock.ID,
				Name:  ev.ContentBlock.Name,
			}},
		}}, nil, nil

	case "content_block_delta":
		if ev.Delta == nil {
			return nil, nil, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return []schema.Delta{{Content: ev.Delta.Text, Status: schema.StatusIncomplete}}, nil, nil
		case "input_json_delta":
			return []schema.Delta{{
				Status: schema.StatusIncomplete,
				ToolCalls: []schema.ToolCallDelta{{
					Index:          ev.Index,
					ArgumentsDelta: ev.Delta.PartialJSON,
				}},
			}}, nil, nil
		}
		n.logger.Debug("llm: unhandled content delta type", "provider", n.provider, "type", ev.Delta.Type)
		return nil, nil, nil

	case "message_delta":
		var usage *schema.Usage
		if ev.Usage != nil {
			usage = &schema.Usage{CompletionTokens: ev.Usage.OutputTokens}
		}
		if ev.Delta == nil || ev.Delta.StopReason == "" {
			return nil, usage, nil
		}
		return []schema.Delta{{
			Status: statusFromReason(ev.Delta.StopReason, n.provider, n.logger),
		}}, usage, nil

	case "ping", "content_block_stop", "message_stop":
		// Framing-only markers carry no content.
		return nil, nil, nil
	}

	n.logger.Debug("llm: unhandled stream event type", "provider", n.provider, "type", ev.Type)
	return nil, nil, nil
}

type antResponse struct {
	ID         string            `json:"id"`
	Model      string            `json:"model"`
	Role       string            `json:"role"`
	Content    []antContentBlock `json:"content"`
	StopReason string            `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (n *anthropicNormalizer) normalizeResponse(payload json.RawMessage) (schema.ChatResponse, error) {
	if pe := detectErrorPayload(n.provider, payload); pe != nil {
		return schema.ChatResponse{}, pe
	}

	var in antResponse
	if err := json.Unmarshal(payload, &in); err != nil {
		return schema.ChatResponse{}, &DecodeError{Unit: string(payload), Cause: err}
	}

	d := schema.Delta{
		Role:   schema.Role(in.Role),
		Status: statusFromReason(in.StopReason, n.provider, n.logger),
	}
	for i, block := range in.Content {
		switch block.Type {
		case "text":
			d.Content += block.Text
		case "tool_use":
			d.ToolCalls = append(d.ToolCalls, schema.ToolCallDelta{
				Index:          i,
				ID:             block.ID,
				Name:           block.Name,
				ArgumentsDelta: string(block.Input),
			})
		}
	}

	out := schema.ChatResponse{
		ID:       in.ID,
		Model:    in.Model,
		Messages: []schema.Message{Finalize(d)},
	}
	if in.Usage != nil {
		out.Usage = &schema.Usage{
			PromptTokens:     in.Usage.InputTokens,
			CompletionTokens: in.Usage.OutputTokens,
			TotalTokens:      in.Usage.InputTokens + in.Usage.OutputTokens,
		}
	}
	return out, nil
}

func sortMessages(msgs []schema.Message) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].TurnIndex < msgs[j].TurnIndex })
}
