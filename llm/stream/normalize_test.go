package stream

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/lumik/llmwire/llm/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusFromReason(t *testing.T) {
	cases := []struct {
		reason string
		want   schema.Status
	}{
		{"stop", schema.StatusComplete},
		{"end_turn", schema.StatusComplete},
		{"tool_calls", schema.StatusComplete},
		{"tool_use", schema.StatusComplete},
		{"length", schema.StatusLength},
		{"max_tokens", schema.StatusLength},
		{"model_length", schema.StatusLength},
		{"cancelled", schema.StatusCancelled},
		{"some_new_reason", schema.StatusIncomplete},
	}
	for _, c := range cases {
		if got := statusFromReason(c.reason, "test", testLogger()); got != c.want {
			t.Fatalf("statusFromReason(%q)=%q want %q", c.reason, got, c.want)
		}
	}
}

func TestOpenAINormalizer_Chunk(t *testing.T) {
	n := &openaiNormalizer{provider: "openai", logger: testLogger()}

	deltas, _, err := n.normalizeEvent(json.RawMessage(
		`{"choices":[{"delta":{"role":"assistant","content":"Hi"},"finish_reason":null,"index":0}]}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("deltas=%+v", deltas)
	}
	d := deltas[0]
	if d.Role != schema.RoleAssistant || d.Content != "Hi" || d.Status != schema.StatusIncomplete {
		t.Fatalf("delta=%+v", d)
	}
}

func TestOpenAINormalizer_FanOut(t *testing.T) {
	n := &openaiNormalizer{provider: "openai", logger: testLogger()}

	deltas, _, err := n.normalizeEvent(json.RawMessage(
		`{"choices":[{"delta":{"content":"A"},"index":0},{"delta":{"content":"B"},"index":1}]}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(deltas) != 2 || deltas[0].TurnIndex != 0 || deltas[1].TurnIndex != 1 {
		t.Fatalf("deltas=%+v", deltas)
	}
}

func TestOpenAINormalizer_ToolCallFragment(t *testing.T) {
	n := &openaiNormalizer{provider: "openai", logger: testLogger()}

	deltas, _, err := n.normalizeEvent(json.RawMessage(
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":"{\"ci"}}]},"index":0}]}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(deltas) != 1 || len(deltas[0].ToolCalls) != 1 {
		t.Fatalf("deltas=%+v", deltas)
	}
	tc := deltas[0].ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "get_weather" || tc.ArgumentsDelta != "{\"ci" {
		t.Fatalf("tc=%+v", tc)
	}
}

func TestOpenAINormalizer_ErrorPayload(t *testing.T) {
	n := &openaiNormalizer{provider: "openai", logger: testLogger()}

	_, _, err := n.normalizeEvent(json.RawMessage(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("err=%v", err)
	}
	if pe.Message != "rate limited" || pe.Type != "rate_limit_error" {
		t.Fatalf("pe=%+v", pe)
	}
}

func TestOpenAINormalizer_Response(t *testing.T) {
	n := &openaiNormalizer{provider: "openai", logger: testLogger()}

	resp, err := n.normalizeResponse(json.RawMessage(`{
		"id":"chatcmpl-1","model":"gpt-4o",
		"choices":[
			{"index":1,"message":{"role":"assistant","content":"second"},"finish_reason":"stop"},
			{"index":0,"message":{"role":"assistant","content":"first"},"finish_reason":"length"}
		],
		"usage":{"prompt_tokens":5,"completion_tokens":7,"total_tokens":12}}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("messages=%+v", resp.Messages)
	}
	// Sorted by turn index regardless of wire order.
	if resp.Messages[0].TurnIndex != 0 || resp.Messages[0].Text() != "first" {
		t.Fatalf("msg0=%+v", resp.Messages[0])
	}
	if resp.Messages[0].Status != schema.StatusLength || resp.Messages[1].Status != schema.StatusComplete {
		t.Fatalf("statuses=%q %q", resp.Messages[0].Status, resp.Messages[1].Status)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 12 {
		t.Fatalf("usage=%+v", resp.Usage)
	}
}

func TestAnthropicNormalizer_Events(t *testing.T) {
	n := &anthropicNormalizer{provider: "anthropic", logger: testLogger()}

	deltas, usage, err := n.normalizeEvent(json.RawMessage(
		`{"type":"message_start","message":{"role":"assistant","usage":{"input_tokens":9}}}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(deltas) != 1 || deltas[0].Role != schema.RoleAssistant {
		t.Fatalf("deltas=%+v", deltas)
	}
	if usage == nil || usage.PromptTokens != 9 {
		t.Fatalf("usage=%+v", usage)
	}

	deltas, _, err = n.normalizeEvent(json.RawMessage(
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`))
	if err != nil || len(deltas) != 1 || deltas[0].Content != "Hi" {
		t.Fatalf("deltas=%+v err=%v", deltas, err)
	}

	deltas, _, err = n.normalizeEvent(json.RawMessage(
		`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{}}}`))
	if err != nil || len(deltas) != 1 || len(deltas[0].ToolCalls) != 1 {
		t.Fatalf("deltas=%+v err=%v", deltas, err)
	}
	if tc := deltas[0].ToolCalls[0]; tc.Index != 1 || tc.ID != "toolu_1" || tc.Name != "get_weather" {
		t.Fatalf("tc=%+v", tc)
	}

	deltas, _, err = n.normalizeEvent(json.RawMessage(
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\""}}`))
	if err != nil || len(deltas) != 1 || deltas[0].ToolCalls[0].ArgumentsDelta != "{\"city\"" {
		t.Fatalf("deltas=%+v err=%v", deltas, err)
	}

	deltas, usage, err = n.normalizeEvent(json.RawMessage(
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}`))
	if err != nil || len(deltas) != 1 || deltas[0].Status != schema.StatusComplete {
		t.Fatalf("deltas=%+v err=%v", deltas, err)
	}
	if usage == nil || usage.CompletionTokens != 4 {
		t.Fatalf("usage=%+v", usage)
	}
}

func TestAnthropicNormalizer_FramingEventsProduceNothing(t *testing.T) {
	n := &anthropicNormalizer{provider: "anthropic", logger: testLogger()}

	for _, payload := range []string{
		`{"type":"ping"}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_stop"}`,
	} {
		deltas, _, err := n.normalizeEvent(json.RawMessage(payload))
		if err != nil || len(deltas) != 0 {
			t.Fatalf("%s: deltas=%+v err=%v", payload, deltas, err)
		}
	}
}

func TestAnthropicNormalizer_Response(t *testing.T) {
	n := &anthropicNormalizer{provider: "anthropic", logger: testLogger()}

	resp, err := n.normalizeResponse(json.RawMessage(`{
		"id":"msg_1","model":"claude-sonnet-4-5","role":"assistant",
		"content":[
			{"type":"text","text":"Let me check."},
			{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{"city":"Oslo"}}
		],
		"stop_reason":"tool_use",
		"usage":{"input_tokens":10,"output_tokens":20}}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(resp.Messages) != 1 {
		t.Fatalf("messages=%+v", resp.Messages)
	}
	msg := resp.Messages[0]
	if msg.Text() != "Let me check." || msg.Status != schema.StatusComplete {
		t.Fatalf("msg=%+v", msg)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Arguments != `{"city":"Oslo"}` {
		t.Fatalf("tool calls=%+v", msg.ToolCalls)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 30 {
		t.Fatalf("usage=%+v", resp.Usage)
	}
}
