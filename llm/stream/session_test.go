package stream

import (
	"errors"
	"testing"

	"github.com/lumik/llmwire/llm/schema"
)

type eventRecorder struct {
	deltas   []schema.Delta
	messages []schema.Message
	failWith error
}

func (r *eventRecorder) sink(ev Event) error {
	if r.failWith != nil {
		return r.failWith
	}
	switch ev.Kind {
	case EventDelta:
		r.deltas = append(r.deltas, *ev.Delta)
	case EventMessage:
		r.messages = append(r.messages, *ev.Message)
	}
	return nil
}

// Scenario: an event/data block split across two chunks at an arbitrary
// byte offset inside the JSON body yields exactly one delta.
func TestSession_EventSplitInsideJSON(t *testing.T) {
	full := "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n"

	for cut := 1; cut < len(full); cut++ {
		rec := &eventRecorder{}
		s, err := NewSession(DialectAnthropic, rec.sink)
		if err != nil {
			t.Fatalf("NewSession: %v", err)
		}
		if err := s.Feed([]byte(full[:cut])); err != nil {
			t.Fatalf("cut=%d: feed 1: %v", cut, err)
		}
		if err := s.Feed([]byte(full[cut:])); err != nil {
			t.Fatalf("cut=%d: feed 2: %v", cut, err)
		}
		if len(rec.deltas) != 1 || rec.deltas[0].Content != "Hi" {
			t.Fatalf("cut=%d: deltas=%+v", cut, rec.deltas)
		}
	}
}

// Scenario: data-line stream with a finish reason and a [DONE] sentinel.
func TestSession_DataLineStream(t *testing.T) {
	rec := &eventRecorder{}
	s, err := NewSession(DialectOpenAI, rec.sink, WithProviderName("openai"))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	chunks := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"A\"},\"finish_reason\":null,\"index\":0}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"B\"},\"finish_reason\":\"stop\",\"index\":0}]}\n\n",
		"data: [DONE]\n\n",
	}
	for _, c := range chunks {
		if err := s.Feed([]byte(c)); err != nil {
			t.Fatalf("feed %q: %v", c, err)
		}
	}

	msgs, err := s.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages=%+v", msgs)
	}
	if msgs[0].TurnIndex != 0 || msgs[0].Text() != "AB" || msgs[0].Status != schema.StatusComplete {
		t.Fatalf("msg=%+v", msgs[0])
	}

	// The sentinel produced no delta; two content deltas plus one
	// finalized message reached the sink.
	if len(rec.deltas) != 2 {
		t.Fatalf("deltas=%+v", rec.deltas)
	}
	if len(rec.messages) != 1 || rec.messages[0].Text() != "AB" {
		t.Fatalf("sink messages=%+v", rec.messages)
	}
}

// Scenario: two interleaved turn indices finalize independently.
func TestSession_ParallelTurnIndices(t *testing.T) {
	rec := &eventRecorder{}
	s, err := NewSession(DialectOpenAI, rec.sink)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	chunks := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"one-\"},\"index\":0}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"two-\"},\"index\":1}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"a\"},\"index\":0},{\"delta\":{\"content\":\"b\"},\"index\":1}]}\n",
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\",\"index\":1}]}\n",
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\",\"index\":0}]}\n",
		"data: [DONE]\n",
	}
	for _, c := range chunks {
		if err := s.Feed([]byte(c)); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}

	msgs, err := s.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages=%+v", msgs)
	}
	if msgs[0].TurnIndex != 0 || msgs[0].Text() != "one-a" {
		t.Fatalf("msg0=%+v", msgs[0])
	}
	if msgs[1].TurnIndex != 1 || msgs[1].Text() != "two-b" {
		t.Fatalf("msg1=%+v", msgs[1])
	}
}

// Scenario: an error payload terminates the session; nothing finalizes.
func TestSession_ProviderErrorPayload(t *testing.T) {
	rec := &eventRecorder{}
	s, err := NewSession(DialectOpenAI, rec.sink)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if err := s.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"A\"},\"index\":0}]}\n")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	err = s.Feed([]byte("data: {\"error\":{\"message\":\"rate limited\"}}\n"))
	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("err=%v", err)
	}
	if pe.Message != "rate limited" {
		t.Fatalf("pe=%+v", pe)
	}

	if _, err := s.End(); !errors.Is(err, error(pe)) {
		t.Fatalf("End err=%v", err)
	}
	if len(rec.messages) != 0 {
		t.Fatalf("messages=%+v", rec.messages)
	}
}

// Scenario: body ends while an index holds content but no terminal
// status; the documented leniency finalizes it as complete. An empty open
// accumulator produces nothing.
func TestSession_EndOfBodyLeniency(t *testing.T) {
	rec := &eventRecorder{}
	s, err := NewSession(DialectOpenAI, rec.sink)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	chunks := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"partial\"},\"index\":0}]}\n",
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"},\"index\":1}]}\n", // role only, no content
	}
	for _, c := range chunks {
		if err := s.Feed([]byte(c)); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}

	msgs, err := s.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages=%+v", msgs)
	}
	if msgs[0].TurnIndex != 0 || msgs[0].Text() != "partial" || msgs[0].Status != schema.StatusComplete {
		t.Fatalf("msg=%+v", msgs[0])
	}
	if len(rec.messages) != 1 {
		t.Fatalf("sink messages=%+v", rec.messages)
	}
}

// Framing-only events never touch accumulators and never reach the sink.
func TestSession_IgnoreEventsAreIdempotent(t *testing.T) {
	rec := &eventRecorder{}
	s, err := NewSession(DialectAnthropic, rec.sink)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := s.Feed([]byte("event: ping\ndata: {\"type\":\"ping\"}\n\n")); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	if len(rec.deltas) != 0 || len(rec.messages) != 0 {
		t.Fatalf("deltas=%+v messages=%+v", rec.deltas, rec.messages)
	}
	msgs, err := s.End()
	if err != nil || len(msgs) != 0 {
		t.Fatalf("msgs=%+v err=%v", msgs, err)
	}
}

// Once a turn index reaches a terminal status, later input for it is a
// protocol violation and is dropped.
func TestSession_StatusPrecedence(t *testing.T) {
	rec := &eventRecorder{}
	s, err := NewSession(DialectOpenAI, rec.sink)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	chunks := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"A\"},\"finish_reason\":\"stop\",\"index\":0}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"ghost\"},\"index\":0}]}\n",
	}
	for _, c := range chunks {
		if err := s.Feed([]byte(c)); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}

	msgs, err := s.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text() != "A" || msgs[0].Status != schema.StatusComplete {
		t.Fatalf("msgs=%+v", msgs)
	}
}

func TestSession_TransportFailure(t *testing.T) {
	s, err := NewSession(DialectOpenAI, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	cause := errors.New("connection reset")
	failErr := s.Fail(cause)

	var te *TransportError
	if !errors.As(failErr, &te) || !errors.Is(failErr, cause) {
		t.Fatalf("failErr=%v", failErr)
	}
	if err := s.Feed([]byte("data: {}\n")); err == nil {
		t.Fatal("feed after Fail succeeded")
	}
	if _, err := s.End(); !errors.As(err, &te) {
		t.Fatalf("End err=%v", err)
	}
}

func TestSession_SinkErrorAborts(t *testing.T) {
	boom := errors.New("sink full")
	rec := &eventRecorder{failWith: boom}
	s, err := NewSession(DialectOpenAI, rec.sink)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"A\"},\"index\":0}]}\n")); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.End(); !errors.Is(err, boom) {
		t.Fatalf("End err=%v", err)
	}
}

func TestSession_UnknownDialect(t *testing.T) {
	if _, err := NewSession(Dialect("grpc"), nil); err == nil {
		t.Fatal("expected error")
	}
}

// Scenario: a stream that never emits the unit separator must not grow
// retained memory without limit; once the cap trips, the garbage is
// dropped and later well-formed units still decode.
func TestSession_SeparatorlessInputIsBounded(t *testing.T) {
	rec := &eventRecorder{}
	s, err := NewSession(DialectOpenAI, rec.sink)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	garbage := make([]byte, 64*1024)
	for i := range garbage {
		garbage[i] = 'a'
	}
	for fed := 0; fed < 4*1024*1024; fed += len(garbage) {
		if err := s.Feed(garbage); err != nil {
			t.Fatalf("fed=%d: %v", fed, err)
		}
		if len(s.leftover) > maxPendingBytes {
			t.Fatalf("fed=%d: leftover=%d exceeds cap %d", fed+len(garbage), len(s.leftover), maxPendingBytes)
		}
	}

	// The tail of the garbage unit is terminated by the first separator
	// and discarded as framing noise; the stream then recovers.
	if err := s.Feed([]byte("\ndata: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ok\"},\"finish_reason\":\"stop\"}]}\n")); err != nil {
		t.Fatalf("recovery feed: %v", err)
	}
	if len(rec.messages) != 1 || rec.messages[0].Text() != "ok" {
		t.Fatalf("messages=%+v", rec.messages)
	}
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse(DialectOpenAI, []byte(`{
		"id":"chatcmpl-2","model":"gpt-4o-mini",
		"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if resp.FirstText() != "hello" {
		t.Fatalf("resp=%+v", resp)
	}

	_, err = DecodeResponse(DialectAnthropic, []byte(`{"type":"error","error":{"message":"overloaded"}}`))
	if _, ok := AsProviderError(err); !ok {
		t.Fatalf("err=%v", err)
	}
}
