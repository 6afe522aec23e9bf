package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/lumik/llmwire/llm/schema"
)

// slowBody yields the underlying data in tiny reads to exercise partial
// chunk handling in the pull path.
type slowBody struct {
	data   string
	off    int
	step   int
	closed bool
	err    error // returned instead of io.EOF when set
}

func (b *slowBody) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	end := b.off + b.step
	if end > len(b.data) {
		end = len(b.data)
	}
	n := copy(p, b.data[b.off:end])
	b.off += n
	return n, nil
}

func (b *slowBody) Close() error {
	b.closed = true
	return nil
}

func TestReaderPullsDeltasAndMessage(t *testing.T) {
	body := &slowBody{
		data: "data: {\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"He\"}}]}\n" +
			"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"llo\"}}]}\n" +
			"data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n" +
			"data: [DONE]\n",
		step: 3,
	}

	r, err := NewReader(DialectOpenAI, body)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	var deltas, msgs int
	var text strings.Builder
	for {
		ev, err := r.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		switch ev.Kind {
		case EventDelta:
			deltas++
			text.WriteString(ev.Delta.Content)
		case EventMessage:
			msgs++
			if got := ev.Message.Text(); got != "Hello" {
				t.Fatalf("message text = %q, want %q", got, "Hello")
			}
		}
	}

	if deltas != 3 {
		t.Fatalf("delta events = %d, want 3", deltas)
	}
	if msgs != 1 {
		t.Fatalf("message events = %d, want 1", msgs)
	}
	if text.String() != "Hello" {
		t.Fatalf("concatenated deltas = %q", text.String())
	}
	got := r.Messages()
	if len(got) != 1 || got[0].Status != schema.StatusComplete {
		t.Fatalf("Messages() = %+v", got)
	}
}

func TestReaderFinalizesOnBareEOF(t *testing.T) {
	// No terminal status, no [DONE]; the content-bearing turn must still
	// be finalized when the body ends.
	body := &slowBody{
		data: "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"partial\"}}]}\n",
		step: 64,
	}

	r, err := NewReader(DialectOpenAI, body)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	var lastMsg *schema.Message
	for {
		ev, err := r.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if ev.Kind == EventMessage {
			lastMsg = ev.Message
		}
	}
	if lastMsg == nil {
		t.Fatal("expected a finalized message event before EOF")
	}
	if lastMsg.Status != schema.StatusComplete || lastMsg.Text() != "partial" {
		t.Fatalf("finalized message = %+v", lastMsg)
	}
}

func TestReaderTransportError(t *testing.T) {
	cause := errors.New("connection reset")
	body := &slowBody{
		data: "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"x\"}}]}\n",
		step: 64,
		err:  cause,
	}

	r, err := NewReader(DialectOpenAI, body)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	var sawDelta bool
	for {
		ev, rerr := r.Recv()
		if rerr != nil {
			var te *TransportError
			if !errors.As(rerr, &te) {
				t.Fatalf("Recv err = %v, want TransportError", rerr)
			}
			if !errors.Is(rerr, cause) {
				t.Fatalf("TransportError does not wrap cause: %v", rerr)
			}
			break
		}
		if ev.Kind == EventDelta {
			sawDelta = true
		}
	}
	if !sawDelta {
		t.Fatal("deltas received before the failure must still be delivered")
	}
}

func TestReaderCloseIdempotent(t *testing.T) {
	body := &slowBody{data: "", step: 1}
	r, err := NewReader(DialectOpenAI, body)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !body.closed {
		t.Fatal("body not closed")
	}
}
