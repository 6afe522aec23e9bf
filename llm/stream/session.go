package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/lumik/llmwire/llm/schema"
)

// Dialect selects the wire-format decoder / normalizer pair for one
// session. The set is closed: new providers are rare and each needs
// bespoke framing knowledge anyway.
type Dialect string

const (
	// DialectOpenAI: newline-delimited "data: <json>" lines with a
	// "data: [DONE]" sentinel, chat.completion.chunk payloads.
	DialectOpenAI Dialect = "openai"

	// DialectAnthropic: blank-line separated "event:/data:" blocks,
	// Messages API event payloads.
	DialectAnthropic Dialect = "anthropic"
)

// maxPendingBytes caps how much unterminated data a session retains while
// waiting for a unit to complete.
const maxPendingBytes = 1 << 20

type EventKind string

const (
	// EventDelta is an incremental fragment of one in-progress turn.
	EventDelta EventKind = "delta"
	// EventMessage is a finalized message for one turn index.
	EventMessage EventKind = "message"
)

// Event is one sink notification.
type Event struct {
	Kind    EventKind
	Delta   *schema.Delta
	Message *schema.Message
}

// Sink receives events synchronously, in chunk-arrival order. The sink
// must return before the next chunk is processed; slow sinks backpressure
// stream consumption, which intentionally throttles ingestion to the
// consumer's pace. A non-nil error aborts the session.
type Sink func(Event) error

type SessionOption func(*Session)

// WithLogger injects the session logger. The default discards everything.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProviderName labels errors and log records with the provider name.
func WithProviderName(name string) SessionOption {
	return func(s *Session) { s.provider = name }
}

// Session decodes one in-flight streaming request. It is created per
// outbound request and lives as long as the response body is being read.
// Not safe for concurrent use; concurrent requests each own a Session.
type Session struct {
	provider string
	dec      formatDecoder
	norm     normalizer
	sink     Sink
	logger   *slog.Logger

	leftover string
	accs     map[int]*schema.Delta
	closed   map[int]bool
	final    map[int]schema.Message
	usage    *schema.Usage

	done bool
	err  error
}

// NewSession creates a session for the given wire dialect. The sink may be
// nil when the caller only wants the finalized messages from End.
func NewSession(d Dialect, sink Sink, opts ...SessionOption) (*Session, error) {
	s := &Session{
		provider: string(d),
		sink:     sink,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		accs:     make(map[int]*schema.Delta),
		closed:   make(map[int]bool),
		final:    make(map[int]schema.Message),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	switch d {
	case DialectOpenAI:
		s.dec = dataLineDecoder{}
		s.norm = &openaiNormalizer{provider: s.provider, logger: s.logger}
	case DialectAnthropic:
		s.dec = eventStreamDecoder{}
		s.norm = &anthropicNormalizer{provider: s.provider, logger: s.logger}
	default:
		return nil, fmt.Errorf("llm: unknown stream dialect %q", d)
	}
	return s, nil
}

// Feed processes one chunk of response body bytes: reassembled units are
// decoded, normalized, handed to the sink and merged into the per-turn
// accumulators. Returns the terminal error, if any; decode errors on
// individual units are logged and skipped.
func (s *Session) Feed(chunk []byte) error {
	if s.done {
		if s.err != nil {
			return s.err
		}
		return ErrSessionClosed
	}

	units, rest := feedBuffer(s.leftover, chunk, s.dec)
	s.leftover = rest
	if len(s.leftover) > maxPendingBytes {
		// A provider emitting data without separators must not grow
		// memory without limit. The truncated unit is unrecoverable once
		// dropped; whatever follows up to the next separator is discarded
		// as malformed.
		s.logger.Warn("llm: dropping oversized pending data", "provider", s.provider, "bytes", len(s.leftover))
		s.leftover = ""
	}

	for i, unit := range units {
		res := s.dec.decodeUnit(unit)
		switch res.kind {
		case kindIgnore:
			continue
		case kindIncomplete:
			if i == len(units)-1 && s.leftover == "" && len(unit) <= maxPendingBytes {
				// Truncated mid-payload: retry once more bytes arrive.
				s.leftover = unit
				continue
			}
			// A complete unit already followed, so this one cannot be
			// truncated. Malformed payloads are dropped, not retried.
			s.logger.Warn("llm: dropping malformed stream unit", "provider", s.provider, "unit", unit)
			continue
		}

		if err := s.handlePayload(res.payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handlePayload(payload []byte) error {
	deltas, usage, err := s.norm.normalizeEvent(payload)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			s.logger.Warn("llm: dropping undecodable payload", "provider", s.provider, "err", de.Cause)
			return nil
		}
		// Error-shaped payloads are terminal.
		s.done = true
		s.err = err
		return err
	}
	if usage != nil {
		s.mergeUsage(usage)
	}

	for _, d := range deltas {
		if s.closed[d.TurnIndex] {
			// Protocol violation: the provider kept streaming after the
			// terminal status for this index. Logged, not fatal.
			s.logger.Warn("llm: delta after terminal status", "provider", s.provider, "turn_index", d.TurnIndex)
			continue
		}

		if s.sink != nil {
			cp := d
			if err := s.sink(Event{Kind: EventDelta, Delta: &cp}); err != nil {
				s.done = true
				s.err = err
				return err
			}
		}

		s.accs[d.TurnIndex] = Merge(s.accs[d.TurnIndex], d)

		if acc := s.accs[d.TurnIndex]; acc.Status.Terminal() {
			if err := s.finalizeTurn(d.TurnIndex, *acc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) finalizeTurn(idx int, acc schema.Delta) error {
	msg := Finalize(acc)
	s.final[idx] = msg
	s.closed[idx] = true
	delete(s.accs, idx)

	if s.sink != nil {
		if err := s.sink(Event{Kind: EventMessage, Message: &msg}); err != nil {
			s.done = true
			s.err = err
			return err
		}
	}
	return nil
}

// End marks the response body as finished and returns the finalized
// messages ordered by turn index.
//
// An accumulator still open at body end is a protocol anomaly: the
// provider closed the stream without a terminal status. As a deliberate
// leniency, an accumulator that gathered any content (text or tool calls)
// is finalized as complete, because several providers omit the terminal
// marker and downstream callers depend on still receiving a final message.
// An accumulator with nothing in it is discarded.
func (s *Session) End() ([]schema.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.done = true

	idxs := make([]int, 0, len(s.accs))
	for idx := range s.accs {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		acc := s.accs[idx]
		if acc.Content == "" && len(acc.ToolCalls) == 0 {
			s.logger.Debug("llm: discarding empty open accumulator", "provider", s.provider, "turn_index", idx)
			delete(s.accs, idx)
			continue
		}
		s.logger.Warn("llm: stream ended without terminal status, finalizing as complete",
			"provider", s.provider, "turn_index", idx)
		acc.Status = schema.StatusComplete
		if err := s.finalizeTurn(idx, *acc); err != nil {
			return nil, err
		}
	}

	out := make([]schema.Message, 0, len(s.final))
	for _, msg := range s.final {
		out = append(out, msg)
	}
	sortMessages(out)
	return out, nil
}

// Fail terminates the session with a transport-level error. No partial
// message is finalized. The returned TransportError is also what any later
// End call reports.
func (s *Session) Fail(cause error) error {
	if s.done && s.err != nil {
		return s.err
	}
	s.done = true
	s.err = &TransportError{Provider: s.provider, Cause: cause}
	return s.err
}

// Usage returns the token usage reported on the stream so far, or nil.
func (s *Session) Usage() *schema.Usage {
	return s.usage
}

func (s *Session) mergeUsage(u *schema.Usage) {
	if s.usage == nil {
		cp := *u
		s.usage = &cp
		return
	}
	if u.PromptTokens != 0 {
		s.usage.PromptTokens = u.PromptTokens
	}
	if u.CompletionTokens != 0 {
		s.usage.CompletionTokens = u.CompletionTokens
	}
	if u.TotalTokens != 0 {
		s.usage.TotalTokens = u.TotalTokens
	} else if s.usage.PromptTokens != 0 || s.usage.CompletionTokens != 0 {
		s.usage.TotalTokens = s.usage.PromptTokens + s.usage.CompletionTokens
	}
}

// DecodeResponse decodes a complete (non-streaming) response body through
// the same normalizer logic as the streaming path. It is the degenerate
// session: exactly one decode step.
func DecodeResponse(d Dialect, body []byte, opts ...SessionOption) (schema.ChatResponse, error) {
	s, err := NewSession(d, nil, opts...)
	if err != nil {
		return schema.ChatResponse{}, err
	}
	return s.norm.normalizeResponse(body)
}
