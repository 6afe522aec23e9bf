package stream

import (
	"encoding/json"
	"strings"
)

// doneSentinel terminates data-line streams ("data: [DONE]").
const doneSentinel = "[DONE]"

type resultKind int

const (
	// kindComplete carries a decoded JSON payload.
	kindComplete resultKind = iota
	// kindIncomplete marks a unit whose payload JSON is truncated; the
	// caller re-presents it as leftover once more bytes arrive.
	kindIncomplete
	// kindIgnore marks framing-only content (blank lines, sentinels,
	// malformed framing) that carries no payload.
	kindIgnore
)

type decodeResult struct {
	kind    resultKind
	payload json.RawMessage
}

// formatDecoder turns one complete logical unit into at most one JSON
// payload. Implementations must be pure functions of their input: no
// state is shared between calls.
type formatDecoder interface {
	// separator is the unit delimiter the chunk buffer splits on.
	separator() string

	// completeUnit reports whether a trailing unterminated segment
	// already forms a complete unit on its own.
	completeUnit(unit string) bool

	decodeUnit(unit string) decodeResult
}

// eventStreamDecoder handles "event: <name>\ndata: <json>" blocks
// separated by a blank line (the Anthropic-style SSE framing).
type eventStreamDecoder struct{}

func (eventStreamDecoder) separator() string { return "\n\n" }

// dataPayload extracts the joined data segment of one block via a
// structural match. It tolerates \r line endings, trailing whitespace and
// an empty event name. ok is false when the block has no data line at all
// (malformed framing).
func (eventStreamDecoder) dataPayload(unit string) (string, bool) {
	var buf []string
	for _, line := range strings.Split(unit, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if rest, found := strings.CutPrefix(line, "data:"); found {
			buf = append(buf, strings.TrimSpace(rest))
		}
	}
	if len(buf) == 0 {
		return "", false
	}
	return strings.Join(buf, "\n"), true
}

func (d eventStreamDecoder) completeUnit(unit string) bool {
	data, ok := d.dataPayload(unit)
	return ok && json.Valid([]byte(data))
}

func (d eventStreamDecoder) decodeUnit(unit string) decodeResult {
	data, ok := d.dataPayload(unit)
	if !ok {
		// Malformed framing is discarded, not retried.
		return decodeResult{kind: kindIgnore}
	}
	if !json.Valid([]byte(data)) {
		// Presumed truncated mid-payload.
		return decodeResult{kind: kindIncomplete}
	}
	return decodeResult{kind: kindComplete, payload: json.RawMessage(data)}
}

// dataLineDecoder handles newline-delimited "data: <json>" lines
// terminated by a "data: [DONE]" sentinel (the OpenAI-style framing).
type dataLineDecoder struct{}

func (dataLineDecoder) separator() string { return "\n" }

func (dataLineDecoder) linePayload(unit string) (string, bool) {
	line := strings.TrimRight(unit, " \t\r")
	rest, found := strings.CutPrefix(line, "data:")
	if !found {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func (d dataLineDecoder) completeUnit(unit string) bool {
	data, ok := d.linePayload(unit)
	if !ok {
		return false
	}
	return data == doneSentinel || json.Valid([]byte(data))
}

func (d dataLineDecoder) decodeUnit(unit string) decodeResult {
	data, ok := d.linePayload(unit)
	if !ok {
		// Blank lines, ": comment" keep-alives and other framing noise.
		return decodeResult{kind: kindIgnore}
	}
	if data == "" || data == doneSentinel {
		return decodeResult{kind: kindIgnore}
	}
	if !json.Valid([]byte(data)) {
		return decodeResult{kind: kindIncomplete}
	}
	return decodeResult{kind: kindComplete, payload: json.RawMessage(data)}
}
