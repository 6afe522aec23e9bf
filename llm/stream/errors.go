package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSessionClosed is returned when feeding a session that already ended.
var ErrSessionClosed = errors.New("llm: stream session closed")

// ProviderError is an explicit error-shaped payload received inside an
// otherwise well-formed response. It is terminal: the session fails and no
// message is finalized for any turn index.
type ProviderError struct {
	Provider string
	Message  string
	Type     string

	Raw json.RawMessage
}

func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("llm %s: provider error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("llm: provider error: %s", e.Message)
}

// AsProviderError 判断错误是否为 ProviderError
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// TransportError wraps a connection-level failure signaled by the HTTP
// transport while the stream was open. It is not decoded by this package;
// it is propagated as a distinguishable terminal failure.
type TransportError struct {
	Provider string
	Cause    error
}

func (e *TransportError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("llm %s: transport: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("llm: transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// DecodeError describes a well-framed unit whose payload could not be
// mapped to the canonical model. Decode errors are logged and the unit is
// dropped; they never terminate the rest of the stream.
type DecodeError struct {
	Unit  string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("llm: decode: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// errorEnvelope is the provider-agnostic error payload shape: a JSON
// object with a nested error.message field.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// detectErrorPayload recognizes a top-level error-shaped payload and maps
// it to a terminal ProviderError, regardless of provider.
func detectErrorPayload(provider string, raw json.RawMessage) *ProviderError {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	if env.Error.Message == "" {
		return nil
	}
	return &ProviderError{
		Provider: provider,
		Message:  env.Error.Message,
		Type:     env.Error.Type,
		Raw:      append(json.RawMessage(nil), raw...),
	}
}
