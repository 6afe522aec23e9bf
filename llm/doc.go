// Package llm provides a provider-agnostic chat SDK over hosted LLM APIs.
//
// Design goals:
//   - Stable domain model: callers build requests using canonical types
//     (schema.Message, schema.ToolDefinition) and get canonical results back
//     (schema.ChatResponse, schema.Delta).
//   - Explicit streaming: the llm/stream package decodes raw response bytes
//     into deltas and finalized messages; callers observe the stream through
//     a synchronous sink or a pull Stream.
//   - Controlled escape hatches: provider-specific fields can be passed via
//     WithExtra, and request-scoped headers via WithHeader.
//
// Provider implementations live under llm/providers and are responsible for
// mapping between the canonical model and each provider's wire format.
package llm
