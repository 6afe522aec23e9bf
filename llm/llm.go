package llm

import (
	"context"

	"github.com/lumik/llmwire/llm/schema"
	"github.com/lumik/llmwire/llm/stream"
)

// ChatModel is the minimal, provider-agnostic interface for chat-based LLMs.
type ChatModel interface {
	Chat(ctx context.Context, messages []schema.Message, opts ...RequestOption) (schema.ChatResponse, error)
	ChatStream(ctx context.Context, messages []schema.Message, opts ...RequestOption) (Stream, error)
}

// Stream is a provider-agnostic streaming reader.
//
// Recv returns (stream.Event, nil) for each delta or finalized-message
// event, and io.EOF when the stream ends normally.
type Stream interface {
	Recv() (stream.Event, error)
	Close() error
}

// UsageReporter is an optional interface for streams that learn token
// usage from the wire.
type UsageReporter interface {
	Usage() *schema.Usage
}

// Provider is the canonical identifier of a model provider.
type Provider string

const (
	ProviderUnknown   Provider = "unknown"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderKimi      Provider = "kimi"
	ProviderQwen      Provider = "qwen"
)

// ProviderNamer is an optional interface for discovering which provider a
// ChatModel instance is backed by.
type ProviderNamer interface {
	Provider() Provider
}

func ProviderOf(m ChatModel) Provider {
	if p, ok := m.(ProviderNamer); ok {
		if p.Provider() != "" {
			return p.Provider()
		}
	}
	return ProviderUnknown
}
