package llm

import (
	"context"
	"errors"
	"io"
	"slices"
	"sort"

	"github.com/lumik/llmwire/llm/schema"
	"github.com/lumik/llmwire/llm/stream"
)

type ClientOption func(*Client)

// Client wraps a ChatModel with client-level default options and
// sink-driven streaming: when a request carries a Sink, Chat switches to
// the streaming API, forwards every event to the sink synchronously, and
// still returns the finalized response.
type Client struct {
	model       ChatModel
	defaultOpts []RequestOption
}

var _ ChatModel = (*Client)(nil)
var _ ProviderNamer = (*Client)(nil)

func Wrap(model ChatModel, opts ...ClientOption) *Client {
	c := &Client{model: model}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func WithDefaultRequestOptions(opts ...RequestOption) ClientOption {
	return func(c *Client) {
		c.defaultOpts = append(c.defaultOpts, opts...)
	}
}

func (c *Client) Chat(ctx context.Context, messages []schema.Message, opts ...RequestOption) (schema.ChatResponse, error) {
	merged := append(slices.Clone(c.defaultOpts), opts...)
	cfg := ApplyRequestOptions(merged...)
	if cfg.Sink == nil {
		return c.model.Chat(ctx, messages, merged...)
	}

	s, err := c.model.ChatStream(ctx, messages, merged...)
	if err != nil {
		return schema.ChatResponse{}, err
	}
	return drain(s, cfg.Sink)
}

func (c *Client) ChatStream(ctx context.Context, messages []schema.Message, opts ...RequestOption) (Stream, error) {
	merged := append(slices.Clone(c.defaultOpts), opts...)
	return c.model.ChatStream(ctx, messages, merged...)
}

func (c *Client) Provider() Provider {
	if p, ok := c.model.(ProviderNamer); ok {
		return p.Provider()
	}
	return ProviderUnknown
}

// DrainStream consumes a Stream to completion and assembles the finalized
// response from its message events.
func DrainStream(s Stream) (schema.ChatResponse, error) {
	return drain(s, nil)
}

func drain(s Stream, sink stream.Sink) (schema.ChatResponse, error) {
	defer s.Close()

	var msgs []schema.Message
	for {
		ev, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return schema.ChatResponse{}, err
		}
		if sink != nil {
			if err := sink(ev); err != nil {
				return schema.ChatResponse{}, err
			}
		}
		if ev.Kind == stream.EventMessage && ev.Message != nil {
			msgs = append(msgs, *ev.Message)
		}
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].TurnIndex < msgs[j].TurnIndex })
	resp := schema.ChatResponse{Messages: msgs}
	if ur, ok := s.(UsageReporter); ok {
		resp.Usage = ur.Usage()
	}
	return resp, nil
}
