// Package openai_compat 实现 OpenAI 兼容 API 的 ChatModel 适配器。
//
// DeepSeek、Kimi、Qwen 等大多数国内外 provider 都兼容这一协议，
// 只需替换 BaseURL 和 provider 名称即可复用。
package openai_compat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/lumik/llmwire/llm"
	"github.com/lumik/llmwire/llm/internal/transport"
	"github.com/lumik/llmwire/llm/schema"
	"github.com/lumik/llmwire/llm/stream"
)

type Option func(*Provider) error

type Provider struct {
	name llm.Provider

	apiKey string
	model  string
	path   string

	tr *transport.Client
}

var _ llm.ChatModel = (*Provider)(nil)
var _ llm.ProviderNamer = (*Provider)(nil)

func New(apiKey string, opts ...Option) (*Provider, error) {
	tr, err := transport.New("https://api.openai.com", nil)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		name:   llm.ProviderOpenAI,
		apiKey: apiKey,
		path:   "/v1/chat/completions",
		tr:     tr,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func WithProviderName(name llm.Provider) Option {
	return func(p *Provider) error {
		p.name = name
		return nil
	}
}

func WithBaseURL(baseURL string) Option {
	return func(p *Provider) error {
		u, err := url.Parse(strings.TrimSpace(baseURL))
		if err != nil {
			return err
		}
		tr := p.tr.Clone()
		tr.BaseURL = u
		p.tr = tr
		return nil
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) error {
		p.tr.HTTPClient = c
		return nil
	}
}

func WithUserAgent(ua string) Option {
	return func(p *Provider) error {
		p.tr.UserAgent = ua
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) error {
		if logger != nil {
			p.tr.Logger = logger
		}
		return nil
	}
}

func WithRetry(cfg transport.RetryConfig) Option {
	return func(p *Provider) error {
		p.tr.Retry = cfg
		return nil
	}
}

func WithDefaultHeader(key, value string) Option {
	return func(p *Provider) error {
		p.tr.DefaultHeaders.Add(key, value)
		return nil
	}
}

func WithChatCompletionsPath(path string) Option {
	return func(p *Provider) error {
		p.path = path
		return nil
	}
}

func WithDefaultModel(model string) Option {
	return func(p *Provider) error {
		p.model = model
		return nil
	}
}

func (p *Provider) Provider() llm.Provider { return p.name }

func (p *Provider) Chat(ctx context.Context, messages []schema.Message, opts ...llm.RequestOption) (schema.ChatResponse, error) {
	cfg := llm.ApplyRequestOptions(opts...)
	if err := p.validate(cfg, messages); err != nil {
		return schema.ChatResponse{}, err
	}
	if cfg.Timeout != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *cfg.Timeout)
		defer cancel()
	}

	wreq, err := p.mapRequest(cfg, messages, false)
	if err != nil {
		return schema.ChatResponse{}, err
	}

	hdr := p.headers(cfg, "application/json")
	_, raw, err := p.tr.DoJSON(ctx, http.MethodPost, p.path, hdr, wreq)
	if err != nil {
		return schema.ChatResponse{}, p.mapError(ctx, err)
	}

	resp, err := stream.DecodeResponse(stream.DialectOpenAI, raw,
		stream.WithProviderName(string(p.name)), stream.WithLogger(p.tr.Logger))
	if err != nil {
		return schema.ChatResponse{}, err
	}
	if cfg.KeepRaw {
		resp.Raw = append([]byte(nil), raw...)
	}
	return resp, nil
}

func (p *Provider) ChatStream(ctx context.Context, messages []schema.Message, opts ...llm.RequestOption) (llm.Stream, error) {
	cfg := llm.ApplyRequestOptions(opts...)
	if err := p.validate(cfg, messages); err != nil {
		return nil, err
	}

	cancel := context.CancelFunc(func() {})
	if cfg.Timeout != nil {
		ctx, cancel = context.WithTimeout(ctx, *cfg.Timeout)
	}

	wreq, err := p.mapRequest(cfg, messages, true)
	if err != nil {
		cancel()
		return nil, err
	}

	hdr := p.headers(cfg, "text/event-stream")
	resp, err := p.tr.DoStream(ctx, http.MethodPost, p.path, hdr, wreq)
	if err != nil {
		cancel()
		return nil, p.mapError(ctx, err)
	}

	r, err := stream.NewReader(stream.DialectOpenAI, &cancelOnClose{rc: resp.Body, cancel: cancel},
		stream.WithProviderName(string(p.name)), stream.WithLogger(p.tr.Logger))
	if err != nil {
		cancel()
		resp.Body.Close()
		return nil, err
	}
	return r, nil
}

func (p *Provider) headers(cfg llm.RequestConfig, accept string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	if accept != "" {
		h.Set("Accept", accept)
	}
	if p.apiKey != "" {
		h.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, vs := range cfg.Headers {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

func (p *Provider) validate(cfg llm.RequestConfig, messages []schema.Message) error {
	if cfg.Model == "" && p.model == "" {
		return errors.New("llm: model is required")
	}
	if len(messages) == 0 {
		return errors.New("llm: messages is required")
	}
	return nil
}

// cancelOnClose ties a request-scoped cancel func to the stream body so
// that closing the stream also releases the timeout context.
type cancelOnClose struct {
	rc     io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Read(p []byte) (int, error) { return c.rc.Read(p) }

func (c *cancelOnClose) Close() error {
	c.cancel()
	return c.rc.Close()
}
