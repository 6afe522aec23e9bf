package llm

import (
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/lumik/llmwire/llm/schema"
	"github.com/lumik/llmwire/llm/stream"
)

// RequestOption 是请求配置的可选参数函数类型
type RequestOption func(*RequestConfig)

// RequestConfig 表示单次 chat 请求的配置
type RequestConfig struct {
	// Model 指定要使用的模型 ID（如 "gpt-4o", "deepseek-chat"）
	Model string

	// Temperature 设置采样温度，范围 0-2，值越高输出越随机
	Temperature *float64

	// TopP 设置核采样阈值，范围 0-1
	TopP *float64

	// MaxTokens 设置生成的最大 token 数
	MaxTokens *int

	// Stop 设置停止序列，遇到这些序列时停止生成
	Stop []string

	// Seed 设置采样种子，用于实现确定性输出
	Seed *int64

	PresencePenalty  *float64
	FrequencyPenalty *float64

	// N 设置并行补全数量；每个补全对应结果中的一个 turn index
	N *int

	// Tools 设置模型可调用的工具列表
	Tools []schema.ToolDefinition

	// ToolChoice 设置工具调用模式
	ToolChoice *schema.ToolChoice

	// ResponseFormat 设置响应格式（如 {"type":"json_object"}），
	// 形状由 provider 决定，原样传递
	ResponseFormat any

	// === 客户端配置（不发送到 API） ===

	// Timeout 设置请求的超时时间
	Timeout *time.Duration

	// Headers 设置发送到 API 的自定义 HTTP 头
	Headers http.Header

	// Extra 允许 provider 特定的扩展，这些字段会直接合并到请求体中
	Extra map[string]any

	// AllowExtraOverride 控制 Extra 是否允许覆盖已由标准选项设置的请求字段。
	// 默认为 false，避免"看似设置了 WithModel 但被 Extra 覆盖"的隐蔽问题。
	AllowExtraOverride bool

	// KeepRaw 设置是否在 ChatResponse.Raw 保留 provider 原始响应
	KeepRaw bool

	// Sink 是流式输出回调（客户端使用，不发送到 provider）。
	// 设置后 Client.Chat 会走流式 API 并同步回调每个事件。
	Sink stream.Sink
}

// ApplyRequestOptions folds opts into a RequestConfig.
func ApplyRequestOptions(opts ...RequestOption) RequestConfig {
	var cfg RequestConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func WithModel(model string) RequestOption {
	return func(c *RequestConfig) { c.Model = model }
}

func WithTemperature(v float64) RequestOption {
	return func(c *RequestConfig) { c.Temperature = &v }
}

func WithTopP(v float64) RequestOption {
	return func(c *RequestConfig) { c.TopP = &v }
}

func WithMaxTokens(v int) RequestOption {
	return func(c *RequestConfig) { c.MaxTokens = &v }
}

func WithStop(stop ...string) RequestOption {
	return func(c *RequestConfig) { c.Stop = slices.Clone(stop) }
}

func WithSeed(v int64) RequestOption {
	return func(c *RequestConfig) { c.Seed = &v }
}

func WithPresencePenalty(v float64) RequestOption {
	return func(c *RequestConfig) { c.PresencePenalty = &v }
}

func WithFrequencyPenalty(v float64) RequestOption {
	return func(c *RequestConfig) { c.FrequencyPenalty = &v }
}

// WithN requests n parallel completions in one call.
func WithN(n int) RequestOption {
	return func(c *RequestConfig) { c.N = &n }
}

func WithTools(tools ...schema.ToolDefinition) RequestOption {
	return func(c *RequestConfig) { c.Tools = slices.Clone(tools) }
}

func WithToolChoice(choice schema.ToolChoice) RequestOption {
	return func(c *RequestConfig) { c.ToolChoice = &choice }
}

func WithResponseFormat(format any) RequestOption {
	return func(c *RequestConfig) { c.ResponseFormat = format }
}

func WithTimeout(d time.Duration) RequestOption {
	return func(c *RequestConfig) { c.Timeout = &d }
}

func WithHeader(key, value string) RequestOption {
	return func(c *RequestConfig) {
		if c.Headers == nil {
			c.Headers = make(http.Header)
		}
		c.Headers.Set(key, value)
	}
}

func WithExtra(key string, value any) RequestOption {
	return func(c *RequestConfig) {
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[key] = value
	}
}

func WithAllowExtraOverride(allow bool) RequestOption {
	return func(c *RequestConfig) { c.AllowExtraOverride = allow }
}

func WithKeepRaw(keep bool) RequestOption {
	return func(c *RequestConfig) { c.KeepRaw = keep }
}

// WithSink registers a synchronous per-event callback used by Client.Chat.
func WithSink(sink stream.Sink) RequestOption {
	return func(c *RequestConfig) { c.Sink = sink }
}

// Clone returns a deep-enough copy for safe mutation by provider adapters.
func (c RequestConfig) Clone() RequestConfig {
	out := c
	out.Stop = slices.Clone(c.Stop)
	out.Tools = slices.Clone(c.Tools)
	if c.ToolChoice != nil {
		v := *c.ToolChoice
		out.ToolChoice = &v
	}
	if c.Headers != nil {
		out.Headers = c.Headers.Clone()
	}
	if c.Extra != nil {
		out.Extra = maps.Clone(c.Extra)
	}
	return out
}
