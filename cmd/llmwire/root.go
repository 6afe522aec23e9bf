package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumik/llmwire/config"
	"github.com/lumik/llmwire/llm"
	"github.com/lumik/llmwire/llm/providers/anthropic"
	"github.com/lumik/llmwire/llm/providers/openai_compat"
)

type rootOptions struct {
	configPath string
	provider   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "llmwire",
		Short:         "与 OpenAI 兼容及 Anthropic API 对话的统一客户端",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "配置文件路径")
	cmd.PersistentFlags().StringVarP(&opts.provider, "provider", "p", "", "provider 名称（默认取配置中的 default）")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "输出调试日志")

	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newProvidersCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func defaultConfigPath() string {
	if p := os.Getenv("LLMWIRE_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "llmwire.yaml"
	}
	return home + "/.config/llmwire/llmwire.yaml"
}

func (o *rootOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) loadSettings() (config.Settings, error) {
	m, err := config.Load(o.configPath)
	if err != nil {
		return config.Settings{}, fmt.Errorf("load config %s: %w", o.configPath, err)
	}
	return m.Get(), nil
}

// buildModel 根据配置组装 ChatModel。
func (o *rootOptions) buildModel() (llm.ChatModel, config.ProviderSettings, error) {
	settings, err := o.loadSettings()
	if err != nil {
		return nil, config.ProviderSettings{}, err
	}

	name := o.provider
	if name == "" {
		name = settings.Default
	}
	ps, err := settings.Provider(name)
	if err != nil {
		return nil, config.ProviderSettings{}, err
	}

	logger := o.logger()
	switch ps.Dialect {
	case config.DialectOpenAI:
		popts := []openai_compat.Option{
			openai_compat.WithProviderName(llm.Provider(name)),
			openai_compat.WithLogger(logger),
			openai_compat.WithDefaultModel(ps.Model),
		}
		if ps.BaseURL != "" {
			popts = append(popts, openai_compat.WithBaseURL(ps.BaseURL))
		}
		for k, v := range ps.Headers {
			popts = append(popts, openai_compat.WithDefaultHeader(k, v))
		}
		if ps.TimeoutSeconds > 0 {
			popts = append(popts, openai_compat.WithHTTPClient(httpClient(ps.TimeoutSeconds)))
		}
		m, err := openai_compat.New(ps.APIKey, popts...)
		return m, ps, err

	case config.DialectAnthropic:
		popts := []anthropic.Option{
			anthropic.WithLogger(logger),
			anthropic.WithDefaultModel(ps.Model),
		}
		if ps.BaseURL != "" {
			popts = append(popts, anthropic.WithBaseURL(ps.BaseURL))
		}
		for k, v := range ps.Headers {
			popts = append(popts, anthropic.WithDefaultHeader(k, v))
		}
		if ps.TimeoutSeconds > 0 {
			popts = append(popts, anthropic.WithHTTPClient(httpClient(ps.TimeoutSeconds)))
		}
		m, err := anthropic.New(ps.APIKey, popts...)
		return m, ps, err
	}
	return nil, config.ProviderSettings{}, fmt.Errorf("unknown dialect %q for provider %q", ps.Dialect, name)
}

// cmdContext 在 Ctrl-C 时取消进行中的请求
func cmdContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt)
	return ctx
}

func httpClient(timeoutSeconds int) *http.Client {
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}
