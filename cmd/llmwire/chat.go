package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumik/llmwire/llm"
	"github.com/lumik/llmwire/llm/schema"
	"github.com/lumik/llmwire/llm/stream"
)

type chatOptions struct {
	model       string
	system      string
	noStream    bool
	maxTokens   int
	temperature float64
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "发送一条消息并输出回复",
		Long: `发送一条消息并输出回复。

不带参数时从标准输入读取 prompt。默认以流式方式边生成边输出，
--no-stream 则等待完整响应。`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(root, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "覆盖配置中的模型")
	cmd.Flags().StringVarP(&opts.system, "system", "s", "", "系统提示词")
	cmd.Flags().BoolVar(&opts.noStream, "no-stream", false, "等待完整响应而不是流式输出")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "生成的最大 token 数")
	cmd.Flags().Float64VarP(&opts.temperature, "temperature", "t", -1, "采样温度")

	return cmd
}

func runChat(root *rootOptions, opts *chatOptions, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return errors.New("empty prompt")
	}

	model, _, err := root.buildModel()
	if err != nil {
		return err
	}
	client := llm.Wrap(model)

	var messages []schema.Message
	if opts.system != "" {
		messages = append(messages, schema.SystemMessage(opts.system))
	}
	messages = append(messages, schema.UserMessage(prompt))

	var reqOpts []llm.RequestOption
	if opts.model != "" {
		reqOpts = append(reqOpts, llm.WithModel(opts.model))
	}
	if opts.maxTokens > 0 {
		reqOpts = append(reqOpts, llm.WithMaxTokens(opts.maxTokens))
	}
	if opts.temperature >= 0 {
		reqOpts = append(reqOpts, llm.WithTemperature(opts.temperature))
	}

	ctx := cmdContext()

	if opts.noStream {
		resp, err := client.Chat(ctx, messages, reqOpts...)
		if err != nil {
			return chatError(err)
		}
		fmt.Println(resp.FirstText())
		printToolCalls(resp.Messages)
		return nil
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	reqOpts = append(reqOpts, llm.WithSink(func(ev stream.Event) error {
		if ev.Kind == stream.EventDelta && ev.Delta.Content != "" {
			if _, err := out.WriteString(ev.Delta.Content); err != nil {
				return err
			}
			return out.Flush()
		}
		return nil
	}))

	resp, err := client.Chat(ctx, messages, reqOpts...)
	if err != nil {
		return chatError(err)
	}
	out.WriteString("\n")
	printToolCalls(resp.Messages)
	return nil
}

func printToolCalls(messages []schema.Message) {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(os.Stderr, "tool call: %s(%s)\n", tc.Name, tc.Arguments)
		}
	}
}

func chatError(err error) error {
	if ae, ok := llm.AsAPIError(err); ok {
		if llm.IsRateLimit(err) && ae.RetryAfter > 0 {
			return fmt.Errorf("%w (retry after %s)", ae, ae.RetryAfter)
		}
		return ae
	}
	return err
}
