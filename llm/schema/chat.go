package schema

import "encoding/json"

// ChatResponse 表示一次对话调用的完整结果。
//
// Messages 按 TurnIndex 升序排列，每个并行补全一条。
type ChatResponse struct {
	ID    string `json:"id"`
	Model string `json:"model"`

	Messages []Message `json:"messages"`
	Usage    *Usage    `json:"usage,omitempty"`

	// Raw 保留 provider 原生载荷，用于调试/向前兼容
	Raw json.RawMessage `json:"raw,omitempty"`
}

// FirstText 返回第一条消息的文本内容。
func (r ChatResponse) FirstText() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].Text()
}
