package schema

// Status 表示一条消息（或其累积状态）的终止状态。
type Status string

const (
	StatusIncomplete Status = "incomplete" // 仍在累积，唯一的非终止状态
	StatusComplete   Status = "complete"   // 自然结束
	StatusLength     Status = "length"     // 达到 token 上限
	StatusCancelled  Status = "cancelled"  // 调用方取消
)

// Terminal reports whether s ends accumulation for its turn index.
// The zero value counts as incomplete.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusLength, StatusCancelled:
		return true
	}
	return false
}

// ToolCallDelta is a partial tool invocation carried by one Delta.
//
// Only the fields present in the originating wire fragment are set.
// ArgumentsDelta is an opaque string to be concatenated, never parsed
// mid-stream.
type ToolCallDelta struct {
	Index          int
	ID             string
	Name           string
	ArgumentsDelta string
}

// Delta is one incremental fragment of an in-progress model response turn.
//
// A Delta is never retroactively corrected: later deltas for the same turn
// only append content or set previously-unset fields.
type Delta struct {
	// TurnIndex is the 0-based choice index when a provider returns
	// several parallel completions. Most providers only ever emit 0.
	TurnIndex int

	// Role is empty unless this fragment carried one.
	Role Role

	// Content is a partial text fragment.
	Content string

	ToolCalls []ToolCallDelta

	Status Status
}
