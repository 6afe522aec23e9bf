package stream

import (
	"sort"

	"github.com/lumik/llmwire/llm/schema"
)

// Merge folds next into acc and returns the accumulator. A nil acc means
// next is the first delta for its turn index and becomes the accumulator
// as-is.
//
// The merge is monotonic: text only grows by append, per-index tool call
// arguments only grow by append, and a terminal status always wins.
// Providers are assumed self-consistent about role; if two deltas disagree
// the newer value wins, which is a non-fatal divergence rather than an
// error.
func Merge(acc *schema.Delta, next schema.Delta) *schema.Delta {
	if acc == nil {
		cp := next
		cp.ToolCalls = append([]schema.ToolCallDelta(nil), next.ToolCalls...)
		return &cp
	}

	if next.Role != "" {
		acc.Role = next.Role
	}
	acc.Content += next.Content

	for _, frag := range next.ToolCalls {
		pos := -1
		for i := range acc.ToolCalls {
			if acc.ToolCalls[i].Index == frag.Index {
				pos = i
				break
			}
		}
		if pos < 0 {
			acc.ToolCalls = append(acc.ToolCalls, frag)
			continue
		}
		existing := &acc.ToolCalls[pos]
		if frag.ID != "" {
			existing.ID = frag.ID
		}
		if frag.Name != "" {
			existing.Name = frag.Name
		}
		existing.ArgumentsDelta += frag.ArgumentsDelta
	}

	if next.Status.Terminal() {
		acc.Status = next.Status
	} else if next.Status != "" && !acc.Status.Terminal() {
		acc.Status = next.Status
	}
	return acc
}

// Finalize converts an accumulated Delta into a Message: concatenated text
// becomes a single text content part and tool call fragments become
// complete ToolCall entries, ordered by index.
func Finalize(d schema.Delta) schema.Message {
	role := d.Role
	if role == "" {
		role = schema.RoleAssistant
	}

	msg := schema.Message{
		Role:      role,
		Status:    d.Status,
		TurnIndex: d.TurnIndex,
	}
	if d.Content != "" {
		msg.Content = []schema.ContentPart{schema.TextPart(d.Content)}
	}

	if len(d.ToolCalls) > 0 {
		frags := append([]schema.ToolCallDelta(nil), d.ToolCalls...)
		sort.Slice(frags, func(i, j int) bool { return frags[i].Index < frags[j].Index })
		msg.ToolCalls = make([]schema.ToolCall, 0, len(frags))
		for _, f := range frags {
			msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
				ID:        f.ID,
				Name:      f.Name,
				Arguments: f.ArgumentsDelta,
				Index:     f.Index,
			})
		}
	}
	return msg
}
