package transcript

import "sort"

// OrderedParts returns a message's parts in render order: by Index, with
// StartedAt breaking ties. Stable, so parts created in the same
// millisecond keep arrival order. The returned slice is fresh; the
// message is not modified.
func OrderedParts(m Message) []MessagePart {
	parts := make([]MessagePart, len(m.Parts))
	copy(parts, m.Parts)
	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].Index != parts[j].Index {
			return parts[i].Index < parts[j].Index
		}
		var si, sj Millis
		if parts[i].StartedAt != nil {
			si = *parts[i].StartedAt
		}
		if parts[j].StartedAt != nil {
			sj = *parts[j].StartedAt
		}
		return si < sj
	})
	return parts
}

// VisibleParts is OrderedParts minus ephemeral tool-call placeholders
// that an authoritative part with the same call id has superseded. This
// collapse is derived at read time; the underlying parts are kept so a
// late-arriving duplicate can never resurrect a deleted placeholder.
func VisibleParts(m Message) []MessagePart {
	ordered := OrderedParts(m)
	authoritative := make(map[string]bool)
	for _, p := range ordered {
		if !p.Ephemeral && p.ToolCallID != "" {
			authoritative[p.ToolCallID] = true
		}
	}
	if len(authoritative) == 0 {
		return ordered
	}
	out := ordered[:0]
	for _, p := range ordered {
		if p.Ephemeral && p.ToolCallID != "" && authoritative[p.ToolCallID] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// LastAssistant returns the most recent assistant message, or nil.
func (t Transcript) LastAssistant() *Message {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleAssistant {
			return &t.Messages[i]
		}
	}
	return nil
}

// PendingText concatenates the text parts of the currently streaming
// assistant message. Used for local token estimates while counts from
// the server are not in yet.
func (t Transcript) PendingText() string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		m := t.Messages[i]
		if m.Role != RoleAssistant || m.Status != StatusPending {
			continue
		}
		var out string
		for _, p := range OrderedParts(m) {
			if p.Type == PartText {
				out += p.Text()
			}
		}
		return out
	}
	return ""
}
