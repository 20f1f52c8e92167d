package transcript

import (
	"encoding/json"
	"fmt"
)

// now is indirected so tests can pin the clock.
var now = Now

// Apply returns the transcript produced by applying ev to t. The input
// value is never mutated: slices and maps on the path to a change are
// copied first, everything else is shared. Events that reference an
// unknown message or carry nothing useful return t unchanged.
func Apply(t Transcript, ev Event) Transcript {
	switch e := ev.(type) {
	case Load:
		return applyLoad(t, e)
	case AddOptimisticUser:
		return applyAddOptimisticUser(t, e)
	case MessageCreated:
		return applyMessageCreated(t, e)
	case TextDelta:
		return applyDelta(t, e.MessageID, e.PartID, e.Delta, e.StepIndex, PartText)
	case ReasoningDelta:
		return applyDelta(t, e.MessageID, e.PartID, e.Delta, e.StepIndex, PartReasoning)
	case ToolCall:
		return applyToolCall(t, e)
	case ToolResult:
		return applyToolResult(t, e)
	case MessageCompleted:
		return applyMessageCompleted(t, e)
	case MessageUpdated:
		return applyMessageUpdated(t, e)
	case MessageError:
		return applyMessageError(t, e)
	case ApprovalRequired:
		a := e.Approval
		t.Approval = &a
		return t
	case ApprovalResolved:
		if t.Approval != nil && (e.CallID == "" || t.Approval.CallID == e.CallID) {
			t.Approval = nil
		}
		return t
	case Clear:
		return Transcript{}
	}
	return t
}

func applyLoad(t Transcript, e Load) Transcript {
	var optimistic []Message
	for _, m := range t.Messages {
		if IsOptimisticID(m.ID) {
			optimistic = append(optimistic, m)
		}
	}
	if len(optimistic) == 0 {
		t.Messages = e.Messages
		return t
	}
	// The server echoing any user message means our optimistic copy has
	// been persisted under a real id; dropping it avoids a duplicate.
	for _, m := range e.Messages {
		if m.Role == RoleUser {
			t.Messages = e.Messages
			return t
		}
	}
	merged := make([]Message, 0, len(optimistic)+len(e.Messages))
	merged = append(merged, optimistic...)
	merged = append(merged, e.Messages...)
	t.Messages = merged
	return t
}

func applyAddOptimisticUser(t Transcript, e AddOptimisticUser) Transcript {
	for _, m := range t.Messages {
		if m.ID == e.ID {
			return t
		}
	}
	ts := now()
	content, cj := textContent(e.Text)
	msg := Message{
		ID:        e.ID,
		SessionID: e.SessionID,
		Role:      RoleUser,
		Status:    StatusComplete,
		Agent:     e.Agent,
		Provider:  e.Provider,
		Model:     e.Model,
		CreatedAt: ts,
		Parts: []MessagePart{{
			ID:          e.ID + "-text",
			MessageID:   e.ID,
			Index:       0,
			Type:        PartText,
			Content:     content,
			ContentJSON: cj,
			StartedAt:   &ts,
			CompletedAt: &ts,
		}},
	}
	t.Messages = appendMessage(t.Messages, msg)
	return t
}

func applyMessageCreated(t Transcript, e MessageCreated) Transcript {
	if t.Find(e.ID) != nil {
		return t
	}
	if e.Role == RoleUser {
		// Reconcile the optimistic placeholder in place so the user's
		// message keeps its position and its already-rendered text.
		for i, m := range t.Messages {
			if !IsOptimisticID(m.ID) {
				continue
			}
			msgs := cloneMessages(t.Messages)
			reconciled := msgs[i]
			reconciled.ID = e.ID
			parts := make([]MessagePart, len(reconciled.Parts))
			for j, p := range reconciled.Parts {
				p.MessageID = e.ID
				if IsOptimisticID(p.ID) {
					p.ID = e.ID + "-text"
				}
				parts[j] = p
			}
			reconciled.Parts = parts
			msgs[i] = reconciled
			t.Messages = msgs
			return t
		}
	}
	// Only assistant messages stream and later receive a completion
	// event; any other role lands complete, so Streaming() stays false.
	status := StatusComplete
	if e.Role == RoleAssistant {
		status = StatusPending
	}
	msg := Message{
		ID:        e.ID,
		Role:      e.Role,
		Status:    status,
		Agent:     e.Agent,
		Provider:  e.Provider,
		Model:     e.Model,
		CreatedAt: now(),
	}
	t.Messages = appendMessage(t.Messages, msg)
	return t
}

func applyDelta(t Transcript, messageID, partID, delta string, stepIndex *int, ptype PartType) Transcript {
	i := indexOf(t.Messages, messageID)
	if i < 0 {
		return t
	}
	msgs := cloneMessages(t.Messages)
	m := msgs[i]
	parts := make([]MessagePart, len(m.Parts), len(m.Parts)+1)
	copy(parts, m.Parts)
	found := false
	for j := range parts {
		if parts[j].ID != partID {
			continue
		}
		p := parts[j]
		p.Content, p.ContentJSON = textContent(p.Text() + delta)
		if p.StepIndex == nil && stepIndex != nil {
			p.StepIndex = stepIndex
		}
		parts[j] = p
		found = true
		break
	}
	if !found {
		ts := now()
		content, cj := textContent(delta)
		parts = append(parts, MessagePart{
			ID:          partID,
			MessageID:   messageID,
			Index:       len(parts),
			StepIndex:   stepIndex,
			Type:        ptype,
			Content:     content,
			ContentJSON: cj,
			StartedAt:   &ts,
		})
	}
	m.Parts = parts
	msgs[i] = m
	t.Messages = msgs
	return t
}

func applyToolCall(t Transcript, e ToolCall) Transcript {
	if e.Name == "" {
		return t
	}
	target := -1
	if e.MessageID != "" {
		target = indexOf(t.Messages, e.MessageID)
	}
	if target < 0 {
		for i := len(t.Messages) - 1; i >= 0; i-- {
			m := t.Messages[i]
			if m.Role == RoleAssistant && m.Status != StatusComplete {
				target = i
				break
			}
		}
	}
	if target < 0 {
		return t
	}
	msgs := cloneMessages(t.Messages)
	m := msgs[target]
	parts := make([]MessagePart, len(m.Parts), len(m.Parts)+1)
	copy(parts, m.Parts)

	existing := -1
	if e.CallID != "" {
		for j := range parts {
			if parts[j].Ephemeral && parts[j].ToolCallID == e.CallID {
				existing = j
				break
			}
		}
	}
	ts := now()
	if existing >= 0 {
		p := parts[existing]
		cj := make(map[string]any, len(p.ContentJSON)+3)
		for k, v := range p.ContentJSON {
			cj[k] = v
		}
		mergeToolContent(cj, e)
		p.ContentJSON = cj
		p.Content = marshalContent(cj)
		p.ToolName = e.Name
		if e.CallID != "" {
			p.ToolCallID = e.CallID
		}
		if p.StepIndex == nil && e.StepIndex != nil {
			p.StepIndex = e.StepIndex
		}
		parts[existing] = p
	} else {
		id := "ephemeral-" + e.CallID
		if e.CallID == "" {
			id = fmt.Sprintf("ephemeral-%s-%d", e.Name, int64(ts))
		}
		cj := make(map[string]any, 3)
		mergeToolContent(cj, e)
		parts = append(parts, MessagePart{
			ID:          id,
			MessageID:   m.ID,
			Index:       len(parts),
			StepIndex:   e.StepIndex,
			Type:        PartToolCall,
			Content:     marshalContent(cj),
			ContentJSON: cj,
			StartedAt:   &ts,
			ToolName:    e.Name,
			ToolCallID:  e.CallID,
			Ephemeral:   true,
		})
	}
	m.Parts = parts
	msgs[target] = m
	t.Messages = msgs
	return t
}

func mergeToolContent(cj map[string]any, e ToolCall) {
	cj["name"] = e.Name
	if e.CallID != "" {
		cj["callId"] = e.CallID
	}
	if len(e.Args) > 0 {
		cj["args"] = json.RawMessage(e.Args)
	}
}

func applyToolResult(t Transcript, e ToolResult) Transcript {
	if e.CallID == "" {
		return t
	}
	ts := now()
	changed := false
	msgs := cloneMessages(t.Messages)
	for i := range msgs {
		m := msgs[i]
		var parts []MessagePart
		for j := range m.Parts {
			if !m.Parts[j].Ephemeral || m.Parts[j].ToolCallID != e.CallID {
				continue
			}
			if parts == nil {
				parts = make([]MessagePart, len(m.Parts))
				copy(parts, m.Parts)
			}
			done := ts
			parts[j].CompletedAt = &done
		}
		if parts != nil {
			m.Parts = parts
			msgs[i] = m
			changed = true
		}
	}
	if !changed {
		return t
	}
	t.Messages = msgs
	return t
}

func applyMessageCompleted(t Transcript, e MessageCompleted) Transcript {
	i := indexOf(t.Messages, e.MessageID)
	if i < 0 {
		return t
	}
	msgs := cloneMessages(t.Messages)
	m := msgs[i]
	m.Status = StatusComplete
	ts := now()
	m.CompletedAt = &ts
	if e.PromptTokens != nil {
		m.PromptTokens = e.PromptTokens
	}
	if e.CompletionTokens != nil {
		m.CompletionTokens = e.CompletionTokens
	}
	if e.TotalTokens != nil {
		m.TotalTokens = e.TotalTokens
	}
	msgs[i] = m
	t.Messages = msgs
	return t
}

func applyMessageUpdated(t Transcript, e MessageUpdated) Transcript {
	i := indexOf(t.Messages, e.MessageID)
	if i < 0 || e.Status == "" {
		return t
	}
	msgs := cloneMessages(t.Messages)
	msgs[i].Status = e.Status
	t.Messages = msgs
	return t
}

func applyMessageError(t Transcript, e MessageError) Transcript {
	i := indexOf(t.Messages, e.MessageID)
	if i < 0 {
		return t
	}
	msgs := cloneMessages(t.Messages)
	msgs[i].Status = StatusError
	reason := e.Error
	if reason == "" {
		reason = "Unknown error"
	}
	msgs[i].Error = reason
	t.Messages = msgs
	return t
}

func indexOf(msgs []Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

func appendMessage(msgs []Message, m Message) []Message {
	out := make([]Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, m)
}

func marshalContent(cj map[string]any) string {
	data, err := json.Marshal(cj)
	if err != nil {
		return ""
	}
	return string(data)
}
