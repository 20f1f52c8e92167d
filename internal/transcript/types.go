package transcript

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Role is a message author role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Status is a message lifecycle status. At most one message per session
// is Pending at a time (the one currently streaming).
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// PartType is a message part kind.
type PartType string

const (
	PartText       PartType = "text"
	PartReasoning  PartType = "reasoning"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
	PartImage      PartType = "image"
	PartFile       PartType = "file"
	PartError      PartType = "error"
)

// OptimisticPrefix marks locally-created provisional ids. An optimistic
// message is rewritten in place once the server echoes its own copy.
const OptimisticPrefix = "optimistic-"

// IsOptimisticID reports whether id was assigned locally.
func IsOptimisticID(id string) bool {
	return strings.HasPrefix(id, OptimisticPrefix)
}

// Millis is a unix-epoch millisecond timestamp. The server emits either
// a number or an RFC 3339 string depending on the endpoint; both decode.
type Millis int64

// Now returns the current time as Millis.
func Now() Millis {
	return Millis(time.Now().UnixMilli())
}

// Time converts to time.Time.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

func (m Millis) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(m), 10)), nil
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*m = 0
		return nil
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		*m = Millis(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	*m = Millis(t.UnixMilli())
	return nil
}

// Message is one conversation entry as reconstructed from history plus
// live events.
type Message struct {
	ID               string        `json:"id"`
	SessionID        string        `json:"sessionId"`
	Role             Role          `json:"role"`
	Status           Status        `json:"status"`
	Agent            string        `json:"agent"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	CreatedAt        Millis        `json:"createdAt"`
	CompletedAt      *Millis       `json:"completedAt,omitempty"`
	LatencyMS        *int64        `json:"latencyMs,omitempty"`
	PromptTokens     *int          `json:"promptTokens,omitempty"`
	CompletionTokens *int          `json:"completionTokens,omitempty"`
	TotalTokens      *int          `json:"totalTokens,omitempty"`
	Error            string        `json:"error,omitempty"`
	Parts            []MessagePart `json:"parts,omitempty"`
}

// MessagePart is one ordered unit inside a message. Within a message,
// parts are totally ordered by Index then StartedAt; Index is assigned at
// creation and never recomputed. A part marked Ephemeral is a provisional
// tool-call placeholder awaiting its result and may be superseded at
// render time; all other parts only ever grow in place.
type MessagePart struct {
	ID             string         `json:"id"`
	MessageID      string         `json:"messageId"`
	Index          int            `json:"index"`
	StepIndex      *int           `json:"stepIndex,omitempty"`
	Type           PartType       `json:"type"`
	Content        string         `json:"content"`
	ContentJSON    map[string]any `json:"contentJson,omitempty"`
	Agent          string         `json:"agent,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	Model          string         `json:"model,omitempty"`
	StartedAt      *Millis        `json:"startedAt,omitempty"`
	CompletedAt    *Millis        `json:"completedAt,omitempty"`
	ToolName       string         `json:"toolName,omitempty"`
	ToolCallID     string         `json:"toolCallId,omitempty"`
	ToolDurationMS *int64         `json:"toolDurationMs,omitempty"`
	Ephemeral      bool           `json:"ephemeral,omitempty"`
}

// Text extracts the display text of a part: contentJson.text wins, then
// a {"text": ...} encoded Content, then Content verbatim.
func (p MessagePart) Text() string {
	if p.ContentJSON != nil {
		if s, ok := p.ContentJSON["text"].(string); ok {
			return s
		}
	}
	if p.Content != "" {
		var wrapped struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal([]byte(p.Content), &wrapped); err == nil && wrapped.Text != nil {
			return *wrapped.Text
		}
	}
	return p.Content
}

// PendingApproval is the single-slot pause point for a tool call awaiting
// user consent. At most one is live at a time.
type PendingApproval struct {
	CallID    string          `json:"callId"`
	ToolName  string          `json:"toolName"`
	Args      json.RawMessage `json:"args,omitempty"`
	MessageID string          `json:"messageId"`
}

// Transcript is the reconstructed conversation state for one session:
// the ordered message list plus the approval slot. It is the unit of
// immutability: every transition returns a new value and never mutates a
// previously published one. Consumers must treat snapshots as read-only.
type Transcript struct {
	Messages []Message
	Approval *PendingApproval
}

// Streaming reports whether any message is still pending.
func (t Transcript) Streaming() bool {
	for _, m := range t.Messages {
		if m.Status == StatusPending {
			return true
		}
	}
	return false
}

// Find returns the message with the given id, or nil.
func (t Transcript) Find(id string) *Message {
	for i := range t.Messages {
		if t.Messages[i].ID == id {
			return &t.Messages[i]
		}
	}
	return nil
}

// textContent builds the canonical {"text": ...} content pair the server
// uses for text and reasoning parts.
func textContent(text string) (string, map[string]any) {
	data, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return text, map[string]any{"text": text}
	}
	return string(data), map[string]any{"text": text}
}
