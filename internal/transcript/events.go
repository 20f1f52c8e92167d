package transcript

import "encoding/json"

// Event is a transcript transition input. Variants are produced either
// by the wire decoder (internal/stream) or locally by the client (Load,
// AddOptimisticUser, Clear).
type Event interface {
	isEvent()
}

// Load replaces the message list with fetched history. Optimistic
// local messages survive the swap unless the history already contains a
// user message (meaning the server has caught up).
type Load struct {
	Messages []Message
}

// AddOptimisticUser inserts a provisional user message before the server
// confirms it. Idempotent on ID.
type AddOptimisticUser struct {
	ID        string
	SessionID string
	Text      string
	Agent     string
	Provider  string
	Model     string
}

// MessageCreated announces a new server-side message. For user messages
// it reconciles the optimistic placeholder in place.
type MessageCreated struct {
	ID       string
	Role     Role
	Agent    string
	Provider string
	Model    string
}

// TextDelta appends a text fragment to a part, creating the part on
// first sight.
type TextDelta struct {
	MessageID string
	PartID    string
	Delta     string
	StepIndex *int
}

// ReasoningDelta is TextDelta for reasoning parts.
type ReasoningDelta struct {
	MessageID string
	PartID    string
	Delta     string
	StepIndex *int
}

// ToolCall upserts an ephemeral tool-call part keyed on CallID.
// MessageID may be empty; the reducer then targets the last streaming
// assistant message.
type ToolCall struct {
	CallID    string
	Name      string
	MessageID string
	Args      json.RawMessage
	StepIndex *int
}

// ToolResult marks every ephemeral part with the matching call id as
// completed. Parts are never deleted; supersession is a render concern.
type ToolResult struct {
	CallID string
}

// MessageCompleted finalizes a message and carries authoritative token
// counts when the server reports them.
type MessageCompleted struct {
	MessageID        string
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
}

// MessageUpdated changes a message's status out of band.
type MessageUpdated struct {
	MessageID string
	Status    Status
}

// MessageError marks a message failed with a human-readable reason.
type MessageError struct {
	MessageID string
	Error     string
}

// ApprovalRequired fills the approval slot, replacing any stale entry.
type ApprovalRequired struct {
	Approval PendingApproval
}

// ApprovalResolved clears the approval slot.
type ApprovalResolved struct {
	CallID string
}

// Clear resets the transcript to empty.
type Clear struct{}

func (Load) isEvent()              {}
func (AddOptimisticUser) isEvent() {}
func (MessageCreated) isEvent()    {}
func (TextDelta) isEvent()         {}
func (ReasoningDelta) isEvent()    {}
func (ToolCall) isEvent()          {}
func (ToolResult) isEvent()        {}
func (MessageCompleted) isEvent()  {}
func (MessageUpdated) isEvent()    {}
func (MessageError) isEvent()      {}
func (ApprovalRequired) isEvent()  {}
func (ApprovalResolved) isEvent()  {}
func (Clear) isEvent()             {}
