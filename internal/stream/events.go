package stream

import (
	"encoding/json"
	"fmt"

	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

// Wire event names emitted on the session feed.
const (
	EventMessageCreated   = "message.created"
	EventMessagePartDelta = "message.part.delta"
	EventReasoningDelta   = "reasoning.delta"
	EventToolCall         = "tool.call"
	EventToolDelta        = "tool.delta"
	EventToolResult       = "tool.result"
	EventApprovalRequired = "tool.approval.required"
	EventApprovalResolved = "tool.approval.resolved"
	EventMessageCompleted = "message.completed"
	EventMessageUpdated   = "message.updated"
	EventError            = "error"
)

type messageCreatedPayload struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Agent    string `json:"agent"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type deltaPayload struct {
	MessageID string  `json:"messageId"`
	PartID    string  `json:"partId"`
	Delta     *string `json:"delta"`
	StepIndex *int    `json:"stepIndex"`
}

type toolCallPayload struct {
	CallID    string          `json:"callId"`
	Name      string          `json:"name"`
	MessageID string          `json:"messageId"`
	Args      json.RawMessage `json:"args"`
	StepIndex *int            `json:"stepIndex"`
	Channel   string          `json:"channel"`
}

type toolResultPayload struct {
	CallID string `json:"callId"`
}

type approvalPayload struct {
	CallID    string          `json:"callId"`
	ToolName  string          `json:"toolName"`
	Args      json.RawMessage `json:"args"`
	MessageID string          `json:"messageId"`
}

type messageCompletedPayload struct {
	ID               string `json:"id"`
	PromptTokens     *int   `json:"promptTokens"`
	CompletionTokens *int   `json:"completionTokens"`
	TotalTokens      *int   `json:"totalTokens"`
}

type messageUpdatedPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorPayload struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// DecodeFrame validates a wire frame and maps it onto a transcript
// event. It returns (nil, nil) for event types the client deliberately
// ignores, and an error for payloads that fail validation; the caller
// logs and drops those without terminating the feed.
func DecodeFrame(f Frame) (transcript.Event, error) {
	switch f.Event {
	case EventMessageCreated:
		var p messageCreatedPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		if p.ID == "" || p.Role == "" {
			return nil, fmt.Errorf("%s: missing id or role", f.Event)
		}
		return transcript.MessageCreated{
			ID:       p.ID,
			Role:     transcript.Role(p.Role),
			Agent:    p.Agent,
			Provider: p.Provider,
			Model:    p.Model,
		}, nil

	case EventMessagePartDelta, EventReasoningDelta:
		var p deltaPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		if p.MessageID == "" || p.PartID == "" || p.Delta == nil {
			return nil, fmt.Errorf("%s: missing messageId, partId or delta", f.Event)
		}
		if f.Event == EventReasoningDelta {
			return transcript.ReasoningDelta{
				MessageID: p.MessageID,
				PartID:    p.PartID,
				Delta:     *p.Delta,
				StepIndex: p.StepIndex,
			}, nil
		}
		return transcript.TextDelta{
			MessageID: p.MessageID,
			PartID:    p.PartID,
			Delta:     *p.Delta,
			StepIndex: p.StepIndex,
		}, nil

	case EventToolCall, EventToolDelta:
		var p toolCallPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		// tool.delta frames mirror tool.call but only the argument
		// channel feeds the transcript; progress channels are display
		// noise the placeholder already covers.
		if f.Event == EventToolDelta && p.Channel != "input" {
			return nil, nil
		}
		if p.Name == "" {
			return nil, fmt.Errorf("%s: missing name", f.Event)
		}
		return transcript.ToolCall{
			CallID:    p.CallID,
			Name:      p.Name,
			MessageID: p.MessageID,
			Args:      p.Args,
			StepIndex: p.StepIndex,
		}, nil

	case EventToolResult:
		var p toolResultPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		if p.CallID == "" {
			return nil, fmt.Errorf("%s: missing callId", f.Event)
		}
		return transcript.ToolResult{CallID: p.CallID}, nil

	case EventApprovalRequired:
		var p approvalPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		if p.CallID == "" || p.ToolName == "" || p.MessageID == "" {
			return nil, fmt.Errorf("%s: missing callId, toolName or messageId", f.Event)
		}
		return transcript.ApprovalRequired{Approval: transcript.PendingApproval{
			CallID:    p.CallID,
			ToolName:  p.ToolName,
			Args:      p.Args,
			MessageID: p.MessageID,
		}}, nil

	case EventApprovalResolved:
		var p approvalPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		return transcript.ApprovalResolved{CallID: p.CallID}, nil

	case EventMessageCompleted:
		var p messageCompletedPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%s: missing id", f.Event)
		}
		return transcript.MessageCompleted{
			MessageID:        p.ID,
			PromptTokens:     p.PromptTokens,
			CompletionTokens: p.CompletionTokens,
			TotalTokens:      p.TotalTokens,
		}, nil

	case EventMessageUpdated:
		var p messageUpdatedPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		if p.ID == "" || p.Status == "" {
			return nil, fmt.Errorf("%s: missing id or status", f.Event)
		}
		return transcript.MessageUpdated{
			MessageID: p.ID,
			Status:    transcript.Status(p.Status),
		}, nil

	case EventError:
		var p errorPayload
		if err := unmarshal(f, &p); err != nil {
			return nil, err
		}
		if p.MessageID == "" {
			return nil, fmt.Errorf("%s: missing messageId", f.Event)
		}
		return transcript.MessageError{MessageID: p.MessageID, Error: p.Error}, nil
	}

	// Unknown event types are forward-compatibility, not errors.
	return nil, nil
}

func unmarshal(f Frame, dst any) error {
	if err := json.Unmarshal([]byte(f.Data), dst); err != nil {
		return fmt.Errorf("parse %s payload: %w", f.Event, err)
	}
	return nil
}
