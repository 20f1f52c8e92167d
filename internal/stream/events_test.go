package stream

import (
	"testing"

	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		want    any
		wantNil bool
		wantErr bool
	}{
		{
			name:  "message created",
			frame: Frame{Event: EventMessageCreated, Data: `{"id":"m1","role":"assistant","model":"gpt"}`},
			want:  transcript.MessageCreated{ID: "m1", Role: transcript.RoleAssistant, Model: "gpt"},
		},
		{
			name:    "message created missing id",
			frame:   Frame{Event: EventMessageCreated, Data: `{"role":"assistant"}`},
			wantErr: true,
		},
		{
			name:  "text delta",
			frame: Frame{Event: EventMessagePartDelta, Data: `{"messageId":"m1","partId":"p1","delta":"hi"}`},
			want:  transcript.TextDelta{MessageID: "m1", PartID: "p1", Delta: "hi"},
		},
		{
			name:  "empty delta is valid",
			frame: Frame{Event: EventMessagePartDelta, Data: `{"messageId":"m1","partId":"p1","delta":""}`},
			want:  transcript.TextDelta{MessageID: "m1", PartID: "p1"},
		},
		{
			name:    "delta missing part id",
			frame:   Frame{Event: EventMessagePartDelta, Data: `{"messageId":"m1","delta":"hi"}`},
			wantErr: true,
		},
		{
			name:  "reasoning delta",
			frame: Frame{Event: EventReasoningDelta, Data: `{"messageId":"m1","partId":"r1","delta":"hmm"}`},
			want:  transcript.ReasoningDelta{MessageID: "m1", PartID: "r1", Delta: "hmm"},
		},
		{
			name:  "tool delta on input channel",
			frame: Frame{Event: EventToolDelta, Data: `{"channel":"input","callId":"c1","name":"bash"}`},
			want:  transcript.ToolCall{CallID: "c1", Name: "bash"},
		},
		{
			name:    "tool delta on output channel is skipped",
			frame:   Frame{Event: EventToolDelta, Data: `{"channel":"output","callId":"c1","name":"bash"}`},
			wantNil: true,
		},
		{
			name:    "tool result missing call id",
			frame:   Frame{Event: EventToolResult, Data: `{}`},
			wantErr: true,
		},
		{
			name:  "approval required",
			frame: Frame{Event: EventApprovalRequired, Data: `{"callId":"c1","toolName":"bash","messageId":"m1"}`},
			want: transcript.ApprovalRequired{Approval: transcript.PendingApproval{
				CallID: "c1", ToolName: "bash", MessageID: "m1",
			}},
		},
		{
			name:    "approval required missing message id",
			frame:   Frame{Event: EventApprovalRequired, Data: `{"callId":"c1","toolName":"bash"}`},
			wantErr: true,
		},
		{
			name:  "message completed with tokens",
			frame: Frame{Event: EventMessageCompleted, Data: `{"id":"m1","promptTokens":5,"totalTokens":9}`},
			want:  "completed",
		},
		{
			name:  "protocol error event",
			frame: Frame{Event: EventError, Data: `{"messageId":"m1","error":"boom"}`},
			want:  transcript.MessageError{MessageID: "m1", Error: "boom"},
		},
		{
			name:    "malformed json",
			frame:   Frame{Event: EventToolCall, Data: `{"name":`},
			wantErr: true,
		},
		{
			name:    "unknown event skipped",
			frame:   Frame{Event: "session.renamed", Data: `{}`},
			wantNil: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeFrame(tc.frame)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantNil {
				if got != nil {
					t.Fatalf("expected skipped frame, got %+v", got)
				}
				return
			}
			if tc.want == "completed" {
				ev, ok := got.(transcript.MessageCompleted)
				if !ok || ev.MessageID != "m1" {
					t.Fatalf("unexpected event: %+v", got)
				}
				if ev.PromptTokens == nil || *ev.PromptTokens != 5 {
					t.Fatalf("prompt tokens not decoded: %+v", ev)
				}
				if ev.CompletionTokens != nil {
					t.Fatalf("absent field must stay nil: %+v", ev)
				}
				return
			}
			switch want := tc.want.(type) {
			case transcript.ToolCall:
				ev, ok := got.(transcript.ToolCall)
				if !ok || ev.CallID != want.CallID || ev.Name != want.Name {
					t.Fatalf("expected %+v, got %+v", want, got)
				}
			case transcript.ApprovalRequired:
				ev, ok := got.(transcript.ApprovalRequired)
				if !ok || ev.Approval.CallID != want.Approval.CallID || ev.Approval.ToolName != want.Approval.ToolName {
					t.Fatalf("expected %+v, got %+v", want, got)
				}
			default:
				if got != tc.want {
					t.Fatalf("expected %+v, got %+v", tc.want, got)
				}
			}
		})
	}
}
