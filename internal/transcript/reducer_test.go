package transcript

import (
	"encoding/json"
	"testing"
)

func pinClock(t *testing.T, ms Millis) {
	t.Helper()
	prev := now
	now = func() Millis { return ms }
	t.Cleanup(func() { now = prev })
}

func TestDeltaConcatenation(t *testing.T) {
	pinClock(t, 1000)
	tr := Apply(Transcript{}, MessageCreated{ID: "m1", Role: RoleAssistant})

	chunks := []string{"Hel", "lo, ", "wor", "ld"}
	for _, c := range chunks {
		tr = Apply(tr, TextDelta{MessageID: "m1", PartID: "p1", Delta: c})
	}

	m := tr.Find("m1")
	if m == nil {
		t.Fatal("message not found")
	}
	if len(m.Parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(m.Parts))
	}
	if got := m.Parts[0].Text(); got != "Hello, world" {
		t.Fatalf("expected concatenated text, got %q", got)
	}
	if m.Parts[0].Type != PartText {
		t.Fatalf("expected text part, got %s", m.Parts[0].Type)
	}
}

func TestDeltaUnknownMessageIsNoOp(t *testing.T) {
	tr := Apply(Transcript{}, MessageCreated{ID: "m1", Role: RoleAssistant})
	next := Apply(tr, TextDelta{MessageID: "nope", PartID: "p1", Delta: "x"})
	if len(next.Messages[0].Parts) != 0 {
		t.Fatal("delta for unknown message must not create parts")
	}
}

func TestAddOptimisticUserIdempotent(t *testing.T) {
	pinClock(t, 2000)
	ev := AddOptimisticUser{ID: "optimistic-1", SessionID: "s1", Text: "hi"}
	tr := Apply(Transcript{}, ev)
	tr = Apply(tr, ev)
	if len(tr.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(tr.Messages))
	}
	m := tr.Messages[0]
	if m.Role != RoleUser || m.Status != StatusComplete {
		t.Fatalf("unexpected optimistic message: role=%s status=%s", m.Role, m.Status)
	}
	if len(m.Parts) != 1 || m.Parts[0].ID != "optimistic-1-text" {
		t.Fatalf("unexpected parts: %+v", m.Parts)
	}
	if got := m.Parts[0].Text(); got != "hi" {
		t.Fatalf("expected part text %q, got %q", "hi", got)
	}
}

func TestLoadPreservesOptimisticUntilServerCatchesUp(t *testing.T) {
	pinClock(t, 3000)
	tr := Apply(Transcript{}, AddOptimisticUser{ID: "optimistic-1", Text: "hi"})

	t.Run("history without user message keeps optimistic", func(t *testing.T) {
		next := Apply(tr, Load{Messages: []Message{{ID: "a1", Role: RoleAssistant, Status: StatusComplete}}})
		if len(next.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(next.Messages))
		}
		if next.Messages[0].ID != "optimistic-1" {
			t.Fatalf("optimistic message not preserved: %+v", next.Messages)
		}
	})

	t.Run("history with user message drops optimistic", func(t *testing.T) {
		next := Apply(tr, Load{Messages: []Message{
			{ID: "u1", Role: RoleUser, Status: StatusComplete},
			{ID: "a1", Role: RoleAssistant, Status: StatusComplete},
		}})
		if len(next.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(next.Messages))
		}
		for _, m := range next.Messages {
			if IsOptimisticID(m.ID) {
				t.Fatal("optimistic duplicate survived the load")
			}
		}
	})
}

func TestMessageCreatedReconcilesOptimistic(t *testing.T) {
	pinClock(t, 4000)
	tr := Apply(Transcript{}, AddOptimisticUser{ID: "optimistic-1", Text: "hi"})
	tr = Apply(tr, MessageCreated{ID: "u1", Role: RoleUser})

	if len(tr.Messages) != 1 {
		t.Fatalf("expected reconciliation in place, got %d messages", len(tr.Messages))
	}
	m := tr.Messages[0]
	if m.ID != "u1" {
		t.Fatalf("expected rewritten id u1, got %s", m.ID)
	}
	if m.Parts[0].ID != "u1-text" || m.Parts[0].MessageID != "u1" {
		t.Fatalf("part ids not rewritten: %+v", m.Parts[0])
	}
	if got := m.Parts[0].Text(); got != "hi" {
		t.Fatalf("reconciliation lost the text: %q", got)
	}
}

func TestMessageCreatedNonAssistantLandsComplete(t *testing.T) {
	tr := Apply(Transcript{}, MessageCreated{ID: "a1", Role: RoleAssistant})
	tr = Apply(tr, MessageCreated{ID: "t1", Role: RoleTool})
	tr = Apply(tr, MessageCreated{ID: "u1", Role: RoleUser})

	if got := tr.Find("a1").Status; got != StatusPending {
		t.Fatalf("assistant message must start pending, got %s", got)
	}
	for _, id := range []string{"t1", "u1"} {
		if got := tr.Find(id).Status; got != StatusComplete {
			t.Fatalf("%s must land complete, got %s", id, got)
		}
	}
	// Nothing but the assistant message may hold Streaming() open; it
	// would otherwise never be released (no completion event follows
	// non-assistant messages).
	tr = Apply(tr, MessageCompleted{MessageID: "a1"})
	if tr.Streaming() {
		t.Fatal("transcript still streaming after assistant completion")
	}
}

func TestMessageCreatedDuplicateIgnored(t *testing.T) {
	tr := Apply(Transcript{}, MessageCreated{ID: "m1", Role: RoleAssistant, Model: "a"})
	tr = Apply(tr, MessageCreated{ID: "m1", Role: RoleAssistant, Model: "b"})
	if len(tr.Messages) != 1 || tr.Messages[0].Model != "a" {
		t.Fatalf("duplicate create must be ignored: %+v", tr.Messages)
	}
}

func TestToolCallUpsertAndResult(t *testing.T) {
	pinClock(t, 5000)
	tr := Apply(Transcript{}, MessageCreated{ID: "m1", Role: RoleAssistant})

	args1 := json.RawMessage(`{"path":"a.go"}`)
	tr = Apply(tr, ToolCall{CallID: "c1", Name: "read_file", Args: args1})
	tr = Apply(tr, ToolCall{CallID: "c1", Name: "read_file", Args: json.RawMessage(`{"path":"b.go"}`)})

	m := tr.Find("m1")
	if len(m.Parts) != 1 {
		t.Fatalf("repeated tool.call must upsert, got %d parts", len(m.Parts))
	}
	p := m.Parts[0]
	if !p.Ephemeral || p.ID != "ephemeral-c1" || p.ToolCallID != "c1" {
		t.Fatalf("unexpected ephemeral part: %+v", p)
	}
	if p.CompletedAt != nil {
		t.Fatal("part completed before tool.result")
	}

	tr = Apply(tr, ToolResult{CallID: "c1"})
	p = tr.Find("m1").Parts[0]
	if p.CompletedAt == nil {
		t.Fatal("tool.result did not complete the part")
	}

	// Result for an unknown call id must change nothing.
	next := Apply(tr, ToolResult{CallID: "zzz"})
	if len(next.Find("m1").Parts) != 1 {
		t.Fatalf("unexpected part change: %+v", next.Find("m1").Parts)
	}
}

func TestToolCallTargetsLastStreamingAssistant(t *testing.T) {
	pinClock(t, 6000)
	tr := Apply(Transcript{}, MessageCreated{ID: "a1", Role: RoleAssistant})
	tr = Apply(tr, MessageCompleted{MessageID: "a1"})
	tr = Apply(tr, MessageCreated{ID: "a2", Role: RoleAssistant})

	tr = Apply(tr, ToolCall{CallID: "c1", Name: "bash"})
	if n := len(tr.Find("a1").Parts); n != 0 {
		t.Fatalf("completed message must not receive tool calls, got %d parts", n)
	}
	if n := len(tr.Find("a2").Parts); n != 1 {
		t.Fatalf("streaming message should hold the tool call, got %d parts", n)
	}

	// With no streaming assistant at all the call is dropped.
	done := Apply(tr, MessageCompleted{MessageID: "a2"})
	dropped := Apply(done, ToolCall{CallID: "c2", Name: "bash"})
	for _, m := range dropped.Messages {
		for _, p := range m.Parts {
			if p.ToolCallID == "c2" {
				t.Fatal("tool call without a target must be a no-op")
			}
		}
	}
}

func TestMessageCompletedSetsTokens(t *testing.T) {
	pinClock(t, 7000)
	tr := Apply(Transcript{}, MessageCreated{ID: "m1", Role: RoleAssistant})
	pt, ct, tt := 10, 20, 30
	tr = Apply(tr, MessageCompleted{MessageID: "m1", PromptTokens: &pt, CompletionTokens: &ct, TotalTokens: &tt})

	m := tr.Find("m1")
	if m.Status != StatusComplete || m.CompletedAt == nil {
		t.Fatalf("message not completed: %+v", m)
	}
	if m.PromptTokens == nil || *m.PromptTokens != 10 || *m.TotalTokens != 30 {
		t.Fatalf("token counts not applied: %+v", m)
	}
	if tr.Streaming() {
		t.Fatal("transcript still reports streaming")
	}
}

func TestMessageErrorDefaultsReason(t *testing.T) {
	tr := Apply(Transcript{}, MessageCreated{ID: "m1", Role: RoleAssistant})
	tr = Apply(tr, MessageError{MessageID: "m1"})
	m := tr.Find("m1")
	if m.Status != StatusError || m.Error != "Unknown error" {
		t.Fatalf("unexpected error state: %+v", m)
	}
}

func TestApprovalSlot(t *testing.T) {
	tr := Apply(Transcript{}, ApprovalRequired{Approval: PendingApproval{CallID: "c1", ToolName: "bash"}})
	if tr.Approval == nil || tr.Approval.CallID != "c1" {
		t.Fatalf("approval slot not set: %+v", tr.Approval)
	}

	// New approval overwrites a stale one.
	tr = Apply(tr, ApprovalRequired{Approval: PendingApproval{CallID: "c2", ToolName: "write_file"}})
	if tr.Approval.CallID != "c2" {
		t.Fatalf("stale approval survived: %+v", tr.Approval)
	}

	// Resolution for another call id leaves the live slot alone.
	tr = Apply(tr, ApprovalResolved{CallID: "c1"})
	if tr.Approval == nil {
		t.Fatal("mismatched resolve cleared the slot")
	}
	tr = Apply(tr, ApprovalResolved{CallID: "c2"})
	if tr.Approval != nil {
		t.Fatal("approval slot not cleared")
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	pinClock(t, 8000)
	base := Apply(Transcript{}, MessageCreated{ID: "m1", Role: RoleAssistant})
	base = Apply(base, TextDelta{MessageID: "m1", PartID: "p1", Delta: "one"})

	snapshot := base.Find("m1").Parts[0].Text()
	next := Apply(base, TextDelta{MessageID: "m1", PartID: "p1", Delta: " two"})
	next = Apply(next, ToolCall{CallID: "c1", Name: "bash"})
	next = Apply(next, MessageCompleted{MessageID: "m1"})

	if got := base.Find("m1").Parts[0].Text(); got != snapshot {
		t.Fatalf("published snapshot mutated: %q", got)
	}
	if base.Find("m1").Status != StatusPending {
		t.Fatal("published snapshot status mutated")
	}
	if got := next.Find("m1").Parts[0].Text(); got != "one two" {
		t.Fatalf("successor state wrong: %q", got)
	}
}

func TestClear(t *testing.T) {
	tr := Apply(Transcript{}, MessageCreated{ID: "m1", Role: RoleAssistant})
	tr = Apply(tr, ApprovalRequired{Approval: PendingApproval{CallID: "c1"}})
	tr = Apply(tr, Clear{})
	if len(tr.Messages) != 0 || tr.Approval != nil {
		t.Fatalf("clear left state behind: %+v", tr)
	}
}
