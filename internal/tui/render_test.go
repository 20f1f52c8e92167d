package tui

import (
	"strings"
	"testing"

	"github.com/nitishxyz/agi-sub004/internal/api"
	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

func TestRenderMarkdown_Basic(t *testing.T) {
	input := "# Hello\n\nThis is **bold** text."
	result := RenderMarkdown(input, 80)
	if result == "" {
		t.Fatal("RenderMarkdown returned empty")
	}
	// Glamour 应该渲染了标题 / Glamour should have rendered the heading
	if !strings.Contains(result, "Hello") {
		t.Fatalf("result should contain 'Hello': %q", result)
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	if RenderMarkdown("", 80) != "" {
		t.Fatal("empty input should return empty")
	}
	if RenderMarkdown("  ", 80) != "" {
		t.Fatal("whitespace input should return empty")
	}
}

func TestRenderTranscript_CollapsesSupersededToolParts(t *testing.T) {
	tr := transcript.Transcript{Messages: []transcript.Message{
		{
			ID: "a1", Role: transcript.RoleAssistant, Status: transcript.StatusComplete,
			Parts: []transcript.MessagePart{
				{ID: "a1-p0", Index: 0, Type: transcript.PartText, Content: `{"text":"Working on it."}`},
				{ID: "ephemeral-c1", Index: 1, Type: transcript.PartToolCall, ToolCallID: "c1", ToolName: "bash", Ephemeral: true},
				{ID: "a1-p2", Index: 2, Type: transcript.PartToolCall, ToolCallID: "c1", ToolName: "bash"},
			},
		},
	}}

	out := RenderTranscript(tr, DarkTheme(), 80, false)
	if !strings.Contains(out, "Working on it.") {
		t.Fatalf("missing text part: %q", out)
	}
	if strings.Count(out, "bash") != 1 {
		t.Fatalf("superseded tool placeholder rendered twice:\n%s", out)
	}
}

func TestRenderTranscript_ShowsErrorAndPending(t *testing.T) {
	tr := transcript.Transcript{Messages: []transcript.Message{
		{ID: "a1", Role: transcript.RoleAssistant, Status: transcript.StatusError, Error: "provider exploded"},
		{ID: "a2", Role: transcript.RoleAssistant, Status: transcript.StatusPending},
	}}

	out := RenderTranscript(tr, DarkTheme(), 80, false)
	if !strings.Contains(out, "provider exploded") {
		t.Fatalf("missing error line: %q", out)
	}
	if !strings.Contains(out, "…") {
		t.Fatalf("missing pending marker: %q", out)
	}
}

func TestRenderApprovalPrompt(t *testing.T) {
	p := transcript.PendingApproval{
		CallID:   "c1",
		ToolName: "bash",
		Args:     []byte(`{"cmd":"rm -rf build"}`),
	}
	out := RenderApprovalPrompt(p, DarkTheme())
	for _, want := range []string{"approval required", "bash", "rm -rf build"} {
		if !strings.Contains(out, want) {
			t.Fatalf("approval prompt missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSessionList(t *testing.T) {
	sessions := []api.Session{
		{ID: "s1", Title: "first", Provider: "openai", Model: "gpt"},
		{ID: "s2", Provider: "anthropic", Model: "claude"},
	}
	out := RenderSessionList(sessions, 1, DarkTheme())
	if !strings.Contains(out, "first") {
		t.Fatalf("missing titled session: %q", out)
	}
	// Untitled sessions fall back to the id.
	if !strings.Contains(out, "s2") {
		t.Fatalf("missing id fallback: %q", out)
	}

	empty := RenderSessionList(nil, 0, DarkTheme())
	if !strings.Contains(empty, "no sessions yet") {
		t.Fatalf("missing empty notice: %q", empty)
	}
}
