package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/nitishxyz/agi-sub004/internal/api"
	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

// RenderMarkdown 使用 Glamour 渲染 markdown 文本
// RenderMarkdown renders markdown text using Glamour
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimRight(rendered, "\n")
}

// RenderTranscript 将一份快照渲染为聊天面板内容。
// RenderTranscript renders a transcript snapshot into chat panel text.
// Assistant text goes through glamour when markdown is on; everything
// else is plain styled lines. Only the derived visible part view is
// drawn, so superseded tool placeholders never show twice.
func RenderTranscript(t transcript.Transcript, theme Theme, width int, markdown bool) string {
	var b strings.Builder
	for _, msg := range t.Messages {
		switch msg.Role {
		case transcript.RoleUser:
			b.WriteString(theme.UserStyle.Render("you") + "\n")
		case transcript.RoleAssistant:
			b.WriteString(theme.AssistantStyle.Render("assistant") + "\n")
		default:
			b.WriteString(theme.MutedStyle.Render(string(msg.Role)) + "\n")
		}

		for _, part := range transcript.VisibleParts(msg) {
			b.WriteString(renderPart(msg, part, theme, width, markdown))
		}

		if msg.Error != "" {
			b.WriteString(theme.ErrorStyle.Render("✗ "+msg.Error) + "\n")
		}
		if msg.Status == transcript.StatusPending {
			b.WriteString(theme.MutedStyle.Render("…") + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderPart(msg transcript.Message, part transcript.MessagePart, theme Theme, width int, markdown bool) string {
	switch part.Type {
	case transcript.PartText:
		text := part.Text()
		if text == "" {
			return ""
		}
		if markdown && msg.Role == transcript.RoleAssistant {
			return RenderMarkdown(text, width) + "\n"
		}
		return text + "\n"

	case transcript.PartReasoning:
		text := part.Text()
		if text == "" {
			return ""
		}
		return theme.ReasoningStyle.Render("💭 "+text) + "\n"

	case transcript.PartToolCall:
		label := part.ToolName
		if label == "" {
			label = "tool"
		}
		if args := toolArgsSummary(part); args != "" {
			label += " " + args
		}
		if part.CompletedAt != nil {
			return theme.ToolDoneStyle.Render("✓ "+label) + "\n"
		}
		return theme.ToolStyle.Render("🔧 "+label) + "\n"

	case transcript.PartToolResult:
		label := part.ToolName
		if label == "" {
			label = "tool"
		}
		return theme.ToolDoneStyle.Render("✓ "+label) + "\n"

	default:
		return ""
	}
}

// toolArgsSummary 压缩展示工具参数，避免撑爆一行。
// toolArgsSummary compacts tool arguments for a single display line.
func toolArgsSummary(part transcript.MessagePart) string {
	raw, ok := part.ContentJSON["args"]
	if !ok {
		return ""
	}
	var data []byte
	switch v := raw.(type) {
	case json.RawMessage:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		data = encoded
	}
	s := string(data)
	if s == "" || s == "null" || s == "{}" {
		return ""
	}
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}

// RenderApprovalPrompt 渲染审批浮层。
// RenderApprovalPrompt renders the approval overlay.
func RenderApprovalPrompt(p transcript.PendingApproval, theme Theme) string {
	var b strings.Builder
	b.WriteString(theme.ApprovalStyle.Render(" approval required ") + "\n\n")
	b.WriteString(fmt.Sprintf("tool: %s\n", p.ToolName))
	if len(p.Args) > 0 && string(p.Args) != "null" {
		args := string(p.Args)
		if len(args) > 200 {
			args = args[:197] + "..."
		}
		b.WriteString("args: " + args + "\n")
	}
	b.WriteString("\n" + theme.MutedStyle.Render("y approve · n reject"))
	return theme.OverlayStyle.Render(b.String())
}

// RenderSessionList 渲染会话选择浮层。
// RenderSessionList renders the session picker overlay.
func RenderSessionList(sessions []api.Session, selected int, theme Theme) string {
	var b strings.Builder
	b.WriteString(theme.TitleStyle.Render("sessions") + "\n\n")
	if len(sessions) == 0 {
		b.WriteString(theme.MutedStyle.Render("no sessions yet — ctrl+n to create one"))
	}
	for i, s := range sessions {
		title := s.Title
		if title == "" {
			title = s.ID
		}
		line := fmt.Sprintf("%s  %s", title, theme.MutedStyle.Render(s.Provider+"/"+s.Model))
		if i == selected {
			line = theme.SelectedStyle.Render("› " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + theme.MutedStyle.Render("enter open · d delete · esc close"))
	return theme.OverlayStyle.Render(b.String())
}

// RenderHelp 渲染帮助浮层。
// RenderHelp renders the help overlay.
func RenderHelp(theme Theme) string {
	rows := []string{
		theme.TitleStyle.Render("commands"),
		"",
		"/sessions        list sessions",
		"/new [title]     create a session",
		"/delete          delete the active session",
		"/model <name>    switch model",
		"/provider <name> switch provider",
		"/agent <name>    switch agent",
		"/stop            abort the running generation",
		"/compact         ask the server to summarize old context",
		"/export [path]   export transcript (md, json, yaml)",
		"/clear           clear the view",
		"/help            this help",
		"/quit            exit",
		"",
		theme.TitleStyle.Render("keys"),
		"",
		"ctrl+n new session · ctrl+s sessions · ctrl+c abort/quit · esc close",
	}
	return theme.OverlayStyle.Render(strings.Join(rows, "\n"))
}
