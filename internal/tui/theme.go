package tui

import "github.com/charmbracelet/lipgloss"

// Theme 定义 TUI 主题色彩和样式
// Theme defines TUI colors and styles
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Danger    lipgloss.Color
	Success   lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
	TextDim   lipgloss.Color
	Border    lipgloss.Color

	// 预构建样式 / Pre-built styles
	TitleStyle     lipgloss.Style
	StatusBarStyle lipgloss.Style
	InputStyle     lipgloss.Style
	ErrorStyle     lipgloss.Style
	SuccessStyle   lipgloss.Style
	MutedStyle     lipgloss.Style
	OverlayStyle   lipgloss.Style
	SelectedStyle  lipgloss.Style

	// 消息角色样式 / Message role styles
	UserStyle      lipgloss.Style
	AssistantStyle lipgloss.Style
	ReasoningStyle lipgloss.Style
	ToolStyle      lipgloss.Style
	ToolDoneStyle  lipgloss.Style
	ApprovalStyle  lipgloss.Style
}

// ThemeByName 按名称选择主题，未知名称回退到暗色。
// ThemeByName selects a theme by name, falling back to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// DarkTheme 暗色主题（默认）
// DarkTheme is the default dark theme
func DarkTheme() Theme {
	t := Theme{
		Primary:   lipgloss.Color("#7C3AED"),
		Secondary: lipgloss.Color("#06B6D4"),
		Accent:    lipgloss.Color("#F59E0B"),
		Danger:    lipgloss.Color("#EF4444"),
		Success:   lipgloss.Color("#10B981"),
		Muted:     lipgloss.Color("#6B7280"),
		Text:      lipgloss.Color("#E5E7EB"),
		TextDim:   lipgloss.Color("#9CA3AF"),
		Border:    lipgloss.Color("#374151"),
	}
	return buildStyles(t)
}

// LightTheme 亮色主题
// LightTheme is the light theme
func LightTheme() Theme {
	t := Theme{
		Primary:   lipgloss.Color("#6D28D9"),
		Secondary: lipgloss.Color("#0891B2"),
		Accent:    lipgloss.Color("#B45309"),
		Danger:    lipgloss.Color("#DC2626"),
		Success:   lipgloss.Color("#059669"),
		Muted:     lipgloss.Color("#9CA3AF"),
		Text:      lipgloss.Color("#111827"),
		TextDim:   lipgloss.Color("#4B5563"),
		Border:    lipgloss.Color("#D1D5DB"),
	}
	return buildStyles(t)
}

func buildStyles(t Theme) Theme {
	t.TitleStyle = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	t.StatusBarStyle = lipgloss.NewStyle().
		Foreground(t.TextDim)

	t.InputStyle = lipgloss.NewStyle().
		Foreground(t.Text).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.Border)

	t.ErrorStyle = lipgloss.NewStyle().
		Foreground(t.Danger).
		Bold(true)

	t.SuccessStyle = lipgloss.NewStyle().
		Foreground(t.Success)

	t.MutedStyle = lipgloss.NewStyle().
		Foreground(t.Muted)

	t.OverlayStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Primary).
		Padding(1, 2)

	t.SelectedStyle = lipgloss.NewStyle().
		Foreground(t.Text).
		Background(t.Primary).
		Bold(true)

	t.UserStyle = lipgloss.NewStyle().
		Foreground(t.Secondary).
		Bold(true)

	t.AssistantStyle = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	t.ReasoningStyle = lipgloss.NewStyle().
		Foreground(t.Muted).
		Italic(true)

	t.ToolStyle = lipgloss.NewStyle().
		Foreground(t.Accent)

	t.ToolDoneStyle = lipgloss.NewStyle().
		Foreground(t.Success)

	t.ApprovalStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(t.Danger).
		Bold(true).
		Padding(0, 1)

	return t
}
