package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/nitishxyz/agi-sub004/internal/api"
	"github.com/nitishxyz/agi-sub004/internal/approval"
	"github.com/nitishxyz/agi-sub004/internal/config"
	"github.com/nitishxyz/agi-sub004/internal/export"
	"github.com/nitishxyz/agi-sub004/internal/storage"
	"github.com/nitishxyz/agi-sub004/internal/stream"
	"github.com/nitishxyz/agi-sub004/internal/tokens"
	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

// overlayID 浮层标识
// overlayID identifies the active overlay
type overlayID int

const (
	overlayNone overlayID = iota
	overlaySessions
	overlayHelp
)

// --- Tea Messages ---

// SnapshotMsg 携带最新的会话快照
// SnapshotMsg carries the latest transcript snapshot
type SnapshotMsg struct{ Transcript transcript.Transcript }

// DisconnectMsg 服务端断流通知
// DisconnectMsg reports an unrequested feed termination
type DisconnectMsg struct{ Disconnect stream.Disconnect }

// SessionsLoadedMsg 会话列表已加载
// SessionsLoadedMsg delivers the fetched session list
type SessionsLoadedMsg struct{ Sessions []api.Session }

// SessionOpenedMsg 会话已打开
// SessionOpenedMsg reports the now-active session
type SessionOpenedMsg struct{ Session api.Session }

// StatusMsg 状态栏一次性提示
// StatusMsg is a transient status-bar notice
type StatusMsg struct{ Text string }

// ErrorMsg 后台操作失败
// ErrorMsg reports a failed background operation
type ErrorMsg struct{ Err error }

// Deps bundles everything the TUI needs. All fields are required except
// Recents and Estimator, which degrade gracefully when nil.
type Deps struct {
	Client     *api.Client
	Controller *stream.Controller
	Gate       *approval.Gate
	Recents    *storage.RecentStore
	Estimator  *tokens.Estimator
	Logger     *log.Logger
	Config     config.Config
}

// App Bubble Tea 主 Model，只消费控制器发布的不可变快照。
// App is the main Bubble Tea model. It never mutates transcript state
// itself; every change goes through the controller and comes back as a
// snapshot.
type App struct {
	deps Deps

	// 布局 / Layout
	width  int
	height int
	ready  bool

	// 视图 / Views
	chatView viewport.Model
	input    textarea.Model

	// 会话状态 / Session state
	session    api.Session
	transcript transcript.Transcript

	// 浮层 / Overlays
	overlay  overlayID
	sessions []api.Session
	selected int

	// 状态栏 / Status bar
	notice    string
	lastError string

	theme Theme
	keys  KeyMap
}

func NewApp(deps Deps) App {
	ta := textarea.New()
	ta.Placeholder = "Message, or /help for commands"
	ta.CharLimit = 8192
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Estimator == nil {
		deps.Estimator = tokens.Default()
	}

	return App{
		deps:  deps,
		input: ta,
		theme: ThemeByName(deps.Config.UI.Theme),
		keys:  DefaultKeyMap(),
	}
}

func (a App) Init() tea.Cmd {
	return textarea.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if model, cmd, handled := a.handleKey(msg); handled {
			return model, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		a.refreshChat()
		a.ready = true
		return a, nil

	case SnapshotMsg:
		a.transcript = msg.Transcript
		a.refreshChat()
		return a, nil

	case DisconnectMsg:
		a.lastError = fmt.Sprintf("connection lost (%s)", msg.Disconnect.SessionID)
		return a, nil

	case SessionsLoadedMsg:
		a.sessions = msg.Sessions
		a.selected = 0
		a.overlay = overlaySessions
		return a, nil

	case SessionOpenedMsg:
		a.session = msg.Session
		a.overlay = overlayNone
		a.lastError = ""
		a.notice = ""
		a.deps.Controller.Open(msg.Session.ID)
		return a, a.rememberCmd(msg.Session)

	case StatusMsg:
		a.notice = msg.Text
		return a, nil

	case ErrorMsg:
		a.lastError = msg.Err.Error()
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	a.chatView, cmd = a.chatView.Update(msg)
	cmds = append(cmds, cmd)

	return a, tea.Batch(cmds...)
}

// handleKey 处理全局快捷键；返回 handled=false 时按键交给输入框。
// handleKey processes global shortcuts; unhandled keys fall through to
// the text input.
func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	// Approval decisions take priority over everything but quit.
	if p := a.transcript.Approval; p != nil && a.input.Value() == "" {
		switch msg.String() {
		case "y", "Y":
			return a, a.resolveApprovalCmd(*p, true), true
		case "n", "N":
			return a, a.resolveApprovalCmd(*p, false), true
		}
	}

	if a.overlay == overlaySessions {
		return a.handleSessionsKey(msg)
	}

	switch {
	case key.Matches(msg, a.keys.Quit):
		// 流式输出时先中断，再按一次才退出。
		// While streaming, first press aborts; next press quits.
		if a.transcript.Streaming() && a.session.ID != "" {
			return a, a.abortCmd(), true
		}
		return a, tea.Quit, true

	case key.Matches(msg, a.keys.Cancel):
		if a.overlay != overlayNone {
			a.overlay = overlayNone
			return a, nil, true
		}
		return a, nil, false

	case key.Matches(msg, a.keys.NewSession):
		return a, a.createSessionCmd(""), true

	case key.Matches(msg, a.keys.Sessions):
		return a, a.loadSessionsCmd(), true

	case key.Matches(msg, a.keys.ClearScreen):
		a.deps.Controller.Dispatch(transcript.Clear{})
		return a, nil, true

	case key.Matches(msg, a.keys.Submit):
		value := strings.TrimSpace(a.input.Value())
		if value == "" {
			return a, nil, true
		}
		a.input.Reset()
		if strings.HasPrefix(value, "/") {
			return a.handleCommand(value)
		}
		return a.submit(value)
	}

	return a, nil, false
}

func (a App) handleSessionsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "up", "k":
		if a.selected > 0 {
			a.selected--
		}
		return a, nil, true
	case "down", "j":
		if a.selected < len(a.sessions)-1 {
			a.selected++
		}
		return a, nil, true
	case "enter":
		if a.selected < len(a.sessions) {
			s := a.sessions[a.selected]
			a.overlay = overlayNone
			return a, func() tea.Msg { return SessionOpenedMsg{Session: s} }, true
		}
		return a, nil, true
	case "d":
		if a.selected < len(a.sessions) {
			s := a.sessions[a.selected]
			return a, a.deleteSessionCmd(s.ID), true
		}
		return a, nil, true
	case "esc", "ctrl+c", "q":
		a.overlay = overlayNone
		return a, nil, true
	}
	return a, nil, true
}

// handleCommand 解析并执行斜杠命令。
// handleCommand parses and executes a slash command.
func (a App) handleCommand(line string) (tea.Model, tea.Cmd, bool) {
	name, arg := splitCommand(line)
	switch name {
	case "/sessions":
		return a, a.loadSessionsCmd(), true

	case "/new":
		return a, a.createSessionCmd(arg), true

	case "/delete":
		if a.session.ID == "" {
			a.lastError = "no active session"
			return a, nil, true
		}
		return a, a.deleteSessionCmd(a.session.ID), true

	case "/model", "/provider", "/agent":
		if arg == "" {
			a.lastError = fmt.Sprintf("usage: %s <name>", name)
			return a, nil, true
		}
		req := api.UpdateSessionRequest{}
		switch name {
		case "/model":
			req.Model = arg
		case "/provider":
			req.Provider = arg
		case "/agent":
			req.Agent = arg
		}
		return a, a.updateSessionCmd(req), true

	case "/stop":
		if a.session.ID == "" {
			return a, nil, true
		}
		return a, a.abortCmd(), true

	case "/compact":
		// The server interprets a literal "/compact" message as a
		// summarize-and-prune request; no optimistic echo locally.
		if a.session.ID == "" {
			a.lastError = "no active session"
			return a, nil, true
		}
		return a, a.sendRawCmd("/compact"), true

	case "/export":
		return a, a.exportCmd(arg), true

	case "/clear":
		a.deps.Controller.Dispatch(transcript.Clear{})
		return a, nil, true

	case "/help":
		a.overlay = overlayHelp
		return a, nil, true

	case "/quit", "/exit":
		return a, tea.Quit, true
	}

	a.lastError = fmt.Sprintf("unknown command %s", name)
	return a, nil, true
}

// submit 乐观地把用户消息写入本地快照，再异步提交服务端。
// submit dispatches an optimistic user message locally, then posts it to
// the server in the background.
func (a App) submit(content string) (tea.Model, tea.Cmd, bool) {
	if a.session.ID == "" {
		a.lastError = "no active session — ctrl+n to create one"
		return a, nil, true
	}
	id := fmt.Sprintf("%s%d", transcript.OptimisticPrefix, time.Now().UnixMilli())
	a.deps.Controller.Dispatch(transcript.AddOptimisticUser{
		ID:        id,
		SessionID: a.session.ID,
		Text:      content,
	})
	a.lastError = ""
	sessionID := a.session.ID
	client := a.deps.Client
	return a, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := client.SendMessage(ctx, sessionID, api.SendMessageRequest{Content: content}); err != nil {
			return ErrorMsg{Err: err}
		}
		return nil
	}, true
}

// --- Commands ---

// sendRawCmd posts content without the optimistic local echo, for
// server-interpreted command messages.
func (a App) sendRawCmd(content string) tea.Cmd {
	client := a.deps.Client
	sessionID := a.session.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := client.SendMessage(ctx, sessionID, api.SendMessageRequest{Content: content}); err != nil {
			return ErrorMsg{Err: err}
		}
		return StatusMsg{Text: "compacting context"}
	}
}

func (a App) loadSessionsCmd() tea.Cmd {
	client := a.deps.Client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		sessions, err := client.ListSessions(ctx)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return SessionsLoadedMsg{Sessions: sessions}
	}
}

func (a App) createSessionCmd(title string) tea.Cmd {
	client := a.deps.Client
	req := api.CreateSessionRequest{
		Agent:    a.deps.Config.Session.Agent,
		Provider: a.deps.Config.Session.Provider,
		Model:    a.deps.Config.Session.Model,
		Title:    title,
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s, err := client.CreateSession(ctx, req)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return SessionOpenedMsg{Session: s}
	}
}

func (a App) updateSessionCmd(req api.UpdateSessionRequest) tea.Cmd {
	client := a.deps.Client
	sessionID := a.session.ID
	if sessionID == "" {
		return func() tea.Msg { return ErrorMsg{Err: fmt.Errorf("no active session")} }
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s, err := client.UpdateSession(ctx, sessionID, req)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return SessionOpenedMsg{Session: s}
	}
}

func (a App) deleteSessionCmd(sessionID string) tea.Cmd {
	client := a.deps.Client
	controller := a.deps.Controller
	recents := a.deps.Recents
	serverURL := a.deps.Client.BaseURL()
	active := a.session.ID == sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := client.DeleteSession(ctx, sessionID); err != nil {
			return ErrorMsg{Err: err}
		}
		if recents != nil {
			_ = recents.Forget(serverURL, sessionID)
		}
		if active {
			controller.Close()
		}
		return StatusMsg{Text: "session deleted"}
	}
}

func (a App) abortCmd() tea.Cmd {
	client := a.deps.Client
	sessionID := a.session.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := client.AbortSession(ctx, sessionID); err != nil {
			return ErrorMsg{Err: err}
		}
		return StatusMsg{Text: "generation aborted"}
	}
}

func (a App) resolveApprovalCmd(pending transcript.PendingApproval, approved bool) tea.Cmd {
	gate := a.deps.Gate
	sessionID := a.session.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := gate.Resolve(ctx, sessionID, pending, approved); err != nil {
			return ErrorMsg{Err: err}
		}
		verdict := "rejected"
		if approved {
			verdict = "approved"
		}
		return StatusMsg{Text: fmt.Sprintf("%s %s", pending.ToolName, verdict)}
	}
}

func (a App) exportCmd(path string) tea.Cmd {
	if a.session.ID == "" {
		return func() tea.Msg { return ErrorMsg{Err: fmt.Errorf("no active session")} }
	}
	if path == "" {
		path = fmt.Sprintf("session-%s.md", a.session.ID)
	}
	doc := export.NewDocument(a.session, a.transcript)
	return func() tea.Msg {
		exp, err := export.ForPath(path)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		f, err := os.Create(path)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		defer f.Close()
		if err := exp.Export(doc, f); err != nil {
			return ErrorMsg{Err: err}
		}
		return StatusMsg{Text: "exported to " + path}
	}
}

// rememberCmd 把打开的会话写入本地最近记录。
// rememberCmd records the opened session in the local recents store.
func (a App) rememberCmd(s api.Session) tea.Cmd {
	recents := a.deps.Recents
	if recents == nil {
		return nil
	}
	serverURL := a.deps.Client.BaseURL()
	logger := a.deps.Logger
	return func() tea.Msg {
		err := recents.Touch(storage.RecentSession{
			ServerURL: serverURL,
			SessionID: s.ID,
			Title:     s.Title,
			Agent:     s.Agent,
			Provider:  s.Provider,
			Model:     s.Model,
		})
		if err != nil {
			logger.Warn("recents update failed", "session", s.ID, "err", err)
		}
		return nil
	}
}

// --- View ---

func (a App) View() string {
	if !a.ready {
		return "Initializing..."
	}

	chat := a.chatView.View()
	inputBox := a.theme.InputStyle.Width(a.width).Render(a.input.View())
	statusBar := a.renderStatusBar(a.width)

	body := lipgloss.JoinVertical(lipgloss.Left, chat, inputBox, statusBar)

	if overlay := a.renderOverlay(); overlay != "" {
		return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, overlay)
	}
	return body
}

func (a App) renderOverlay() string {
	switch {
	case a.transcript.Approval != nil:
		return RenderApprovalPrompt(*a.transcript.Approval, a.theme)
	case a.overlay == overlaySessions:
		return RenderSessionList(a.sessions, a.selected, a.theme)
	case a.overlay == overlayHelp:
		return RenderHelp(a.theme)
	}
	return ""
}

func (a App) renderStatusBar(width int) string {
	segments := []string{}
	if a.session.ID != "" {
		title := a.session.Title
		if title == "" {
			title = a.session.ID
		}
		segments = append(segments, title, a.session.Agent, a.session.Provider+"/"+a.session.Model)
	} else {
		segments = append(segments, "no session")
	}

	if a.transcript.Streaming() {
		label := "streaming"
		if pending := a.transcript.PendingText(); pending != "" {
			label = fmt.Sprintf("streaming · ~%d tok", a.deps.Estimator.Count(pending))
		}
		segments = append(segments, label)
	}

	left := " " + strings.Join(segments, " · ")

	right := a.notice
	if a.lastError != "" {
		right = a.theme.ErrorStyle.Render(a.lastError)
	}
	right += " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return a.theme.StatusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

// --- Internal ---

func (a *App) relayout() {
	inputHeight := 4
	statusHeight := 1
	chatHeight := a.height - inputHeight - statusHeight
	if chatHeight < 3 {
		chatHeight = 3
	}
	a.chatView = viewport.New(a.width, chatHeight)
	a.input.SetWidth(a.width - 2)
}

func (a *App) refreshChat() {
	if a.width == 0 {
		return
	}
	content := RenderTranscript(a.transcript, a.theme, a.width-2, a.deps.Config.UI.Markdown)
	a.chatView.SetContent(content)
	a.chatView.GotoBottom()
}

func splitCommand(line string) (name, arg string) {
	name, arg, _ = strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// Run 启动 TUI，并把控制器回调桥接为 Tea 消息。
// Run starts the TUI and bridges controller callbacks into Tea messages.
func Run(deps Deps, initial *api.Session) error {
	app := NewApp(deps)
	if initial != nil {
		app.session = *initial
	}
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())

	deps.Controller.OnChange(func(t transcript.Transcript) {
		p.Send(SnapshotMsg{Transcript: t})
	})
	deps.Controller.OnDisconnect(func(d stream.Disconnect) {
		p.Send(DisconnectMsg{Disconnect: d})
	})

	if initial != nil {
		deps.Controller.Open(initial.ID)
	}

	_, err := p.Run()
	return err
}
