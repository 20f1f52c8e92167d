// Package repl is the plain line-mode client: a readline prompt in,
// streamed transcript output out. It consumes the same controller
// snapshots as the TUI, rendered incrementally instead of redrawn.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chzyer/readline"

	"github.com/nitishxyz/agi-sub004/internal/api"
	"github.com/nitishxyz/agi-sub004/internal/approval"
	"github.com/nitishxyz/agi-sub004/internal/config"
	"github.com/nitishxyz/agi-sub004/internal/export"
	"github.com/nitishxyz/agi-sub004/internal/storage"
	"github.com/nitishxyz/agi-sub004/internal/stream"
	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

const requestTimeout = 15 * time.Second

// Deps bundles what the loop needs. Recents may be nil.
type Deps struct {
	Client     *api.Client
	Controller *stream.Controller
	Gate       *approval.Gate
	Recents    *storage.RecentStore
	Logger     *log.Logger
	Config     config.Config
}

// REPL 行式客户端主循环。
// REPL is the line-mode client loop.
type REPL struct {
	deps    Deps
	input   lineInput
	out     io.Writer
	printer *printer

	session  api.Session
	sessions []api.Session // last /sessions listing, for /open <n>
}

// New builds a REPL. historyPath may be empty to disable persistent
// input history.
func New(deps Deps, historyPath string) (*REPL, error) {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	input, err := newLineInput(historyPath)
	if err != nil {
		deps.Logger.Warn("readline unavailable, using basic input", "err", err)
	}
	out := os.Stdout
	return &REPL{
		deps:    deps,
		input:   input,
		out:     out,
		printer: newPrinter(out, useColor()),
	}, nil
}

// Run wires controller callbacks into the printer and loops on input
// until /quit, Ctrl+D, or a fatal read error.
func (r *REPL) Run(initial *api.Session) error {
	defer r.input.Close()

	r.deps.Controller.OnChange(func(t transcript.Transcript) {
		r.printer.Apply(t)
		if t.Approval != nil {
			r.printer.Notice(fmt.Sprintf(
				"approval required: %s %s — /approve or /deny",
				t.Approval.ToolName,
				trimOneLine(string(t.Approval.Args), 80),
			))
		}
	})
	r.deps.Controller.OnDisconnect(func(d stream.Disconnect) {
		r.printer.Notice(fmt.Sprintf("connection lost (%s) — /open to resubscribe", d.SessionID))
	})

	if initial != nil {
		r.openSession(*initial)
	}

	for {
		line, err := r.input.ReadLine(r.prompt())
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.runCommand(line)
			if err != nil {
				r.printError(err)
			}
			if quit {
				return nil
			}
			continue
		}
		if err := r.send(line); err != nil {
			r.printError(err)
		}
	}
}

func (r *REPL) prompt() string {
	if r.session.ID == "" {
		return "(no session)> "
	}
	label := r.session.Title
	if label == "" {
		label = r.session.ID
	}
	return fmt.Sprintf("[%s · %s] > ", label, r.session.Model)
}

// send 乐观写入本地，再提交服务端。
// send dispatches the optimistic user message, then posts it.
func (r *REPL) send(content string) error {
	if r.session.ID == "" {
		return fmt.Errorf("no active session, use /new or /sessions")
	}
	id := fmt.Sprintf("%s%d", transcript.OptimisticPrefix, time.Now().UnixMilli())
	r.deps.Controller.Dispatch(transcript.AddOptimisticUser{
		ID:        id,
		SessionID: r.session.ID,
		Text:      content,
	})

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := r.deps.Client.SendMessage(ctx, r.session.ID, api.SendMessageRequest{Content: content}); err != nil {
		return err
	}
	return nil
}

func (r *REPL) runCommand(line string) (quit bool, err error) {
	name, arg := splitCommand(line)
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		r.printHelp()
		return false, nil

	case "/sessions":
		sessions, err := r.deps.Client.ListSessions(ctx)
		if err != nil {
			return false, err
		}
		r.sessions = sessions
		if len(sessions) == 0 {
			fmt.Fprintln(r.out, "no sessions")
			return false, nil
		}
		for i, s := range sessions {
			title := s.Title
			if title == "" {
				title = s.ID
			}
			marker := " "
			if s.ID == r.session.ID {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %2d. %s  (%s/%s)\n", marker, i+1, title, s.Provider, s.Model)
		}
		return false, nil

	case "/open":
		s, err := r.resolveSession(ctx, arg)
		if err != nil {
			return false, err
		}
		r.openSession(s)
		return false, nil

	case "/new":
		s, err := r.deps.Client.CreateSession(ctx, api.CreateSessionRequest{
			Agent:    r.deps.Config.Session.Agent,
			Provider: r.deps.Config.Session.Provider,
			Model:    r.deps.Config.Session.Model,
			Title:    arg,
		})
		if err != nil {
			return false, err
		}
		r.openSession(s)
		return false, nil

	case "/delete":
		if r.session.ID == "" {
			return false, fmt.Errorf("no active session")
		}
		if err := r.deps.Client.DeleteSession(ctx, r.session.ID); err != nil {
			return false, err
		}
		if r.deps.Recents != nil {
			_ = r.deps.Recents.Forget(r.deps.Client.BaseURL(), r.session.ID)
		}
		r.deps.Controller.Close()
		r.session = api.Session{}
		fmt.Fprintln(r.out, "session deleted")
		return false, nil

	case "/model", "/provider", "/agent":
		if arg == "" {
			return false, fmt.Errorf("usage: %s <name>", name)
		}
		if r.session.ID == "" {
			return false, fmt.Errorf("no active session")
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
		s, err := r.deps.Client.UpdateSession(ctx, r.session.ID, req)
		if err != nil {
			return false, err
		}
		r.session = s
		fmt.Fprintf(r.out, "session updated: %s/%s agent=%s\n", s.Provider, s.Model, s.Agent)
		return false, nil

	case "/stop":
		if r.session.ID == "" {
			return false, fmt.Errorf("no active session")
		}
		return false, r.deps.Client.AbortSession(ctx, r.session.ID)

	case "/compact":
		// Server-interpreted command message; no optimistic echo.
		if r.session.ID == "" {
			return false, fmt.Errorf("no active session")
		}
		_, err := r.deps.Client.SendMessage(ctx, r.session.ID, api.SendMessageRequest{Content: "/compact"})
		return false, err

	case "/approve", "/deny":
		snap := r.deps.Controller.Snapshot()
		if snap.Approval == nil {
			return false, fmt.Errorf("nothing pending approval")
		}
		approved := name == "/approve"
		if err := r.deps.Gate.Resolve(ctx, r.session.ID, *snap.Approval, approved); err != nil {
			return false, err
		}
		verdict := "denied"
		if approved {
			verdict = "approved"
		}
		fmt.Fprintf(r.out, "%s %s\n", snap.Approval.ToolName, verdict)
		return false, nil

	case "/history":
		r.printer.History(r.deps.Controller.Snapshot())
		return false, nil

	case "/export":
		return false, r.export(arg)

	case "/clear":
		r.deps.Controller.Dispatch(transcript.Clear{})
		r.printer.Reset()
		fmt.Fprintln(r.out, "cleared")
		return false, nil
	}

	return false, fmt.Errorf("unknown command %s, try /help", name)
}

// resolveSession accepts a 1-based index into the last /sessions
// listing, or a raw session id.
func (r *REPL) resolveSession(ctx context.Context, arg string) (api.Session, error) {
	if arg == "" {
		return api.Session{}, fmt.Errorf("usage: /open <number|id>")
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(r.sessions) {
			return api.Session{}, fmt.Errorf("no session %d, run /sessions first", n)
		}
		return r.sessions[n-1], nil
	}
	sessions, err := r.deps.Client.ListSessions(ctx)
	if err != nil {
		return api.Session{}, err
	}
	for _, s := range sessions {
		if s.ID == arg {
			return s, nil
		}
	}
	return api.Session{}, fmt.Errorf("session %s not found", arg)
}

func (r *REPL) openSession(s api.Session) {
	r.session = s
	r.printer.Reset()
	r.deps.Controller.Open(s.ID)

	title := s.Title
	if title == "" {
		title = s.ID
	}
	fmt.Fprintf(r.out, "opened %s (%s/%s)\n", title, s.Provider, s.Model)

	if r.deps.Recents != nil {
		err := r.deps.Recents.Touch(storage.RecentSession{
			ServerURL: r.deps.Client.BaseURL(),
			SessionID: s.ID,
			Title:     s.Title,
			Agent:     s.Agent,
			Provider:  s.Provider,
			Model:     s.Model,
		})
		if err != nil {
			r.deps.Logger.Warn("recents update failed", "session", s.ID, "err", err)
		}
	}
}

func (r *REPL) export(path string) error {
	if r.session.ID == "" {
		return fmt.Errorf("no active session")
	}
	if path == "" {
		path = fmt.Sprintf("session-%s.md", r.session.ID)
	}
	exp, err := export.ForPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	doc := export.NewDocument(r.session, r.deps.Controller.Snapshot())
	if err := exp.Export(doc, f); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "exported to %s\n", path)
	return nil
}

func (r *REPL) printError(err error) {
	fmt.Fprintf(r.out, "%s\n", r.printer.style("error: "+err.Error(), ansiRed))
}

func (r *REPL) printHelp() {
	for _, cmd := range []string{
		"/sessions          list sessions",
		"/open <n|id>       open a session",
		"/new [title]       create a session",
		"/delete            delete the active session",
		"/model <name>      switch model",
		"/provider <name>   switch provider",
		"/agent <name>      switch agent",
		"/stop              abort the running generation",
		"/compact           ask the server to summarize old context",
		"/approve | /deny   resolve the pending tool approval",
		"/history           print the full transcript",
		"/export [path]     export transcript (md, json, yaml)",
		"/clear             clear local state",
		"/quit              exit",
	} {
		fmt.Fprintf(r.out, "  %s\n", cmd)
	}
}

func splitCommand(line string) (name, arg string) {
	name, arg, _ = strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

func useColor() bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("AGI_NO_COLOR")) != "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(os.Getenv("TERM"))) != "dumb"
}
