package repl

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

// ANSI colors for plain-mode output
const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[90m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiCyan   = "\x1b[36m"
)

// printer 把完整快照翻译成只追加的终端输出：每次只打印自上次
// 快照以来新增的文本后缀和新出现的工具行。
// printer turns full transcript snapshots into append-only terminal
// output. It tracks how much of each part it already printed and emits
// only the new suffix, so a snapshot-per-delta feed reads like a live
// stream.
type printer struct {
	out   io.Writer
	color bool

	mu        sync.Mutex
	printed   map[string]int  // part id -> bytes already written
	toolSeen  map[string]bool // part id -> call line printed
	toolDone  map[string]bool // part id -> done line printed
	announced map[string]bool // message id -> header printed
	finished  map[string]bool // message id -> summary printed, skip forever
}

func newPrinter(out io.Writer, color bool) *printer {
	return &printer{
		out:       out,
		color:     color,
		printed:   make(map[string]int),
		toolSeen:  make(map[string]bool),
		toolDone:  make(map[string]bool),
		announced: make(map[string]bool),
		finished:  make(map[string]bool),
	}
}

// Reset forgets all progress, for session switches.
func (p *printer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = make(map[string]int)
	p.toolSeen = make(map[string]bool)
	p.toolDone = make(map[string]bool)
	p.announced = make(map[string]bool)
	p.finished = make(map[string]bool)
}

// Apply prints whatever snap adds over everything printed so far.
// Messages that were already complete when first seen are skipped, so a
// history load or post-completion re-fetch never replays old turns.
func (p *printer) Apply(snap transcript.Transcript) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, msg := range snap.Messages {
		if msg.Role != transcript.RoleAssistant {
			continue
		}
		if p.finished[msg.ID] {
			continue
		}
		if msg.Status != transcript.StatusPending && !p.announced[msg.ID] {
			// Arrived already complete: history, not live output.
			p.finished[msg.ID] = true
			continue
		}

		if !p.announced[msg.ID] {
			p.announced[msg.ID] = true
			fmt.Fprintf(p.out, "\n%s\n", p.style("assistant:", ansiCyan))
		}

		for _, part := range transcript.OrderedParts(msg) {
			p.printPart(part)
		}

		if msg.Status != transcript.StatusPending {
			p.finished[msg.ID] = true
			p.printSummary(msg)
		}
	}
}

func (p *printer) printPart(part transcript.MessagePart) {
	switch part.Type {
	case transcript.PartText:
		text := part.Text()
		if n := p.printed[part.ID]; len(text) > n {
			fmt.Fprint(p.out, text[n:])
			p.printed[part.ID] = len(text)
		}

	case transcript.PartReasoning:
		text := part.Text()
		if n := p.printed[part.ID]; len(text) > n {
			fmt.Fprint(p.out, p.style(text[n:], ansiDim))
			p.printed[part.ID] = len(text)
		}

	case transcript.PartToolCall:
		if !p.toolSeen[part.ID] {
			p.toolSeen[part.ID] = true
			name := part.ToolName
			if name == "" {
				name = "tool"
			}
			fmt.Fprintf(p.out, "\n%s\n", p.style("[tool] "+name, ansiYellow))
		}
		if part.CompletedAt != nil && !p.toolDone[part.ID] {
			p.toolDone[part.ID] = true
			fmt.Fprintf(p.out, "%s\n", p.style("  ✓ done", ansiGreen))
		}
	}
}

func (p *printer) printSummary(msg transcript.Message) {
	fmt.Fprintln(p.out)
	if msg.Error != "" {
		fmt.Fprintf(p.out, "%s\n", p.style("error: "+msg.Error, ansiRed))
		return
	}
	if msg.TotalTokens != nil {
		fmt.Fprintf(p.out, "%s\n", p.style(fmt.Sprintf("(%d tokens)", *msg.TotalTokens), ansiDim))
	}
}

// Notice prints an out-of-band line, e.g. a disconnect or approval
// request, without disturbing delta tracking.
func (p *printer) Notice(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n%s\n", p.style(text, ansiYellow))
}

func (p *printer) style(text, code string) string {
	if !p.color || text == "" {
		return text
	}
	return code + text + ansiReset
}

// History dumps a transcript in full, one block per message. Used by
// /history; live streaming never goes through here.
func (p *printer) History(snap transcript.Transcript) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range snap.Messages {
		role := string(msg.Role)
		fmt.Fprintf(p.out, "\n%s\n", p.style(role+":", ansiCyan))
		for _, part := range transcript.VisibleParts(msg) {
			switch part.Type {
			case transcript.PartText:
				if text := part.Text(); text != "" {
					fmt.Fprintln(p.out, text)
				}
			case transcript.PartReasoning:
				if text := part.Text(); text != "" {
					fmt.Fprintln(p.out, p.style(text, ansiDim))
				}
			case transcript.PartToolCall, transcript.PartToolResult:
				name := part.ToolName
				if name == "" {
					name = "tool"
				}
				fmt.Fprintln(p.out, p.style("[tool] "+name, ansiYellow))
			}
		}
		if msg.Error != "" {
			fmt.Fprintln(p.out, p.style("error: "+msg.Error, ansiRed))
		}
	}
	fmt.Fprintln(p.out)
}

func trimOneLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}
