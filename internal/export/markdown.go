package export

import (
	"fmt"
	"io"
	"time"

	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

// MarkdownExporter exports transcripts in Markdown format.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(doc Document, w io.Writer) error {
	title := doc.Session.Title
	if title == "" {
		title = doc.Session.ID
	}
	_, _ = fmt.Fprintf(w, "# %s\n\n", title)
	if doc.Session.Agent != "" {
		_, _ = fmt.Fprintf(w, "**Agent:** %s  \n", doc.Session.Agent)
	}
	if doc.Session.Model != "" {
		_, _ = fmt.Fprintf(w, "**Model:** %s/%s  \n", doc.Session.Provider, doc.Session.Model)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n---\n\n", len(doc.Messages))

	for i, msg := range doc.Messages {
		stamp := ""
		if msg.CreatedAt != 0 {
			stamp = " (" + msg.CreatedAt.Time().UTC().Format(time.RFC3339) + ")"
		}
		_, _ = fmt.Fprintf(w, "## %s%s\n\n", msg.Role, stamp)
		if msg.Error != "" {
			_, _ = fmt.Fprintf(w, "> error: %s\n\n", msg.Error)
		}

		for _, part := range msg.Parts {
			switch part.Type {
			case transcript.PartText:
				_, _ = fmt.Fprintf(w, "%s\n\n", part.Text())
			case transcript.PartReasoning:
				_, _ = fmt.Fprintf(w, "> %s\n\n", part.Text())
			case transcript.PartToolCall:
				_, _ = fmt.Fprintf(w, "- tool call `%s`", part.ToolName)
				if part.CompletedAt != nil {
					_, _ = io.WriteString(w, " (done)")
				}
				_, _ = io.WriteString(w, "\n\n")
			case transcript.PartToolResult:
				_, _ = fmt.Fprintf(w, "- tool result `%s`\n\n", part.ToolName)
			}
		}

		if i < len(doc.Messages)-1 {
			_, _ = io.WriteString(w, "---\n\n")
		}
	}
	return nil
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}
