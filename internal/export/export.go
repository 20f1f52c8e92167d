// Package export writes a transcript snapshot to a file. Read-only over
// the snapshot; formats are markdown, json and yaml.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nitishxyz/agi-sub004/internal/api"
	"github.com/nitishxyz/agi-sub004/internal/transcript"
)

// Document is the exportable view of one session.
type Document struct {
	Session  api.Session          `json:"session" yaml:"session"`
	Messages []transcript.Message `json:"messages" yaml:"messages"`
}

// Exporter defines the interface for all export formats.
type Exporter interface {
	Export(doc Document, w io.Writer) error
	Extension() string
}

// NewExporter creates an exporter based on format name.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: md, json, yaml)", format)
	}
}

// ForPath picks an exporter from a file extension, defaulting to
// markdown when the path has none.
func ForPath(path string) (Exporter, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		ext = "md"
	}
	return NewExporter(ext)
}

// NewDocument pairs a session with a transcript snapshot, materializing
// the render-time part view so exports match what the screen showed.
func NewDocument(session api.Session, t transcript.Transcript) Document {
	msgs := make([]transcript.Message, len(t.Messages))
	for i, m := range t.Messages {
		m.Parts = transcript.VisibleParts(m)
		msgs[i] = m
	}
	return Document{Session: session, Messages: msgs}
}
