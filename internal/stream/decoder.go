package stream

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DefaultEvent is the SSE event name assumed when a frame carries no
// event: line.
const DefaultEvent = "message"

// Frame is one decoded server-sent event: the event name and the data
// payload (multiple data: lines joined with newlines).
type Frame struct {
	Event string
	Data  string
}

// Decoder incrementally reads SSE frames from a byte stream. A frame is
// terminated by a blank line; bytes for an unterminated frame stay
// buffered until more input arrives. The decoder never interprets the
// payload, so malformed JSON in one frame cannot affect the next.
type Decoder struct {
	reader *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next blocks until a full frame is available and returns it. It returns
// io.EOF once the stream is exhausted; any other error means the
// underlying read failed and the stream is unusable.
func (d *Decoder) Next() (Frame, error) {
	var (
		event     string
		dataLines []string
	)
	flush := func() Frame {
		name := event
		if name == "" {
			name = DefaultEvent
		}
		return Frame{Event: name, Data: strings.Join(dataLines, "\n")}
	}

	for {
		line, err := d.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return Frame{}, fmt.Errorf("read stream: %w", err)
		}

		trimmed := strings.TrimRight(line, "\r\n")
		switch {
		case trimmed == "":
			if len(dataLines) > 0 {
				return flush(), nil
			}
			// Blank line with no pending data: frame separator noise.
			event = ""
		case strings.HasPrefix(trimmed, ":"):
			// Comment / keepalive line.
		case strings.HasPrefix(trimmed, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(trimmed, "event:"))
		case strings.HasPrefix(trimmed, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")))
		}

		if err == io.EOF {
			if len(dataLines) > 0 {
				return flush(), nil
			}
			return Frame{}, io.EOF
		}
	}
}
