package stream

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestDecoderFrames(t *testing.T) {
	input := "event: message.created\n" +
		"data: {\"id\":\"m1\"}\n" +
		"\n" +
		"data: plain\n" +
		"\n" +
		": keepalive\n" +
		"\n" +
		"event: tool.call\r\n" +
		"data: {\"a\":1,\r\n" +
		"data: \"b\":2}\r\n" +
		"\r\n"

	// One-byte reads prove frame boundaries do not depend on how the
	// transport chunks the bytes.
	for name, r := range map[string]io.Reader{
		"whole":    strings.NewReader(input),
		"one-byte": iotest.OneByteReader(strings.NewReader(input)),
	} {
		t.Run(name, func(t *testing.T) {
			d := NewDecoder(r)

			f, err := d.Next()
			if err != nil {
				t.Fatalf("frame 1: %v", err)
			}
			if f.Event != "message.created" || f.Data != `{"id":"m1"}` {
				t.Fatalf("frame 1: %+v", f)
			}

			f, err = d.Next()
			if err != nil {
				t.Fatalf("frame 2: %v", err)
			}
			if f.Event != DefaultEvent || f.Data != "plain" {
				t.Fatalf("frame 2 should default the event name: %+v", f)
			}

			f, err = d.Next()
			if err != nil {
				t.Fatalf("frame 3: %v", err)
			}
			if f.Event != "tool.call" || f.Data != "{\"a\":1,\n\"b\":2}" {
				t.Fatalf("frame 3 should join data lines: %+v", f)
			}

			if _, err := d.Next(); err != io.EOF {
				t.Fatalf("expected EOF, got %v", err)
			}
		})
	}
}

func TestDecoderFlushesUnterminatedFrameAtEOF(t *testing.T) {
	d := NewDecoder(strings.NewReader("event: error\ndata: {}"))
	f, err := d.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Event != "error" || f.Data != "{}" {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestDecoderPropagatesReadError(t *testing.T) {
	d := NewDecoder(iotest.ErrReader(io.ErrUnexpectedEOF))
	if _, err := d.Next(); err == nil {
		t.Fatal("expected read error")
	}
}
