// Package streaming implements the Streaming Coordinator: SSE frame
// parsing, per-provider chunk decoding, callback-driven backpressure, and
// mid-stream recovery, grounded on the teacher's internal/streaming
// package.
package streaming

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

const defaultScanBufferSize = 4096

var lineBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, defaultScanBufferSize)
		return &buf
	},
}

// Frame is one parsed SSE event: a blank-line-terminated group of
// `field: value` lines, with `data:` lines concatenated by "\n".
type Frame struct {
	// Data is the concatenation of every data: line's payload, joined by
	// "\n".
	Data []byte
	// Event is the last event: value seen in the frame, if any — an
	// opaque hint.
	Event string
}

// Scanner reads an SSE byte stream and yields Frames. It never reorders
// frames: chunks are delivered in the exact order they arrive on the wire.
type Scanner struct {
	sc  *bufio.Scanner
	buf *[]byte
}

// NewScanner wraps r for frame-at-a-time SSE parsing.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	buf := lineBufferPool.Get().(*[]byte)
	sc.Buffer(*buf, defaultScanBufferSize*16)
	return &Scanner{sc: sc, buf: buf}
}

// Close returns the Scanner's line buffer to the pool.
func (s *Scanner) Close() {
	lineBufferPool.Put(s.buf)
}

// Next reads the next frame. It returns (nil, io.EOF) once the underlying
// reader is exhausted with no partial frame pending.
func (s *Scanner) Next() (*Frame, error) {
	var dataLines [][]byte
	var event string
	sawAnyLine := false

	for s.sc.Scan() {
		line := s.sc.Bytes()
		sawAnyLine = true

		if len(bytes.TrimSpace(line)) == 0 {
			// Blank line terminates the frame.
			if len(dataLines) == 0 && event == "" {
				// A blank line with no preceding fields is just
				// keep-alive whitespace; keep scanning.
				sawAnyLine = false
				continue
			}
			return &Frame{Data: bytes.Join(dataLines, []byte("\n")), Event: event}, nil
		}

		if line[0] == ':' {
			// Comment line, skipped.
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			cp := make([]byte, len(value))
			copy(cp, value)
			dataLines = append(dataLines, cp)
		case "event":
			event = string(value)
		default:
			// Unrecognized fields (id:, retry:, ...) are ignored; the
			// contract only names data: and event: as meaningful.
		}
	}

	if err := s.sc.Err(); err != nil {
		return nil, err
	}

	if sawAnyLine && (len(dataLines) > 0 || event != "") {
		// Stream ended without a trailing blank line; flush the partial
		// frame rather than dropping it.
		return &Frame{Data: bytes.Join(dataLines, []byte("\n")), Event: event}, nil
	}
	return nil, io.EOF
}

// splitField parses a `field: value` or `field:value` line.
func splitField(line []byte) (field string, value []byte) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), nil
	}
	field = string(line[:i])
	value = line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}

// IsDone reports whether a frame's data payload is the provider-agnostic
// `[DONE]` sentinel.
func IsDone(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]"))
}
