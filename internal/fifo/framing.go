package fifo

import (
	"bytes"
	"fmt"
	"strings"
)

// Framing selects how the byte stream is cut into commands.
type Framing int

const (
	// FramingRead dispatches each read as one command. Writes larger than
	// the buffer arrive as several commands.
	FramingRead Framing = iota
	// FramingLine dispatches newline-terminated lines without the newline.
	// A line longer than the buffer is dispatched in buffer-sized pieces and
	// a trailing partial line is flushed when the writer disconnects.
	FramingLine
)

func (f Framing) String() string {
	if f == FramingLine {
		return "line"
	}
	return "read"
}

// ParseFraming converts a configuration value into a Framing.
func ParseFraming(value string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "read":
		return FramingRead, nil
	case "line":
		return FramingLine, nil
	default:
		return FramingRead, fmt.Errorf("unknown framing %q", value)
	}
}

// emitFunc dispatches one unit and reports whether serving must stop.
type emitFunc func(unit []byte) (stop bool)

type framer interface {
	feed(chunk []byte, emit emitFunc) bool
	flush(emit emitFunc) bool
}

func newFramer(f Framing, size int) framer {
	if f == FramingLine {
		return &lineFramer{pending: make([]byte, 0, size), limit: size}
	}
	return readFramer{}
}

type readFramer struct{}

func (readFramer) feed(chunk []byte, emit emitFunc) bool {
	return emit(chunk)
}

func (readFramer) flush(emitFunc) bool { return false }

type lineFramer struct {
	pending []byte
	limit   int
}

func (l *lineFramer) feed(chunk []byte, emit emitFunc) bool {
	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		segment := chunk
		if idx >= 0 {
			segment = chunk[:idx]
		}
		for len(segment) > 0 {
			room := l.limit - len(l.pending)
			take := min(room, len(segment))
			l.pending = append(l.pending, segment[:take]...)
			segment = segment[take:]
			if len(l.pending) == l.limit {
				if l.emitPending(emit) {
					return true
				}
			}
		}
		if idx < 0 {
			return false
		}
		if l.emitPending(emit) {
			return true
		}
		chunk = chunk[idx+1:]
	}
	return false
}

func (l *lineFramer) flush(emit emitFunc) bool {
	return l.emitPending(emit)
}

func (l *lineFramer) emitPending(emit emitFunc) bool {
	if len(l.pending) == 0 {
		return false
	}
	stop := emit(l.pending)
	l.pending = l.pending[:0]
	return stop
}
