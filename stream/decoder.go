// Client-side SSE decoder.

package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrTransport reports a stream that ended without a terminal event.
// Consumers must surface it as a connection failure, distinct from a
// server-reported error event.
var ErrTransport = errors.New("stream ended without terminal event")

// Decoder reads events from an SSE stream in arrival order.
type Decoder struct {
	scanner  *bufio.Scanner
	terminal bool
}

// NewDecoder creates a decoder over the given stream body.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: scanner}
}

// Next returns the next event. After a terminal event it returns io.EOF.
// If the underlying stream ends before a terminal event was seen, Next
// returns ErrTransport.
func (d *Decoder) Next() (Event, error) {
	if d.terminal {
		return Event{}, io.EOF
	}

	var name string
	var data strings.Builder
	sawData := false

	for d.scanner.Scan() {
		line := d.scanner.Text()

		switch {
		case line == "":
			// Blank line dispatches the pending event, if any.
			if name == "" && !sawData {
				continue
			}
			ev := Event{Name: name, Data: []byte(data.String())}
			if ev.Terminal() {
				d.terminal = true
			}
			return ev, nil
		case strings.HasPrefix(line, ":"):
			// Comment (keep-alive heartbeat); ignore.
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if sawData {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			sawData = true
		}
	}

	if err := d.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return Event{}, ErrTransport
}
