package channel

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// MaxLineSize bounds one line of the stream. A longer line fails the
// connection.
const MaxLineSize = 1 << 20

// message is one dispatched server-sent event.
type message struct {
	ID    string
	Event string
	Data  string
}

// streamReader decodes the text/event-stream format.
type streamReader struct {
	scanner *bufio.Scanner
	// skipLF drops the LF of a CRLF pair split across reads.
	skipLF bool
	// onLine runs for every line read, comments included.
	onLine func()
	// lastID persists across messages as the event stream format requires.
	lastID string
}

func newStreamReader(r io.Reader, lastID string, onLine func()) *streamReader {
	if onLine == nil {
		onLine = func() {}
	}
	s := &streamReader{
		scanner: bufio.NewScanner(r),
		onLine:  onLine,
		lastID:  lastID,
	}
	s.scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	s.scanner.Split(s.splitLines)
	return s
}

// splitLines ends a line at CRLF, LF or a lone CR. A CR is a line end on
// its own, so a following LF is skipped when it arrives.
func (s *streamReader) splitLines(data []byte, atEOF bool) (int, []byte, error) {
	start := 0
	if s.skipLF && len(data) > 0 {
		s.skipLF = false
		if data[0] == '\n' {
			start = 1
		}
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		end := start + i
		s.skipLF = data[end] == '\r'
		return end + 1, data[start:end], nil
	}
	// an unterminated line at EOF is dropped
	return start, nil, nil
}

// next blocks until a complete message is read. Messages without data are
// not returned, but their id still updates lastID.
func (s *streamReader) next() (message, error) {
	var (
		eventName string
		data      strings.Builder
		hasData   bool
	)

	for {
		if !s.scanner.Scan() {
			// a partial message at EOF is discarded
			if err := s.scanner.Err(); err != nil {
				return message{}, fmt.Errorf("event stream: %w", err)
			}
			return message{}, io.EOF
		}
		s.onLine()

		line := s.scanner.Text()

		// Empty line = event complete
		if line == "" {
			if !hasData {
				eventName = ""
				continue
			}
			return message{ID: s.lastID, Event: eventName, Data: data.String()}, nil
		}

		// Comment (heartbeat)
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			eventName = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.lastID = value
			}
		}
	}
}
