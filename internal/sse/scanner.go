// Package sse reads and writes Server-Sent Events: the scanner decodes the
// provider's stream, the writer frames events for the client.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// maxLine bounds a single SSE line; tool input deltas are small but text
// blocks can carry long lines.
const maxLine = 64 * 1024

// Event is a single parsed event.
type Event struct {
	Type string
	Data string
}

// Scanner reads events delimited by blank lines. Multiple data lines are
// joined with "\n"; comments and unknown fields are skipped.
type Scanner struct {
	reader  *bufio.Reader
	current Event
	err     error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, maxLine)}
}

// Next advances to the next event. It returns false at EOF or on error;
// check Err afterwards.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = Event{}

	var (
		eventType string
		data      []string
		hasData   bool
	)

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF && hasData {
				s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
				s.err = io.EOF
				return true
			}
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if ok {
			value = strings.TrimPrefix(value, " ")
		} else {
			field, value = line, ""
		}

		switch field {
		case "event":
			eventType = value
		case "data":
			data = append(data, value)
			hasData = true
		}
	}
}

func (s *Scanner) Event() Event {
	return s.current
}

// Err returns the error that stopped the scanner, or nil on a clean EOF.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
