// Package stream turns a provider event stream into client frames and runs a
// single exchange with bounded retries.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/builditusa/scopecast/internal/llm"
	"github.com/builditusa/scopecast/internal/sse"
)

// TokenBatch is the number of buffered characters that triggers a token frame.
const TokenBatch = 50

// Frame is one outbound event, with Data already encoded as JSON.
type Frame struct {
	Name string
	Data json.RawMessage
}

func (f Frame) String() string {
	return fmt.Sprintf("%s %s", f.Name, f.Data)
}

var doneFrame = Frame{Name: sse.FrameDone, Data: json.RawMessage("{}")}

// Machine maps provider events to frames for one attempt. It does no I/O.
type Machine struct {
	logger         *slog.Logger
	toolsRequested bool
	asm            *Assembler

	buf      strings.Builder
	bufRunes int
	full     strings.Builder
	toolCall *ToolCallBlock
	done     bool
}

func NewMachine(toolsRequested bool, logger *slog.Logger) *Machine {
	return &Machine{
		logger:         logger,
		toolsRequested: toolsRequested,
		asm:            NewAssembler(logger),
	}
}

// Step consumes one event. The returned frames must be written in order even
// when err is non-nil.
func (m *Machine) Step(ev llm.Event) ([]Frame, error) {
	if m.done {
		return nil, nil
	}

	switch ev.Type {
	case llm.EventTextDelta:
		m.buf.WriteString(ev.Text)
		m.full.WriteString(ev.Text)
		m.bufRunes += utf8.RuneCountInString(ev.Text)
		if m.bufRunes >= TokenBatch {
			f, err := m.flush()
			if err != nil {
				return nil, err
			}
			return []Frame{f}, nil
		}
		return nil, nil

	case llm.EventToolCallStart:
		return nil, m.asm.Start(ev.Name)

	case llm.EventToolCallDelta:
		m.asm.Append(ev.Fragment)
		return nil, nil

	case llm.EventToolCallEnd:
		var frames []Frame
		if m.bufRunes > 0 {
			f, err := m.flush()
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}
		if block := m.asm.End(); block != nil {
			m.toolCall = block
			frames = append(frames, Frame{Name: sse.FrameMetadata, Data: block.Input})
		}
		return frames, nil

	case llm.EventMessageEnd:
		var frames []Frame
		if m.bufRunes > 0 {
			f, err := m.flush()
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}
		if m.toolsRequested && m.toolCall == nil {
			m.logger.Warn("expected tool call but none received")
		}
		m.done = true
		return append(frames, doneFrame), nil

	default:
		return nil, fmt.Errorf("unknown stream event %s", ev.Type)
	}
}

func (m *Machine) flush() (Frame, error) {
	data, err := sse.Marshal(struct {
		Text string `json:"text"`
	}{m.buf.String()})
	m.buf.Reset()
	m.bufRunes = 0
	if err != nil {
		return Frame{}, fmt.Errorf("marshal token frame: %w", err)
	}
	return Frame{Name: sse.FrameToken, Data: data}, nil
}

// Done reports whether MessageEnd has been seen.
func (m *Machine) Done() bool { return m.done }

// ToolCall returns the parsed tool call retained for this attempt, if any.
func (m *Machine) ToolCall() *ToolCallBlock { return m.toolCall }

// FullText is every text delta seen so far, unbatched.
func (m *Machine) FullText() string { return m.full.String() }
