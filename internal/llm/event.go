package llm

import "fmt"

type EventType int

const (
	EventTextDelta EventType = iota + 1
	EventToolCallStart
	EventToolCallDelta
	EventToolCallEnd
	EventMessageEnd
)

func (t EventType) String() string {
	switch t {
	case EventTextDelta:
		return "text_delta"
	case EventToolCallStart:
		return "tool_call_start"
	case EventToolCallDelta:
		return "tool_call_delta"
	case EventToolCallEnd:
		return "tool_call_end"
	case EventMessageEnd:
		return "message_end"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is the closed set of decoded provider events.
//
//	TextDelta      Text
//	ToolCallStart  Name
//	ToolCallDelta  Fragment
//	ToolCallEnd    -
//	MessageEnd     -
type Event struct {
	Type     EventType
	Text     string
	Name     string
	Fragment string
}

func TextDelta(text string) Event {
	return Event{Type: EventTextDelta, Text: text}
}

func ToolCallStart(name string) Event {
	return Event{Type: EventToolCallStart, Name: name}
}

func ToolCallDelta(fragment string) Event {
	return Event{Type: EventToolCallDelta, Fragment: fragment}
}

func ToolCallEnd() Event {
	return Event{Type: EventToolCallEnd}
}

func MessageEnd() Event {
	return Event{Type: EventMessageEnd}
}
