package anthropic

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/builditusa/scopecast/internal/llm"
	"github.com/builditusa/scopecast/internal/sse"
)

// eventStream decodes the Messages API event stream into llm events.
// Only text and tool_use blocks produce events; message_start, message_delta,
// ping and unknown event types are skipped.
type eventStream struct {
	body    io.ReadCloser
	scanner *sse.Scanner
	blocks  map[int]string
	done    bool
}

func newEventStream(body io.ReadCloser) *eventStream {
	return &eventStream{
		body:    body,
		scanner: sse.NewScanner(body),
		blocks:  make(map[int]string),
	}
}

func (s *eventStream) Close() error {
	return s.body.Close()
}

func (s *eventStream) Next() (llm.Event, error) {
	for {
		if s.done {
			return llm.Event{}, io.EOF
		}
		if !s.scanner.Next() {
			if err := s.scanner.Err(); err != nil {
				return llm.Event{}, fmt.Errorf("read stream: %w", err)
			}
			return llm.Event{}, llm.ErrStreamTruncated
		}

		ev := s.scanner.Event()
		switch ev.Type {
		case "content_block_start":
			var envelope struct {
				Index        int `json:"index"`
				ContentBlock struct {
					Type string `json:"type"`
					Name string `json:"name"`
				} `json:"content_block"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &envelope); err != nil {
				return llm.Event{}, fmt.Errorf("parse content_block_start: %w", err)
			}
			s.blocks[envelope.Index] = envelope.ContentBlock.Type
			if envelope.ContentBlock.Type == "tool_use" {
				return llm.ToolCallStart(envelope.ContentBlock.Name), nil
			}

		case "content_block_delta":
			var envelope struct {
				Index int `json:"index"`
				Delta struct {
					Type        string `json:"type"`
					Text        string `json:"text"`
					PartialJSON string `json:"partial_json"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &envelope); err != nil {
				return llm.Event{}, fmt.Errorf("parse content_block_delta: %w", err)
			}
			switch envelope.Delta.Type {
			case "text_delta":
				return llm.TextDelta(envelope.Delta.Text), nil
			case "input_json_delta":
				return llm.ToolCallDelta(envelope.Delta.PartialJSON), nil
			}

		case "content_block_stop":
			var envelope struct {
				Index int `json:"index"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &envelope); err != nil {
				return llm.Event{}, fmt.Errorf("parse content_block_stop: %w", err)
			}
			blockType := s.blocks[envelope.Index]
			delete(s.blocks, envelope.Index)
			if blockType == "tool_use" {
				return llm.ToolCallEnd(), nil
			}

		case "message_stop":
			s.done = true
			return llm.MessageEnd(), nil

		case "error":
			var envelope errorResponse
			if err := json.Unmarshal([]byte(ev.Data), &envelope); err != nil {
				return llm.Event{}, &llm.ProviderError{
					StatusCode: llm.StatusForErrorType(""),
					Message:    ev.Data,
				}
			}
			return llm.Event{}, &llm.ProviderError{
				StatusCode: llm.StatusForErrorType(envelope.Error.Type),
				Type:       envelope.Error.Type,
				Message:    envelope.Error.Message,
			}
		}
	}
}
