// Package llm defines the provider-neutral request and event types shared by
// the provider client and the stream orchestrator.
package llm

import (
	"context"

	"github.com/builditusa/scopecast/internal/tools"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one piece of message content: either text or a base64 image.
type Part struct {
	Type      PartType
	Text      string
	MediaType string
	Data      string
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ImagePart(mediaType, base64Data string) Part {
	return Part{Type: PartImage, MediaType: mediaType, Data: base64Data}
}

type Message struct {
	Role    Role
	Content []Part
}

// NewTextMessage builds a message whose content is a single text part.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []Part{TextPart(text)}}
}

// Request is one conversational exchange. It is not modified after construction.
type Request struct {
	System    string
	Messages  []Message
	Tools     []tools.Definition
	MaxTokens int
}

// Provider opens a streaming exchange.
type Provider interface {
	Stream(ctx context.Context, req Request) (EventStream, error)
}

// Completer runs a non-streaming exchange and returns the text response.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// EventStream yields decoded events. Next returns io.EOF once the provider
// body is exhausted. Close must always be called.
type EventStream interface {
	Next() (Event, error)
	Close() error
}
