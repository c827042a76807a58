package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// ErrOverlappingToolCall is returned when a tool call opens while another is
// still being accumulated. The provider decoder never produces this ordering,
// so it ends the exchange.
var ErrOverlappingToolCall = errors.New("tool call started while another is open")

const rawLogPrefix = 200

// ToolCallBlock is a completed tool call. Input is set only when Raw parsed
// as JSON.
type ToolCallBlock struct {
	Name  string
	Raw   string
	Input json.RawMessage
}

// Assembler accumulates the input fragments of a single open tool call.
type Assembler struct {
	logger *slog.Logger
	open   bool
	name   string
	buf    strings.Builder
}

func NewAssembler(logger *slog.Logger) *Assembler {
	return &Assembler{logger: logger}
}

func (a *Assembler) Start(name string) error {
	if a.open {
		return ErrOverlappingToolCall
	}
	a.open = true
	a.name = name
	a.buf.Reset()
	return nil
}

// Append adds a fragment to the open tool call. Fragments arriving with no
// open call are dropped.
func (a *Assembler) Append(fragment string) {
	if !a.open {
		return
	}
	a.buf.WriteString(fragment)
}

// Open reports whether a tool call is being accumulated.
func (a *Assembler) Open() bool {
	return a.open
}

// End closes the open tool call and parses its input. It returns nil when no
// call is open, the input is empty, or the input is not valid JSON.
func (a *Assembler) End() *ToolCallBlock {
	if !a.open {
		return nil
	}
	name, raw := a.name, a.buf.String()
	a.open = false
	a.name = ""
	a.buf.Reset()

	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(raw)); err != nil {
		a.logger.Error("failed to parse tool input",
			"tool", name,
			"error", err,
			"raw_prefix", prefix(raw, rawLogPrefix),
			"raw_len", len(raw),
		)
		return nil
	}
	return &ToolCallBlock{Name: name, Raw: raw, Input: compact.Bytes()}
}

// prefix returns at most n bytes of s without splitting a rune.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
