package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Frame names understood by the client.
const (
	FrameToken    = "token"
	FrameMetadata = "metadata"
	FrameDone     = "done"
	FrameError    = "error"
)

type flusher interface {
	Flush()
}

// Writer frames events as "event: <name>\ndata: <json>\n\n". After the first
// failed write every later write is a no-op returning the same error, so a
// closed client connection never surfaces twice.
type Writer struct {
	w   io.Writer
	f   flusher
	err error
}

func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(flusher); ok {
		sw.f = f
	}
	return sw
}

// Raw writes a frame whose data is already encoded JSON.
func (w *Writer) Raw(name string, data []byte) error {
	if w.err != nil {
		return w.err
	}

	var buf bytes.Buffer
	buf.Grow(len(name) + len(data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(name)
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		w.err = fmt.Errorf("write %s frame: %w", name, err)
		return w.err
	}
	if w.f != nil {
		w.f.Flush()
	}
	return nil
}

// Event encodes data as JSON and writes it as a frame.
func (w *Writer) Event(name string, data any) error {
	if w.err != nil {
		return w.err
	}
	raw, err := Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", name, err)
	}
	return w.Raw(name, raw)
}

func (w *Writer) Token(text string) error {
	return w.Event(FrameToken, struct {
		Text string `json:"text"`
	}{text})
}

func (w *Writer) Metadata(payload json.RawMessage) error {
	return w.Raw(FrameMetadata, payload)
}

func (w *Writer) Done() error {
	return w.Raw(FrameDone, []byte("{}"))
}

func (w *Writer) Error(message string, retryable bool) error {
	return w.Event(FrameError, struct {
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	}{message, retryable})
}

// Err reports the first write failure, if any.
func (w *Writer) Err() error {
	return w.err
}

// Marshal encodes v as compact JSON without HTML escaping, matching what
// browsers' JSON.stringify produces.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
