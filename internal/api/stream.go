package api

import "net/http"

// eventStream defers the SSE response headers until the first write, so a
// handler can still answer with a JSON error if nothing was streamed.
type eventStream struct {
	w       http.ResponseWriter
	started bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w}
}

func (e *eventStream) Write(p []byte) (int, error) {
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}
	return e.w.Write(p)
}

func (e *eventStream) Flush() {
	if f, ok := e.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (e *eventStream) Started() bool {
	return e.started
}
