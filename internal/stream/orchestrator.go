package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/builditusa/scopecast/internal/llm"
	"github.com/builditusa/scopecast/internal/sse"
)

const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = time.Second
)

const genericErrorMessage = "An error occurred while processing your request"

// errSinkClosed marks an attempt that stopped because the client went away.
var errSinkClosed = errors.New("sink closed")

// Result is what the caller gets back after the exchange ends.
type Result struct {
	Success  bool
	ToolCall *ToolCallBlock
	FullText string
	Attempts int
	// Err is the terminal failure. Nil on success.
	Err error
}

// Orchestrator runs one exchange against a Provider and relays frames to a
// sink, retrying transient provider failures from the start.
type Orchestrator struct {
	provider   llm.Provider
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	sleep      func(context.Context, time.Duration) error
	atomic     bool
}

type Option func(*Orchestrator)

func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) { o.maxRetries = n }
}

func WithBaseDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.baseDelay = d }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithAtomic holds each attempt's frames until it ends, so a retried attempt
// never leaves partial text on the client.
func WithAtomic(atomic bool) Option {
	return func(o *Orchestrator) { o.atomic = atomic }
}

func NewOrchestrator(provider llm.Provider, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:   provider,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run performs the exchange described by req, writing frames to sink. A
// successful run ends with exactly one done frame; a failed one ends with
// exactly one error frame, unless the sink itself failed, in which case
// nothing more is written.
func (o *Orchestrator) Run(ctx context.Context, req llm.Request, sink io.Writer) Result {
	w := sse.NewWriter(sink)
	var res Result

	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1
		out := newFrameSink(w, o.atomic)
		m := NewMachine(len(req.Tools) > 0, o.logger)

		err := o.attempt(ctx, req, m, out)
		if err == nil {
			if ferr := out.commit(); ferr != nil {
				return o.silentStop(res, ferr)
			}
			res.Success = true
			res.ToolCall = m.ToolCall()
			res.FullText = m.FullText()
			return res
		}

		if errors.Is(err, errSinkClosed) || ctx.Err() != nil {
			return o.silentStop(res, err)
		}

		transient := llm.IsTransient(err)
		o.logger.Error("provider exchange failed",
			"attempt", attempt+1,
			"transient", transient,
			"error", err,
		)

		if transient && attempt < o.maxRetries {
			delay := o.baseDelay * time.Duration(1<<attempt)
			o.logger.Info("retrying provider exchange",
				"delay", delay,
				"retry", attempt+1,
				"max_retries", o.maxRetries,
			)
			out.discard()
			if serr := o.sleep(ctx, delay); serr != nil {
				return o.silentStop(res, serr)
			}
			continue
		}

		res.Err = err
		if ferr := out.commit(); ferr != nil {
			return o.silentStop(res, ferr)
		}
		if werr := w.Error(errorMessage(err), transient); werr != nil {
			o.logger.Debug("client gone before error frame", "error", werr)
		}
		return res
	}
}

func (o *Orchestrator) attempt(ctx context.Context, req llm.Request, m *Machine, out *frameSink) error {
	es, err := o.provider.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer es.Close()

	for {
		ev, err := es.Next()
		if errors.Is(err, io.EOF) {
			if !m.Done() {
				return llm.ErrStreamTruncated
			}
			return nil
		}
		if err != nil {
			return err
		}

		frames, stepErr := m.Step(ev)
		for _, f := range frames {
			if werr := out.write(f); werr != nil {
				return fmt.Errorf("%w: %v", errSinkClosed, werr)
			}
		}
		if stepErr != nil {
			return stepErr
		}
		if m.Done() {
			return nil
		}
	}
}

func (o *Orchestrator) silentStop(res Result, err error) Result {
	o.logger.Info("client disconnected, stopping exchange", "attempts", res.Attempts, "error", err)
	res.Err = err
	return res
}

func errorMessage(err error) string {
	var perr *llm.ProviderError
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	if err == nil || err.Error() == "" {
		return genericErrorMessage
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// frameSink writes frames straight through, or holds them until commit when
// atomic.
type frameSink struct {
	w       *sse.Writer
	atomic  bool
	pending []Frame
}

func newFrameSink(w *sse.Writer, atomic bool) *frameSink {
	return &frameSink{w: w, atomic: atomic}
}

func (s *frameSink) write(f Frame) error {
	if s.atomic {
		s.pending = append(s.pending, f)
		return nil
	}
	return s.w.Raw(f.Name, f.Data)
}

func (s *frameSink) commit() error {
	for _, f := range s.pending {
		if err := s.w.Raw(f.Name, f.Data); err != nil {
			return err
		}
	}
	s.pending = nil
	return nil
}

func (s *frameSink) discard() {
	s.pending = nil
}
