// Package scope runs the homeowner-facing exchanges: scoping questions,
// estimate generation and photo analysis. Each call builds context, streams
// one exchange to the client and persists what came back.
package scope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/builditusa/scopecast/internal/budget"
	"github.com/builditusa/scopecast/internal/hermes"
	"github.com/builditusa/scopecast/internal/llm"
	"github.com/builditusa/scopecast/internal/prompts"
	"github.com/builditusa/scopecast/internal/schema"
	"github.com/builditusa/scopecast/internal/sse"
	"github.com/builditusa/scopecast/internal/stream"
	"github.com/builditusa/scopecast/internal/tools"
)

// A long session stuck in the middle of the understanding range gets nudged
// toward generating an estimate.
const (
	EscapeHatchInteractions = 8
	EscapeHatchScoreMin     = 60
	EscapeHatchScoreMax     = 80
)

// Interaction types as stored.
const (
	InteractionQuestion = "question"
	InteractionEstimate = "estimate_request"
	InteractionPhoto    = "additional_photo"
)

const StatusEstimateReady = "estimate_ready"

// Client-facing messages for failures after the exchange itself succeeded.
const (
	msgNoEstimate      = "Failed to generate structured estimate. Please try again."
	msgInvalidEstimate = "Generated estimate failed validation. Please try again."
)

var (
	ErrNoEstimate     = errors.New("no structured estimate received")
	ErrMissingProject = errors.New("project id required")
	ErrMissingImage   = errors.New("image data required")
	ErrUnknownType    = errors.New("unknown analysis type")
)

// Interaction is a completed exchange to persist.
type Interaction struct {
	ProjectID  uuid.UUID
	Type       string
	UserInput  *string
	AIResponse string
	Metadata   json.RawMessage
}

// Understanding is the project state carried by a valid update_understanding call.
type Understanding struct {
	Score            int
	Dimensions       budget.Dimensions
	InteractionCount int
}

// Estimate is the stored result of estimate generation.
type Estimate struct {
	ScopeSummary string
	CostEstimate json.RawMessage
}

// Store is the persistence the service needs on top of budget.History.
type Store interface {
	budget.History
	ZipCode(ctx context.Context, projectID uuid.UUID) (*string, error)
	RecordInteraction(ctx context.Context, in Interaction) (uuid.UUID, error)
	UpdateUnderstanding(ctx context.Context, projectID uuid.UUID, u Understanding) error
	SaveEstimate(ctx context.Context, projectID uuid.UUID, e Estimate) error
}

// Runner runs one exchange. *stream.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, req llm.Request, sink io.Writer) stream.Result
}

// Outcome is what a flow reports back to the HTTP layer.
type Outcome struct {
	Result          stream.Result
	Update          *schema.UnderstandingUpdate
	Estimate        *schema.CostEstimate
	SuggestEstimate bool
	// Err is a failure detected after the exchange, already reported to the
	// client as an error frame.
	Err error
}

type Service struct {
	store     Store
	builder   *budget.Builder
	runner    Runner
	publisher hermes.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func New(store Store, runner Runner, publisher hermes.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = hermes.Nop{}
	}
	return &Service{
		store:     store,
		builder:   budget.NewBuilder(store, logger),
		runner:    runner,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Ask streams the answer to one scoping question. Errors are returned only
// when nothing has been written to sink yet.
func (s *Service) Ask(ctx context.Context, projectID uuid.UUID, userInput string, sink io.Writer) (*Outcome, error) {
	bundle, err := s.builder.Build(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	suggest := ShouldSuggestEstimate(bundle.InteractionCount, bundle.UnderstandingScore)
	if suggest {
		bundle.InteractionLog += prompts.EscapeHatchNote
	}

	system, err := prompts.Scoping(bundle)
	if err != nil {
		return nil, err
	}
	req := llm.Request{
		System:   system,
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, userInput)},
		Tools:    []tools.Definition{tools.UpdateUnderstanding},
	}

	s.logger.Info("scoping question",
		"project_id", projectID,
		"understanding", bundle.UnderstandingScore,
		"interactions", bundle.InteractionCount,
		"context_tokens", bundle.EstimatedTokens,
		"suggest_estimate", suggest,
	)

	res := s.runner.Run(ctx, req, sink)
	out := &Outcome{Result: res}

	// Persist even when the client has gone away mid-stream.
	pctx := context.WithoutCancel(ctx)
	if res.Success {
		input := userInput
		s.recordInteraction(pctx, Interaction{
			ProjectID:  projectID,
			Type:       InteractionQuestion,
			UserInput:  &input,
			AIResponse: res.FullText,
			Metadata:   toolMetadata(res.ToolCall),
		})
		out.Update = s.applyUnderstanding(pctx, projectID, bundle.InteractionCount, res.ToolCall)
	}

	if suggest && res.Success {
		out.SuggestEstimate = true
		if err := sse.NewWriter(sink).Metadata(json.RawMessage(`{"suggest_estimate":true}`)); err != nil {
			s.logger.Debug("client gone before suggest_estimate", "error", err)
		}
	}

	s.publishExchange(projectID.String(), InteractionQuestion, res, out.Update)
	return out, nil
}

// Estimate streams the narrative scope and stores the structured estimate.
// An exchange that completes without a generate_estimate call is retried
// once.
func (s *Service) Estimate(ctx context.Context, projectID uuid.UUID, sink io.Writer) (*Outcome, error) {
	bundle, err := s.builder.Build(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	zip, err := s.store.ZipCode(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load zip code: %w", err)
	}
	bundle.ZipCode = zip

	system, err := prompts.Estimate(bundle)
	if err != nil {
		return nil, err
	}
	req := llm.Request{
		System:   system,
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, prompts.EstimateRequest)},
		Tools:    []tools.Definition{tools.GenerateEstimate},
	}

	s.logger.Info("generating estimate",
		"project_id", projectID,
		"understanding", bundle.UnderstandingScore,
		"context_tokens", bundle.EstimatedTokens,
	)

	w := sse.NewWriter(sink)
	res := s.runner.Run(ctx, req, sink)
	out := &Outcome{Result: res}
	if !res.Success {
		s.publishExchange(projectID.String(), InteractionEstimate, res, nil)
		return out, nil
	}

	narrative := res.FullText
	if !isTool(res.ToolCall, tools.NameGenerateEstimate) {
		s.logger.Warn("no estimate tool call received, retrying", "project_id", projectID)
		res = s.runner.Run(ctx, req, sink)
		out.Result = res
		if !res.Success {
			s.publishExchange(projectID.String(), InteractionEstimate, res, nil)
			return out, nil
		}
		if res.FullText != "" {
			narrative = res.FullText
		}
		if !isTool(res.ToolCall, tools.NameGenerateEstimate) {
			s.logger.Error("no estimate tool call after retry", "project_id", projectID)
			out.Err = ErrNoEstimate
			_ = w.Error(msgNoEstimate, true)
			s.publishExchange(projectID.String(), InteractionEstimate, res, nil)
			return out, nil
		}
	}

	estimate, err := decodeEstimate(res.ToolCall.Input)
	if err != nil {
		s.logger.Error("invalid cost estimate", "project_id", projectID, "error", err)
		out.Err = err
		_ = w.Error(msgInvalidEstimate, true)
		s.publishExchange(projectID.String(), InteractionEstimate, res, nil)
		return out, nil
	}
	out.Estimate = estimate

	pctx := context.WithoutCancel(ctx)
	if err := s.store.SaveEstimate(pctx, projectID, Estimate{
		ScopeSummary: narrative,
		CostEstimate: res.ToolCall.Input,
	}); err != nil {
		s.logger.Error("failed to save estimate", "project_id", projectID, "error", err)
	}
	s.recordInteraction(pctx, Interaction{
		ProjectID:  projectID,
		Type:       InteractionEstimate,
		AIResponse: narrative,
		Metadata:   res.ToolCall.Input,
	})

	s.publishExchange(projectID.String(), InteractionEstimate, res, nil)
	if err := s.publisher.Publish(hermes.SubjectEstimateReady, hermes.EstimateReady{
		ProjectID:  projectID.String(),
		TotalLow:   estimate.TotalLow,
		TotalHigh:  estimate.TotalHigh,
		Confidence: estimate.Confidence,
		Timestamp:  s.now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to publish estimate ready", "error", err)
	}
	return out, nil
}

func decodeEstimate(raw json.RawMessage) (*schema.CostEstimate, error) {
	v, err := schema.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode estimate: %w", err)
	}
	if r := schema.ValidateCostEstimate(v); !r.Valid {
		return nil, r.AsError()
	}
	var est schema.CostEstimate
	if err := json.Unmarshal(raw, &est); err != nil {
		return nil, fmt.Errorf("decode estimate: %w", err)
	}
	return &est, nil
}

// applyUnderstanding validates an update_understanding call and stores it.
// Invalid payloads are logged and ignored.
func (s *Service) applyUnderstanding(ctx context.Context, projectID uuid.UUID, interactions int, call *stream.ToolCallBlock) *schema.UnderstandingUpdate {
	if !isTool(call, tools.NameUpdateUnderstanding) {
		return nil
	}
	v, err := schema.Decode(call.Input)
	if err != nil {
		s.logger.Warn("invalid understanding update", "project_id", projectID, "error", err)
		return nil
	}
	if r := schema.ValidateUnderstandingUpdate(v); !r.Valid {
		s.logger.Warn("invalid understanding update", "project_id", projectID, "error", r.Error())
		return nil
	}
	var u schema.UnderstandingUpdate
	if err := json.Unmarshal(call.Input, &u); err != nil {
		s.logger.Warn("invalid understanding update", "project_id", projectID, "error", err)
		return nil
	}

	err = s.store.UpdateUnderstanding(ctx, projectID, Understanding{
		Score:            int(math.Round(u.Understanding)),
		Dimensions:       budget.DimensionsFromMap(u.DimensionsResolved),
		InteractionCount: interactions + 1,
	})
	if err != nil {
		s.logger.Error("failed to update understanding", "project_id", projectID, "error", err)
	}
	return &u
}

func (s *Service) recordInteraction(ctx context.Context, in Interaction) {
	if _, err := s.store.RecordInteraction(ctx, in); err != nil {
		s.logger.Error("failed to record interaction",
			"project_id", in.ProjectID,
			"type", in.Type,
			"error", err,
		)
	}
}

func (s *Service) publishExchange(projectID, kind string, res stream.Result, u *schema.UnderstandingUpdate) {
	evt := hermes.ExchangeCompleted{
		ProjectID: projectID,
		Kind:      kind,
		Success:   res.Success,
		Attempts:  res.Attempts,
		Timestamp: s.now().UTC(),
	}
	if res.ToolCall != nil {
		evt.ToolCall = res.ToolCall.Name
	}
	if u != nil {
		score := int(math.Round(u.Understanding))
		evt.Understanding = &score
	}
	if err := s.publisher.Publish(hermes.SubjectExchangeCompleted, evt); err != nil {
		s.logger.Warn("failed to publish exchange", "kind", kind, "error", err)
	}
}

// ShouldSuggestEstimate reports whether the escape hatch applies.
func ShouldSuggestEstimate(interactions, score int) bool {
	return interactions >= EscapeHatchInteractions &&
		score >= EscapeHatchScoreMin &&
		score <= EscapeHatchScoreMax
}

func isTool(call *stream.ToolCallBlock, name string) bool {
	return call != nil && call.Name == name && len(call.Input) > 0
}

func toolMetadata(call *stream.ToolCallBlock) json.RawMessage {
	if call == nil {
		return json.RawMessage("{}")
	}
	b, err := json.Marshal(struct {
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	}{call.Name, call.Input})
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// MediaType guesses an image media type from a file name. Unknown
// extensions are treated as JPEG.
func MediaType(name string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")) {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
