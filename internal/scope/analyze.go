package scope

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/builditusa/scopecast/internal/llm"
	"github.com/builditusa/scopecast/internal/prompts"
	"github.com/builditusa/scopecast/internal/tools"
)

type AnalysisType string

const (
	AnalysisInitial    AnalysisType = "initial"
	AnalysisAdditional AnalysisType = "additional"
	AnalysisCorrection AnalysisType = "correction"
)

func ParseAnalysisType(s string) (AnalysisType, error) {
	switch t := AnalysisType(s); t {
	case AnalysisInitial, AnalysisAdditional, AnalysisCorrection:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Photo is an inline image. Data is base64 encoded.
type Photo struct {
	Name string
	Data string
}

type AnalyzeInput struct {
	Type       AnalysisType
	ProjectID  *uuid.UUID
	Photo      Photo
	Correction string
}

// Analyze streams a photo analysis. Additional photos are read against the
// project's context and may update its understanding.
func (s *Service) Analyze(ctx context.Context, in AnalyzeInput, sink io.Writer) (*Outcome, error) {
	if in.Photo.Data == "" {
		return nil, ErrMissingImage
	}
	image := llm.ImagePart(MediaType(in.Photo.Name), in.Photo.Data)

	var (
		req          llm.Request
		interactions int
	)
	switch in.Type {
	case AnalysisInitial:
		req = llm.Request{
			System:   prompts.Initial(),
			Messages: []llm.Message{{Role: llm.RoleUser, Content: []llm.Part{image, llm.TextPart(prompts.InitialQuestion)}}},
		}

	case AnalysisCorrection:
		if in.ProjectID == nil {
			return nil, ErrMissingProject
		}
		req = llm.Request{
			System:   prompts.Initial(),
			Messages: []llm.Message{{Role: llm.RoleUser, Content: []llm.Part{image, llm.TextPart(prompts.CorrectionQuestion(in.Correction))}}},
		}

	case AnalysisAdditional:
		if in.ProjectID == nil {
			return nil, ErrMissingProject
		}
		bundle, err := s.builder.Build(ctx, *in.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("build context: %w", err)
		}
		interactions = bundle.InteractionCount
		system, err := prompts.AdditionalPhoto(bundle)
		if err != nil {
			return nil, err
		}
		req = llm.Request{
			System:   system,
			Messages: []llm.Message{{Role: llm.RoleUser, Content: []llm.Part{image, llm.TextPart(prompts.AdditionalPhotoQuestion)}}},
			Tools:    []tools.Definition{tools.UpdateUnderstanding},
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}

	s.logger.Info("analyzing photo", "type", in.Type, "media_type", image.MediaType, "bytes", len(in.Photo.Data))

	res := s.runner.Run(ctx, req, sink)
	out := &Outcome{Result: res}

	projectID := ""
	if in.ProjectID != nil {
		projectID = in.ProjectID.String()
	}

	if in.Type == AnalysisAdditional && res.Success {
		pctx := context.WithoutCancel(ctx)
		s.recordInteraction(pctx, Interaction{
			ProjectID:  *in.ProjectID,
			Type:       InteractionPhoto,
			AIResponse: res.FullText,
			Metadata:   toolMetadata(res.ToolCall),
		})
		out.Update = s.applyUnderstanding(pctx, *in.ProjectID, interactions, res.ToolCall)
	}

	s.publishExchange(projectID, string(in.Type), res, out.Update)
	return out, nil
}
