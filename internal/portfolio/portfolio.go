// Package portfolio runs the cross-project analysis: one non-streaming
// exchange that sequences, bundles and prices several estimated projects.
package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/builditusa/scopecast/internal/budget"
	"github.com/builditusa/scopecast/internal/llm"
	"github.com/builditusa/scopecast/internal/prompts"
	"github.com/builditusa/scopecast/internal/schema"
)

const (
	MinProjects = 2
	MaxProjects = 10

	// Cross-project responses carry reasoning per project and bundle.
	maxTokens = 8192
)

var ErrProjectCount = fmt.Errorf("cross-project analysis needs %d to %d projects", MinProjects, MaxProjects)

// Summaries loads the per-project view fed to the analysis. Missing ids are
// skipped.
type Summaries interface {
	ProjectSummaries(ctx context.Context, ids []uuid.UUID) ([]prompts.ProjectSummary, error)
}

type Service struct {
	llm    llm.Completer
	store  Summaries
	logger *slog.Logger
}

func New(completer llm.Completer, store Summaries, logger *slog.Logger) *Service {
	return &Service{llm: completer, store: store, logger: logger}
}

// Analyze returns a validated analysis whose project references are all
// within ids. A response that fails validation is returned as a
// *schema.FieldError.
func (s *Service) Analyze(ctx context.Context, ids []uuid.UUID, zip *string) (*schema.CrossProjectAnalysis, error) {
	ids = dedupe(ids)
	if len(ids) < MinProjects || len(ids) > MaxProjects {
		return nil, ErrProjectCount
	}

	projects, err := s.store.ProjectSummaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	if len(projects) != len(ids) {
		return nil, fmt.Errorf("%w: %d of %d projects missing", budget.ErrNotFound, len(ids)-len(projects), len(ids))
	}

	system, err := prompts.CrossProject(zip, projects)
	if err != nil {
		return nil, err
	}

	s.logger.Info("analyzing projects", "projects", len(projects))

	raw, err := s.llm.Complete(ctx, llm.Request{
		System:    system,
		Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, prompts.CrossProjectRequest)},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm cross-project analysis: %w", err)
	}

	body := stripFences(raw)
	v, err := schema.Decode([]byte(body))
	if err != nil {
		s.logger.Error("failed to parse cross-project response", "error", err, "raw_len", len(raw))
		return nil, fmt.Errorf("parse analysis: %w", err)
	}

	allowed := make([]string, len(ids))
	for i, id := range ids {
		allowed[i] = id.String()
	}
	if r := schema.ValidateCrossProjectAnalysis(v, allowed); !r.Valid {
		s.logger.Warn("invalid cross-project analysis", "field", r.Err.Field, "error", r.Error())
		return nil, r.AsError()
	}

	var out schema.CrossProjectAnalysis
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}

	s.logger.Info("cross-project analysis complete",
		"projects", len(projects),
		"bundles", len(out.BundleGroups),
		"quick_wins", len(out.QuickWins),
	)
	return &out, nil
}

// IsInputError reports whether err was caused by the caller's request rather
// than the model or the store.
func IsInputError(err error) bool {
	return errors.Is(err, ErrProjectCount) || errors.Is(err, budget.ErrNotFound)
}

// stripFences removes a surrounding markdown code fence, which models add
// despite being asked not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
