// Package budget assembles the bounded conversational context for a project
// from its persisted photos and interactions.
package budget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// FullInteractions is how many of the most recent interactions are kept
	// verbatim. Older ones are summarized.
	FullInteractions = 3
	summaryChars     = 100
	// TokenWarnThreshold is the estimate above which a warning is logged.
	// The bundle is never trimmed.
	TokenWarnThreshold = 4500

	summarizedHeader = "Previous interactions (summarized):"
	blockSeparator   = "\n\n---\n\n"
)

// Bundle is the context injected into prompts. Field names serialize the way
// the prompt templates and clients expect.
type Bundle struct {
	ProjectTitle       string     `json:"projectTitle"`
	BudgetApproach     string     `json:"budgetApproach"`
	BudgetTarget       *float64   `json:"budgetTarget"`
	UnderstandingScore int        `json:"understandingScore"`
	DimensionsResolved Dimensions `json:"dimensionsResolved"`
	PhotoAnalyses      string     `json:"photoAnalyses"`
	InteractionLog     string     `json:"interactionLog"`
	ResolvedSummary    string     `json:"resolvedDimensionsSummary"`
	UnresolvedSummary  string     `json:"unresolvedDimensions"`
	ZipCode            *string    `json:"zipCode"`

	InteractionCount int `json:"-"`
	EstimatedTokens  int `json:"-"`
}

// Builder builds a fresh Bundle per call; nothing is cached.
type Builder struct {
	history History
	logger  *slog.Logger
}

func NewBuilder(history History, logger *slog.Logger) *Builder {
	return &Builder{history: history, logger: logger}
}

func (b *Builder) Build(ctx context.Context, projectID uuid.UUID) (*Bundle, error) {
	project, err := b.history.Project(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	photos, err := b.history.Photos(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load photos: %w", err)
	}
	interactions, err := b.history.Interactions(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}

	bundle := &Bundle{
		ProjectTitle:       orDefault(project.Title, "Untitled project"),
		BudgetApproach:     orDefault(project.BudgetApproach, "not set"),
		BudgetTarget:       project.BudgetTarget,
		UnderstandingScore: project.UnderstandingScore,
		DimensionsResolved: project.Dimensions,
		PhotoAnalyses:      photoAnalyses(photos),
		InteractionLog:     interactionLog(interactions),
		ResolvedSummary:    summarize(project.Dimensions.Resolved(), "none yet"),
		UnresolvedSummary:  summarize(project.Dimensions.Unresolved(), "none"),
		InteractionCount:   project.InteractionCount,
	}

	tokens, err := bundle.estimateTokens()
	if err != nil {
		return nil, err
	}
	bundle.EstimatedTokens = tokens

	b.logger.Debug("built context", "project_id", projectID, "tokens", tokens)
	if tokens > TokenWarnThreshold {
		b.logger.Warn("context exceeds token target",
			"project_id", projectID,
			"tokens", tokens,
			"threshold", TokenWarnThreshold,
		)
	}
	return bundle, nil
}

// JSON serializes the bundle as it is measured, without HTML escaping.
func (b *Bundle) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (b *Bundle) estimateTokens() (int, error) {
	raw, err := b.JSON()
	if err != nil {
		return 0, fmt.Errorf("encode context: %w", err)
	}
	return EstimateTokens(string(raw)), nil
}

// EstimateTokens approximates one token per four characters, rounded up.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

func photoAnalyses(photos []Photo) string {
	var parts []string
	for _, p := range photos {
		if p.Analysis == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Photo %d: %s", len(parts)+1, p.Analysis))
	}
	return strings.Join(parts, "\n\n")
}

func interactionLog(interactions []Interaction) string {
	if len(interactions) == 0 {
		return ""
	}

	split := max(len(interactions)-FullInteractions, 0)
	older, recent := interactions[:split], interactions[split:]

	full := make([]string, len(recent))
	for i, in := range recent {
		full[i] = "User: " + orDefault(in.UserInput, "[provided photo]") +
			"\nAssistant: " + orDefault(in.AIResponse, "[response]")
	}
	recentBlock := strings.Join(full, "\n\n")
	if len(older) == 0 {
		return recentBlock
	}

	lines := make([]string, 0, len(older)+1)
	lines = append(lines, summarizedHeader)
	for _, in := range older {
		lines = append(lines, summarizeInteraction(in))
	}
	return strings.Join(lines, "\n") + blockSeparator + recentBlock
}

func summarizeInteraction(in Interaction) string {
	q := "Q: [photo provided]"
	if in.UserInput != "" {
		q = "Q: " + truncate(in.UserInput, summaryChars)
	}
	a := "A: [response]"
	if in.AIResponse != "" {
		a = "A: " + truncate(in.AIResponse, summaryChars)
	}
	return "[" + q + "] → [" + a + "]"
}

func summarize(names []string, empty string) string {
	if len(names) == 0 {
		return empty
	}
	human := make([]string, len(names))
	for i, n := range names {
		human[i] = strings.ReplaceAll(n, "_", " ")
	}
	return strings.Join(human, ", ")
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
