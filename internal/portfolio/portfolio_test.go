package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/builditusa/scopecast/internal/anthropic"
	"github.com/builditusa/scopecast/internal/budget"
	"github.com/builditusa/scopecast/internal/prompts"
	"github.com/builditusa/scopecast/internal/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSummaries struct {
	projects map[uuid.UUID]prompts.ProjectSummary
}

func (f *fakeSummaries) ProjectSummaries(_ context.Context, ids []uuid.UUID) ([]prompts.ProjectSummary, error) {
	var out []prompts.ProjectSummary
	for _, id := range ids {
		if p, ok := f.projects[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func twoProjects() (uuid.UUID, uuid.UUID, *fakeSummaries) {
	a, b := uuid.New(), uuid.New()
	return a, b, &fakeSummaries{projects: map[uuid.UUID]prompts.ProjectSummary{
		a: {ProjectID: a.String(), Title: "Roof", CostEstimate: json.RawMessage(`{"total_low":9000,"total_high":14000}`), UnderstandingScore: 85},
		b: {ProjectID: b.String(), Title: "Gutters", CostEstimate: json.RawMessage(`{"total_low":800,"total_high":1500}`), UnderstandingScore: 90},
	}}
}

// modelServer answers every messages request with text and records the
// system prompt it was sent.
func modelServer(t *testing.T, text string, system *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			System string `json:"system"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if system != nil {
			*system = req.System
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": text}},
			"stop_reason": "end_turn",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func analysisJSON(a, b uuid.UUID) string {
	return `{
  "sequenced_projects": [
    {"project_id": "` + a.String() + `", "priority_score": 90, "recommended_sequence": 1, "reasoning": "Roof first."},
    {"project_id": "` + b.String() + `", "priority_score": 60, "recommended_sequence": 2, "reasoning": "Gutters after."}
  ],
  "bundle_groups": [
    {"bundle_name": "Exterior", "project_ids": ["` + a.String() + `", "` + b.String() + `"], "estimated_savings_percent": 12, "reasoning": "Same crew."}
  ],
  "quick_wins": ["` + b.String() + `"],
  "total_cost_range": {"low": 9800, "high": 15500},
  "optimization_summary": "Bundle the exterior work."
}`
}

func TestAnalyze_Success(t *testing.T) {
	a, b, store := twoProjects()
	var system string
	srv := modelServer(t, analysisJSON(a, b), &system)

	svc := New(anthropic.NewClient("test-key", "test-model", anthropic.WithBaseURL(srv.URL)), store, discardLogger())
	zip := "30301"
	out, err := svc.Analyze(context.Background(), []uuid.UUID{a, b}, &zip)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.SequencedProjects) != 2 {
		t.Fatalf("expected 2 sequenced projects, got %d", len(out.SequencedProjects))
	}
	if out.SequencedProjects[0].ProjectID != a.String() {
		t.Errorf("expected roof first, got %s", out.SequencedProjects[0].ProjectID)
	}
	if out.BundleGroups[0].EstimatedSavingsPercent != 12 {
		t.Errorf("expected 12%% savings, got %f", out.BundleGroups[0].EstimatedSavingsPercent)
	}
	if out.TotalCostRange.High != 15500 {
		t.Errorf("expected high 15500, got %f", out.TotalCostRange.High)
	}
	if !strings.Contains(system, "- User zip code: 30301") {
		t.Errorf("expected zip code in system prompt, got %q", system)
	}
	if !strings.Contains(system, `"title":"Gutters"`) {
		t.Errorf("expected project summaries in system prompt")
	}
}

func TestAnalyze_StripsMarkdownFence(t *testing.T) {
	a, b, store := twoProjects()
	srv := modelServer(t, "```json\n"+analysisJSON(a, b)+"\n```", nil)

	svc := New(anthropic.NewClient("test-key", "test-model", anthropic.WithBaseURL(srv.URL)), store, discardLogger())
	out, err := svc.Analyze(context.Background(), []uuid.UUID{a, b}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.OptimizationSummary != "Bundle the exterior work." {
		t.Errorf("unexpected summary %q", out.OptimizationSummary)
	}
}

func TestAnalyze_RejectsUnknownProjectReference(t *testing.T) {
	a, b, store := twoProjects()
	stranger := uuid.New()
	srv := modelServer(t, strings.ReplaceAll(analysisJSON(a, b), `"quick_wins": ["`+b.String(), `"quick_wins": ["`+stranger.String()), nil)

	svc := New(anthropic.NewClient("test-key", "test-model", anthropic.WithBaseURL(srv.URL)), store, discardLogger())
	_, err := svc.Analyze(context.Background(), []uuid.UUID{a, b}, nil)
	if !errors.Is(err, schema.ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	var fe *schema.FieldError
	if !errors.As(err, &fe) || fe.Field != "quick_wins" {
		t.Errorf("expected quick_wins field error, got %v", err)
	}
}

func TestAnalyze_InvalidJSON(t *testing.T) {
	a, b, store := twoProjects()
	srv := modelServer(t, "I think you should do the roof first.", nil)

	svc := New(anthropic.NewClient("test-key", "test-model", anthropic.WithBaseURL(srv.URL)), store, discardLogger())
	_, err := svc.Analyze(context.Background(), []uuid.UUID{a, b}, nil)
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}
	if IsInputError(err) {
		t.Errorf("model failure should not be an input error: %v", err)
	}
}

func TestAnalyze_ProjectCount(t *testing.T) {
	a, _, store := twoProjects()
	svc := New(anthropic.NewClient("test-key", "test-model"), store, discardLogger())

	_, err := svc.Analyze(context.Background(), []uuid.UUID{a, a}, nil)
	if !errors.Is(err, ErrProjectCount) {
		t.Errorf("expected ErrProjectCount for duplicate ids, got %v", err)
	}

	many := make([]uuid.UUID, MaxProjects+1)
	for i := range many {
		many[i] = uuid.New()
	}
	_, err = svc.Analyze(context.Background(), many, nil)
	if !errors.Is(err, ErrProjectCount) {
		t.Errorf("expected ErrProjectCount for too many ids, got %v", err)
	}
}

func TestAnalyze_MissingProject(t *testing.T) {
	a, _, store := twoProjects()
	svc := New(anthropic.NewClient("test-key", "test-model"), store, discardLogger())

	_, err := svc.Analyze(context.Background(), []uuid.UUID{a, uuid.New()}, nil)
	if !errors.Is(err, budget.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !IsInputError(err) {
		t.Errorf("missing project should be an input error")
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}\n", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```\n", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
