// Package prompts renders the system prompts for each kind of exchange.
package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"text/template"

	"github.com/builditusa/scopecast/internal/budget"
)

// User turns sent alongside the system prompts.
const (
	InitialQuestion         = "What project do you see here?"
	AdditionalPhotoQuestion = "Here is an additional photo of the project. What new information does this provide?"
	EstimateRequest         = "Generate the complete scope and cost estimate for this project."
	CrossProjectRequest     = "Analyze these projects and return the JSON object."

	// EscapeHatchNote is appended to the interaction log when a long session
	// has stalled in the middle of the understanding range.
	EscapeHatchNote = "\n\n[SYSTEM NOTE: The homeowner has been very engaged. If you feel you have enough to generate a useful estimate (even with some wider ranges), offer to generate it now.]"
)

// CorrectionQuestion re-asks the initial question with the homeowner's
// correction quoted.
func CorrectionQuestion(correction string) string {
	return fmt.Sprintf("What project do you see here? The user says: %q", correction)
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
	"target": func(v *float64) string {
		if v == nil || *v == 0 {
			return "N/A"
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	},
	"nullable": func(v *string) string {
		if v == nil || *v == "" {
			return "null"
		}
		return *v
	},
}

var (
	scopingTmpl         = template.Must(template.New("scoping").Funcs(funcs).Parse(scopingPrompt))
	additionalPhotoTmpl = template.Must(template.New("additional_photo").Funcs(funcs).Parse(additionalPhotoPrompt))
	estimateTmpl        = template.Must(template.New("estimate").Funcs(funcs).Parse(estimatePrompt))
	crossProjectTmpl    = template.Must(template.New("cross_project").Funcs(funcs).Parse(crossProjectPrompt))
)

// Initial is the first-read prompt for a single photo. It takes no context.
func Initial() string {
	return initialPrompt
}

func Scoping(b *budget.Bundle) (string, error) {
	return render(scopingTmpl, b)
}

func AdditionalPhoto(b *budget.Bundle) (string, error) {
	return render(additionalPhotoTmpl, b)
}

func Estimate(b *budget.Bundle) (string, error) {
	return render(estimateTmpl, b)
}

// ProjectSummary is one project as presented to the cross-project prompt.
type ProjectSummary struct {
	ProjectID          string          `json:"project_id"`
	Title              string          `json:"title"`
	ScopeSummary       string          `json:"scope_summary"`
	CostEstimate       json.RawMessage `json:"cost_estimate"`
	UnderstandingScore int             `json:"understanding_score"`
}

func CrossProject(zipCode *string, projects []ProjectSummary) (string, error) {
	return render(crossProjectTmpl, struct {
		ZipCode      *string
		ProjectCount int
		Projects     []ProjectSummary
	}{zipCode, len(projects), projects})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
