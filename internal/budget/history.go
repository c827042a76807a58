package budget

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/builditusa/scopecast/internal/schema"
)

// ErrNotFound is returned when the requested project does not exist.
var ErrNotFound = errors.New("project not found")

// History is read access to a project's persisted records.
type History interface {
	// Project returns ErrNotFound when no project has the id.
	Project(ctx context.Context, id uuid.UUID) (*Project, error)
	// Photos returns photos ordered by photo_order.
	Photos(ctx context.Context, projectID uuid.UUID) ([]Photo, error)
	// Interactions returns interactions ordered by created_at.
	Interactions(ctx context.Context, projectID uuid.UUID) ([]Interaction, error)
}

type Project struct {
	ID                 uuid.UUID
	UserID             *uuid.UUID
	Title              string
	Status             string
	BudgetApproach     string
	BudgetTarget       *float64
	UnderstandingScore int
	Dimensions         Dimensions
	InteractionCount   int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Photo struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Order       int
	StoragePath string
	Analysis    string
	CreatedAt   time.Time
}

type Interaction struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	Type       string
	UserInput  string
	AIResponse string
	CreatedAt  time.Time
}

// Dimensions are the eight scoping dimensions, each resolved or not.
type Dimensions struct {
	ProjectType         bool `json:"project_type"`
	ScopeDirection      bool `json:"scope_direction"`
	SpaceDimensions     bool `json:"space_dimensions"`
	Condition           bool `json:"condition"`
	MaterialsPreference bool `json:"materials_preference"`
	BudgetFraming       bool `json:"budget_framing"`
	Timeline            bool `json:"timeline"`
	Constraints         bool `json:"constraints"`
}

// DimensionsFromMap reads the eight known keys; anything else is ignored.
func DimensionsFromMap(m map[string]bool) Dimensions {
	var d Dimensions
	for _, name := range schema.Dimensions {
		*d.field(name) = m[name]
	}
	return d
}

// Get reports whether the named dimension is resolved. Unknown names are
// never resolved.
func (d Dimensions) Get(name string) bool {
	if p := d.field(name); p != nil {
		return *p
	}
	return false
}

// Resolved lists resolved dimension names in canonical order.
func (d Dimensions) Resolved() []string {
	return d.filter(true)
}

// Unresolved lists unresolved dimension names in canonical order.
func (d Dimensions) Unresolved() []string {
	return d.filter(false)
}

func (d Dimensions) filter(want bool) []string {
	var out []string
	for _, name := range schema.Dimensions {
		if d.Get(name) == want {
			out = append(out, name)
		}
	}
	return out
}

func (d *Dimensions) field(name string) *bool {
	switch name {
	case "project_type":
		return &d.ProjectType
	case "scope_direction":
		return &d.ScopeDirection
	case "space_dimensions":
		return &d.SpaceDimensions
	case "condition":
		return &d.Condition
	case "materials_preference":
		return &d.MaterialsPreference
	case "budget_framing":
		return &d.BudgetFraming
	case "timeline":
		return &d.Timeline
	case "constraints":
		return &d.Constraints
	default:
		return nil
	}
}
