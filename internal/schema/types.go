package schema

// Typed views of validated payloads. Decode into these only after the
// matching validator has accepted the payload.

type UnderstandingUpdate struct {
	Understanding      float64         `json:"understanding"`
	DimensionsResolved map[string]bool `json:"dimensions_resolved"`
	Delta              float64         `json:"delta"`
	DeltaReason        string          `json:"delta_reason"`
	CostFlag           *string         `json:"cost_flag"`
	NextUnresolved     string          `json:"next_unresolved"`
}

type LineItem struct {
	Item     string  `json:"item"`
	Category string  `json:"category"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Assumed  bool    `json:"assumed"`
	Notes    string  `json:"notes,omitempty"`
}

type CostEstimate struct {
	LineItems       []LineItem `json:"line_items"`
	TotalLow        float64    `json:"total_low"`
	TotalHigh       float64    `json:"total_high"`
	Confidence      string     `json:"confidence"`
	UnresolvedAreas []string   `json:"unresolved_areas"`
	RegionalNote    string     `json:"regional_note"`
}

type SequencedProject struct {
	ProjectID           string `json:"project_id"`
	PriorityScore       int    `json:"priority_score"`
	RecommendedSequence int    `json:"recommended_sequence"`
	Reasoning           string `json:"reasoning"`
}

type BundleGroup struct {
	BundleName              string   `json:"bundle_name"`
	ProjectIDs              []string `json:"project_ids"`
	EstimatedSavingsPercent float64  `json:"estimated_savings_percent"`
	Reasoning               string   `json:"reasoning"`
}

type CostRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

type CrossProjectAnalysis struct {
	SequencedProjects   []SequencedProject `json:"sequenced_projects"`
	BundleGroups        []BundleGroup      `json:"bundle_groups"`
	QuickWins           []string           `json:"quick_wins"`
	TotalCostRange      CostRange          `json:"total_cost_range"`
	OptimizationSummary string             `json:"optimization_summary"`
}
