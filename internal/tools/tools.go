// Package tools holds the static tool definitions offered to the model.
// Definitions are configuration only; payload validation lives in
// internal/schema.
package tools

import (
	_ "embed"
	"encoding/json"
)

// SchemaVersion is bumped whenever a schema file under schemas/ changes shape.
const SchemaVersion = "2024-11-01"

const (
	NameUpdateUnderstanding = "update_understanding"
	NameGenerateEstimate    = "generate_estimate"
)

//go:embed schemas/update_understanding.json
var updateUnderstandingSchema []byte

//go:embed schemas/generate_estimate.json
var generateEstimateSchema []byte

// Definition is a tool offered to the model, in the shape the Messages API
// expects once serialized.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
	Version     string          `json:"-"`
}

var (
	// UpdateUnderstanding is called by the model after every scoping reply.
	UpdateUnderstanding = Definition{
		Name:        NameUpdateUnderstanding,
		Description: "You MUST call this tool after every response to report your updated assessment.",
		InputSchema: json.RawMessage(updateUnderstandingSchema),
		Version:     SchemaVersion,
	}

	// GenerateEstimate carries the structured cost estimate alongside the narrative scope.
	GenerateEstimate = Definition{
		Name:        NameGenerateEstimate,
		Description: "You MUST call this tool with the structured cost estimate after generating the narrative scope document.",
		InputSchema: json.RawMessage(generateEstimateSchema),
		Version:     SchemaVersion,
	}
)

// Lookup returns the definition registered under name.
func Lookup(name string) (Definition, bool) {
	switch name {
	case NameUpdateUnderstanding:
		return UpdateUnderstanding, true
	case NameGenerateEstimate:
		return GenerateEstimate, true
	default:
		return Definition{}, false
	}
}
