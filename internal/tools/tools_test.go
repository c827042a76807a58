package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSchemasAreValidJSON(t *testing.T) {
	for _, def := range []Definition{UpdateUnderstanding, GenerateEstimate} {
		var schema map[string]any
		require.NoError(t, json.Unmarshal(def.InputSchema, &schema), def.Name)
		assert.Equal(t, "object", schema["type"], def.Name)
		assert.NotEmpty(t, schema["required"], def.Name)
	}
}

func TestUpdateUnderstandingRequiresAllDimensions(t *testing.T) {
	var schema struct {
		Properties struct {
			Dimensions struct {
				Required []string `json:"required"`
			} `json:"dimensions_resolved"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(UpdateUnderstanding.InputSchema, &schema))
	assert.Len(t, schema.Properties.Dimensions.Required, 8)
}

func TestDefinitionSerializesForProvider(t *testing.T) {
	raw, err := json.Marshal(GenerateEstimate)
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Contains(t, wire, "name")
	assert.Contains(t, wire, "description")
	assert.Contains(t, wire, "input_schema")
	assert.NotContains(t, wire, "Version")
}

func TestLookup(t *testing.T) {
	def, ok := Lookup(NameUpdateUnderstanding)
	require.True(t, ok)
	assert.Equal(t, UpdateUnderstanding.Name, def.Name)

	_, ok = Lookup("delete_everything")
	assert.False(t, ok)
}
