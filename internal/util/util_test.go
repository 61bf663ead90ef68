package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	Query    string `json:"query" description:"Search query"`
	MaxToken *int   `json:"maxTokens" description:"Optional token cap"`
	AgeGroup string `json:"ageGroup,omitempty"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleArgs{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
	assert.Contains(t, props, "maxTokens")
	assert.Equal(t, []string{"query"}, schema["required"])
}

func TestValidateParameters_RequiredBothShapes(t *testing.T) {
	for _, req := range []any{[]string{"x"}, []any{"x"}} {
		schema := map[string]any{
			"type":       "object",
			"properties": map[string]any{"x": map[string]any{"type": "integer"}},
			"required":   req,
		}
		assert.NoError(t, ValidateParameters(map[string]any{"x": 5.0}, schema))

		err := ValidateParameters(map[string]any{}, schema)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "x", vErr.Field)
	}
}

func TestValidateParameters_TypeAndEnum(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ageGroup": map[string]any{"type": "string", "enum": []string{"young", "middle", "teen"}},
		},
	}
	assert.NoError(t, ValidateParameters(map[string]any{"ageGroup": "teen"}, schema))
	assert.ErrorContains(t, ValidateParameters(map[string]any{"ageGroup": "adult"}, schema), "not one of")
	assert.ErrorContains(t, ValidateParameters(map[string]any{"ageGroup": 3.0}, schema), "expected type string")
}

func TestValidateParameters_ArrayItems(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cards": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": map[string]any{"front": map[string]any{"type": "string"}},
					"required":   []string{"front"},
				},
			},
		},
	}
	ok := map[string]any{"cards": []any{map[string]any{"front": "H2O"}}}
	assert.NoError(t, ValidateParameters(ok, schema))

	bad := map[string]any{"cards": []any{map[string]any{"back": "water"}}}
	err := ValidateParameters(bad, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "cards[0].front", vErr.Field)
}

func TestRenderTemplate(t *testing.T) {
	data := struct{ Topic, Audience string }{Topic: "volcanoes"}
	out, err := RenderTemplate(`Topic "{{.Topic}}" for {{default "everyone" .Audience}}`, data)
	require.NoError(t, err)
	assert.Equal(t, `Topic "volcanoes" for everyone`, out)

	plain, err := RenderTemplate("no markers", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers", plain)

	_, err = RenderTemplate("{{.Broken", nil)
	assert.Error(t, err)
}
