package schemas

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
)

func TestAllSchemaFiles_Compile(t *testing.T) {
	for _, name := range []string{Topic, Script, Metadata, Variants} {
		t.Run(name, func(t *testing.T) {
			data, err := schemaFiles.ReadFile(name + ".schema.json")
			require.NoError(t, err)

			var v any
			require.NoError(t, json.Unmarshal(data, &v), "schema file should be valid JSON")

			_, err = load(name)
			assert.NoError(t, err)
		})
	}
}

func TestValidate_Script(t *testing.T) {
	valid := `{
		"title": "The Busy Bees",
		"intro_hook": "Have you ever wondered where honey comes from?",
		"scenes": [
			{"scene_number": 1, "visual_description": "A beehive in a sunny meadow", "narration": "Meet Bella the bee."}
		],
		"outro": "Bye bees!"
	}`
	assert.NoError(t, Validate(Script, []byte(valid)))

	missingScenes := `{"title": "No scenes"}`
	err := Validate(Script, []byte(missingScenes))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, Script, verr.Schema)
	assert.NotEmpty(t, verr.Errors)
	assert.False(t, errkind.IsTransient(err))
}

func TestValidate_ScriptScenes(t *testing.T) {
	tests := []struct {
		name  string
		scene string
		ok    bool
	}{
		{"narration", `{"scene_number": 1, "visual_description": "a bee", "narration": "Buzz."}`, true},
		{"lines only", `{"scene_number": 1, "visual_description": "a bee", "lines": ["Buzz buzz"]}`, true},
		{"no visual", `{"scene_number": 1, "narration": "Buzz."}`, false},
		{"empty visual", `{"scene_number": 1, "visual_description": "", "narration": "Buzz."}`, false},
		{"no text", `{"scene_number": 1, "visual_description": "a bee", "narration": ""}`, false},
		{"empty lines", `{"scene_number": 1, "visual_description": "a bee", "lines": []}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(Script, []byte(`{"title": "Bees", "scenes": [`+tt.scene+`]}`))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_WrongType(t *testing.T) {
	err := Validate(Topic, []byte(`{"topic": 42, "category": "space"}`))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "topic", verr.Errors[0].Field)
}

func TestValidate_Variants(t *testing.T) {
	assert.NoError(t, Validate(Variants, []byte(`{"variants": [{"style": "curiosity", "title": "Why do cats purr?"}]}`)))
	assert.Error(t, Validate(Variants, []byte(`{"variants": []}`)))
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(Metadata, []byte(`{not json`))
	require.Error(t, err)
	assert.False(t, errkind.IsTransient(err))
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("recipe", []byte(`{}`))
	require.Error(t, err)

	var lerr *SchemaLoadError
	assert.True(t, errors.As(err, &lerr))
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name": "Leo"}`))

	err := ValidateJSONString(schema, `{}`)
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok, "error should be ValidationError type")
	assert.Equal(t, "(root)", verr.Errors[0].Field)

	err = ValidateJSONString(`{invalid`, `{}`)
	var lerr *SchemaLoadError
	assert.True(t, errors.As(err, &lerr))
}
