package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresentation3_ValidJSON(t *testing.T) {
	require.NotEmpty(t, Presentation3)

	var v map[string]any
	require.NoError(t, json.Unmarshal(Presentation3, &v), "schema file should be valid JSON")
	assert.Equal(t, "http://json-schema.org/draft-07/schema#", v["$schema"])

	definitions, ok := v["definitions"].(map[string]any)
	require.True(t, ok)
	for _, name := range []string{"manifest", "canvas", "annotationPage", "annotation", "range", "lngString"} {
		assert.Contains(t, definitions, name)
	}
}

func TestByVersion(t *testing.T) {
	assert.Equal(t, Presentation3, ByVersion("3.0"))
	assert.Nil(t, ByVersion("2.1"))
	assert.Nil(t, ByVersion(""))
}
