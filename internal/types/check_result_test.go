package types

import (
	"encoding/json"
	"testing"

	"github.com/jonathan/iiif-validator/internal/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, r *CheckResult) map[string]any {
	t.Helper()
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestCheckResult_ReaderShape(t *testing.T) {
	m := decode(t, &CheckResult{
		Received: "{}",
		Okay:     1,
		Warnings: []string{},
		Error:    NoError,
	})

	assert.Equal(t, []any{}, m["warnings"])
	assert.Equal(t, "None", m["error"])
	assert.Nil(t, m["url"])
	assert.Contains(t, m, "url")
	assert.NotContains(t, m, "errorList")
}

func TestCheckResult_SchemaShape(t *testing.T) {
	url := "https://example.org/manifest"
	m := decode(t, &CheckResult{
		Received:  "{}",
		Okay:      0,
		Error:     "manifest failed schema validation with 1 error(s)",
		URL:       &url,
		ErrorList: []schemas.ErrorDetail{{Title: "Error 1 of 1.", Path: "/"}},
	})

	assert.NotContains(t, m, "warnings")
	assert.Equal(t, url, m["url"])
	require.Len(t, m["errorList"], 1)
}

func TestFailure(t *testing.T) {
	r := Failure("not json", "manifest is not valid JSON", nil)
	m := decode(t, r)

	assert.False(t, r.Passed())
	assert.Equal(t, float64(0), m["okay"])
	assert.Equal(t, "not json", m["received"])
	assert.NotContains(t, m, "warnings")
	assert.NotContains(t, m, "errorList")
	assert.Len(t, m, 4)
}

func TestOkay(t *testing.T) {
	assert.Equal(t, 1, Okay(true))
	assert.Equal(t, 0, Okay(false))
}
