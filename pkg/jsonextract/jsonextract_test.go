package jsonextract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstObjectPlainJSON(t *testing.T) {
	got, ok := FirstObject(`{"a": 1, "b": 2}`)
	require.True(t, ok)
	assert.JSONEq(t, `{"a": 1, "b": 2}`, got)
}

func TestFirstObjectWithSurroundingProse(t *testing.T) {
	text := "Sure, here's the plan:\n\n" + `{"goal": "ship it", "phases": [1,2,3]}` + "\n\nLet me know if that works."
	got, ok := FirstObject(text)
	require.True(t, ok)
	assert.JSONEq(t, `{"goal": "ship it", "phases": [1,2,3]}`, got)
}

func TestFirstObjectIgnoresBracesInsideStrings(t *testing.T) {
	text := `{"note": "use a { to open and } to close blocks", "n": 1}`
	got, ok := FirstObject(text)
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &decoded))
	assert.Equal(t, "use a { to open and } to close blocks", decoded["note"])
}

func TestFirstObjectHandlesEscapedQuotes(t *testing.T) {
	text := `{"note": "she said \"hi\""}`
	got, ok := FirstObject(text)
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &decoded))
	assert.Equal(t, `she said "hi"`, decoded["note"])
}

func TestFirstObjectNoObjectFound(t *testing.T) {
	_, ok := FirstObject("no json here at all")
	assert.False(t, ok)
}

func TestFirstObjectUnbalancedReturnsNotFound(t *testing.T) {
	_, ok := FirstObject(`{"a": 1, "b": {"c": 2}`)
	assert.False(t, ok)
}

func TestStripCodeFenceWithJSONTag(t *testing.T) {
	text := "```json\n{\"a\": 1}\n```"
	assert.Equal(t, "\n{\"a\": 1}\n", StripCodeFence(text))
}

func TestStripCodeFenceNoFenceIsNoop(t *testing.T) {
	text := `{"a": 1}`
	assert.Equal(t, text, StripCodeFence(text))
}
