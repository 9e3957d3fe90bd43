package jsonx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractObjectWithKeysFindsMatch(t *testing.T) {
	output := `Here is my plan:
{"analysis": "looks fine", "tasks": [{"title": "a"}]}
Thanks.`
	obj, ok := ExtractObjectWithKeys(output, "analysis", "tasks")
	require.True(t, ok)
	require.Contains(t, obj, "looks fine")
}

func TestExtractObjectWithKeysSkipsPartialMatch(t *testing.T) {
	output := `{"analysis": "no tasks key here"}`
	_, ok := ExtractObjectWithKeys(output, "analysis", "tasks")
	require.False(t, ok)
}

func TestExtractFencedJSON(t *testing.T) {
	output := "some text\n```json\n{\"decision\": \"COMPLETE\"}\n```\nmore text"
	obj, ok := ExtractFencedJSON(output)
	require.True(t, ok)
	require.Equal(t, `{"decision": "COMPLETE"}`, obj)
}

func TestExtractAnyFencedBlock(t *testing.T) {
	output := "```\n{\"decision\": \"ABORT\"}\n```"
	obj, ok := ExtractAnyFencedBlock(output)
	require.True(t, ok)
	require.Equal(t, `{"decision": "ABORT"}`, obj)
}

func TestExtractObjectWithKeysNoMatch(t *testing.T) {
	_, ok := ExtractObjectWithKeys("no json here at all", "analysis")
	require.False(t, ok)
}
