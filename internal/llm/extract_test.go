package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no tag", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here is the plan:\n{\"a\":1}\nLet me know.", `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"no object", "I cannot answer that.", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractJSON(tc.in))
		})
	}
}

func TestUnmarshalTypedOutput(t *testing.T) {
	var out struct {
		Findings  string   `json:"findings"`
		KeyPoints []string `json:"key_points"`
	}
	text := "```json\n{\"findings\": \"summary text\", \"key_points\": [\"a\", \"b\"]}\n```"
	require.NoError(t, Unmarshal(text, &out))
	assert.Equal(t, "summary text", out.Findings)
	assert.Equal(t, []string{"a", "b"}, out.KeyPoints)
}

func TestUnmarshalSanitizesControlCharacters(t *testing.T) {
	var out struct {
		Summary string `json:"summary"`
	}
	// Raw newline inside a string literal is invalid JSON but common in
	// model output.
	text := "{\"summary\": \"line one\nline two\"}"
	require.NoError(t, Unmarshal(text, &out))
	assert.Equal(t, "line one\nline two", out.Summary)
}

func TestUnmarshalReturnsSchemaError(t *testing.T) {
	var out map[string]interface{}
	err := Unmarshal("no json here", &out)
	require.Error(t, err)
	var se *research.SchemaError
	assert.True(t, errors.As(err, &se))
}
