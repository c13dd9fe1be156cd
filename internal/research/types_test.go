package research

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidSourceURL(t *testing.T) {
	cases := []struct {
		url   string
		valid bool
	}{
		{"https://example.com/paper", true},
		{"http://arxiv.org/abs/2101.00001", true},
		{"https://en.wikipedia.org/wiki/Retrieval-augmented_generation", true},
		{"", false},
		{"not a url", false},
		{"/relative/path", false},
		{"example.com/no-scheme", false},
		{"https://", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.valid, ValidSourceURL(tc.url), tc.url)
	}
}

func TestFilterSourcesDropsInvalid(t *testing.T) {
	in := []Source{
		{Title: "good", URL: "https://example.com/a"},
		{Title: "calculation", URL: ""},
		{Title: "relative", URL: "/foo"},
		{Title: "also good", URL: "http://example.org/b"},
	}
	out := FilterSources(in)
	require.Len(t, out, 2)
	assert.Equal(t, "good", out[0].Title)
	assert.Equal(t, "also good", out[1].Title)
}

func TestTruncateTextKeepsRunesIntact(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 10))
	assert.Equal(t, "abcde", TruncateText("abcdefgh", 5))

	// A cut landing inside a multi-byte rune backs up to the boundary.
	s := "日本語のテキスト"
	for max := 1; max < len(s); max++ {
		got := TruncateText(s, max)
		assert.True(t, utf8.ValidString(got), "max=%d", max)
		assert.LessOrEqual(t, len(got), max)
	}
}

func TestNewState(t *testing.T) {
	now := time.Now()
	st := NewState("run-1", "explain RAG", now)
	assert.Equal(t, StepPending, st.CurrentStep)
	assert.Equal(t, 0, st.Iteration)
	assert.Nil(t, st.Plan)
	assert.Nil(t, st.Report)
	assert.Empty(t, st.Errors)
}

func TestSubtaskByID(t *testing.T) {
	p := &Plan{Subtasks: []Subtask{{ID: 1, Description: "a"}, {ID: 2, Description: "b"}}}
	st, ok := p.SubtaskByID(2)
	require.True(t, ok)
	assert.Equal(t, "b", st.Description)
	_, ok = p.SubtaskByID(9)
	assert.False(t, ok)
}
