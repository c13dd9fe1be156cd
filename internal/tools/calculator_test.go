package tools

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"10 % 3", 1},
		{"2 ^ 10", 1024},
		{"2 ^ 3 ^ 2", 512}, // right associative
		{"-5 + 3", -2},
		{"-(2 + 3)", -5},
		{"sqrt(16)", 4},
		{"abs(-7.5)", 7.5},
		{"floor(3.9)", 3},
		{"ceil(3.1)", 4},
		{"round(2.5)", 3},
		{"log10(1000)", 3},
		{"log2(8)", 3},
		{"exp(0)", 1},
		{"pow(2, 8)", 256},
		{"min(3, -1)", -1},
		{"max(3, -1)", 3},
		{"pi", math.Pi},
		{"2 * pi", 2 * math.Pi},
		{"sin(0)", 0},
		{"cos(0)", 1},
		{"sqrt(pow(3, 2) + pow(4, 2))", 5},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := evaluate(tc.expr)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"2 +",
		"(2 + 3",
		"2 + 3)",
		"1 / 0",
		"10 % 0",
		"import os",
		"__import__('os')",
		"x + 1",
		"log(-1)", // NaN result
		"sqrt(,)",
	}
	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			_, err := evaluate(expr)
			assert.Error(t, err)
		})
	}
}

func TestCalculatorToolFormatsResult(t *testing.T) {
	tool := newCalculatorTool()

	sources, err := tool.Search(context.Background(), " 6 * 7 ")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Calculation", sources[0].Title)
	assert.Equal(t, "6 * 7 = 42", sources[0].Snippet)
	assert.Empty(t, sources[0].URL)
}
