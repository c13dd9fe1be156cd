package llm

import (
	"encoding/json"
	"strings"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// Models wrap JSON in prose, markdown fences, or emit raw control characters
// inside strings. Unmarshal is the one place unstructured model output is
// converted into typed records; downstream stages never see raw text.

// Unmarshal extracts the first JSON object from model output and decodes it
// into v. Failures are research.SchemaError so callers can trigger the single
// repair re-prompt.
func Unmarshal(text string, v interface{}) error {
	extracted := ExtractJSON(text)
	if extracted == "" {
		return &research.SchemaError{Detail: "no JSON object found in model output"}
	}
	if err := json.Unmarshal([]byte(extracted), v); err == nil {
		return nil
	}
	// Second pass: escape raw control characters inside string literals.
	if err := json.Unmarshal([]byte(sanitize(extracted)), v); err != nil {
		return &research.SchemaError{Detail: err.Error()}
	}
	return nil
}

// ExtractJSON returns the outermost {...} span of text, dropping markdown
// code fences and surrounding prose. Returns "" when no object is present.
func ExtractJSON(text string) string {
	text = stripCodeFences(strings.TrimSpace(text))
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func stripCodeFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	first := strings.Index(s, "```")
	rest := s[first+3:]
	// Drop an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if len(tag) <= 10 && !strings.ContainsAny(tag, "{}") {
			rest = rest[nl+1:]
		}
	}
	if close := strings.Index(rest, "```"); close >= 0 {
		return strings.TrimSpace(rest[:close])
	}
	return strings.TrimSpace(rest)
}

// sanitize escapes bare control characters that appear inside JSON string
// literals and removes them elsewhere.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			b.WriteByte(c)
			escaped = true
		case c == '"':
			inString = !inString
			b.WriteByte(c)
		case c < 0x20:
			if inString {
				switch c {
				case '\n':
					b.WriteString(`\n`)
				case '\r':
					b.WriteString(`\r`)
				case '\t':
					b.WriteString(`\t`)
				}
				// Other control characters are dropped.
			} else if c == '\n' || c == '\r' || c == '\t' {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
