// Package jsonx recovers a JSON object from model output that may wrap it in
// prose or markdown fences.
package jsonx

import (
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// blockRe matches objects nested at most two levels deep.
var blockRe = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

// Extract returns the first JSON object found in raw. It tries, in order, the
// whole trimmed text (fences removed), every top-level brace block matched by a
// shallow regular expression, and finally a depth-tracking scan starting at
// each opening brace.
func Extract(raw string) (map[string]any, bool) {
	text := stripFences(raw)
	if text == "" {
		return nil, false
	}

	if obj, ok := parseObject(text); ok {
		return obj, true
	}

	depths := braceDepths(text)
	for _, loc := range blockRe.FindAllStringIndex(text, -1) {
		// A block opened inside another brace is a fragment of a deeper object.
		if depths[loc[0]] != 0 {
			continue
		}
		if obj, ok := parseObject(text[loc[0]:loc[1]]); ok {
			return obj, true
		}
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if span, ok := balancedSpan(text[start:]); ok {
			if obj, ok := parseObject(span); ok {
				return obj, true
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return nil, false
}

func parseObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// balancedSpan returns the prefix of s (which starts with '{') up to the
// matching closing brace. Braces inside string literals are ignored.
func balancedSpan(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}

	return "", false
}

// braceDepths returns, for every byte offset, the brace depth before that byte.
func braceDepths(s string) []int {
	depths := make([]int, len(s)+1)
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		depths[i] = depth
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
	}
	depths[len(s)] = depth

	return depths
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```JSON")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}
