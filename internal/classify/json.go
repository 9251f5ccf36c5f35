package classify

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var errNoJSON = errors.New("no valid JSON found in response")

var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// ExtractJSON finds the first well-formed JSON object or array in a model
// response that may be wrapped in prose, code fences or <think> tags. Brace
// spans that do not parse, such as "{see below}", are skipped.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	for i := 0; i < len(cleaned); i++ {
		c := cleaned[i]
		if c != '{' && c != '[' {
			continue
		}
		span, ok := balancedAt(cleaned, i)
		if ok && json.Valid([]byte(span)) {
			return span, nil
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", errNoJSON
}

// balancedAt returns the span opened at s[start] up to its matching closer.
// Delimiters inside strings do not count.
func balancedAt(s string, start int) (string, bool) {
	open := s[start]
	close := byte('}')
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
