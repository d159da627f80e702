package util

import (
	"errors"
	"regexp"
	"strings"
)

// Precompiled regex patterns for performance (compiled once at package init)
var (
	jsonCodeBlockRegex = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
)

// ExtractJSONArray extracts a JSON array from a model response that may wrap
// it in markdown code fences or surrounding prose. Truncated arrays (the
// model ran out of tokens mid-item) are closed so the complete leading items
// still decode. Responses with no array at all are an error.
func ExtractJSONArray(s string) (string, error) {
	s = stripCodeFence(s)

	start := strings.Index(s, "[")
	if start == -1 {
		return "", errors.New("response contains no JSON array")
	}

	end := findMatchingBracket(s, start, '[', ']')
	if end != -1 {
		return s[start : end+1], nil
	}

	// Truncated array: drop the trailing partial item and close it
	lastQuote := strings.LastIndex(s, "\"")
	if lastQuote > start {
		trimmed := strings.TrimRight(s[start:], " \n\t,")
		return trimmed + "]", nil
	}

	return s[start:], nil
}

// ExtractJSONObject extracts a JSON object from a model response, unwrapping
// code fences the same way as ExtractJSONArray. Truncated objects are
// returned as-is; callers treat the decode failure as the error.
func ExtractJSONObject(s string) string {
	s = stripCodeFence(s)

	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}

	end := findMatchingBracket(s, start, '{', '}')
	if end != -1 {
		return s[start : end+1]
	}

	return s[start:]
}

func stripCodeFence(s string) string {
	matches := jsonCodeBlockRegex.FindStringSubmatch(s)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return strings.TrimSpace(s)
}

// findMatchingBracket finds the matching closing bracket for an opening
// bracket, skipping bracket characters inside string literals and escape
// sequences. Returns -1 if no matching bracket is found.
func findMatchingBracket(s string, startPos int, openChar, closeChar rune) int {
	count := 0
	inString := false
	escaped := false

	for i := startPos; i < len(s); i++ {
		ch := rune(s[i])

		if escaped {
			escaped = false
			continue
		}

		if ch == '\\' {
			escaped = true
			continue
		}

		if ch == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if ch == openChar {
				count++
			} else if ch == closeChar {
				count--
				if count == 0 {
					return i
				}
			}
		}
	}

	return -1
}

// SanitizeJSON fixes common JSON issues from model responses, specifically
// literal newlines inside string values, which models emit constantly when
// quoting page content into the context field.
func SanitizeJSON(s string) string {
	var result strings.Builder
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			result.WriteByte(ch)
			escaped = false
			continue
		}

		if ch == '\\' {
			result.WriteByte(ch)
			escaped = true
			continue
		}

		if ch == '"' {
			result.WriteByte(ch)
			inString = !inString
			continue
		}

		// Replace literal newlines in strings with \n
		if inString && (ch == '\n' || ch == '\r') {
			result.WriteString("\\n")
			// Skip \r if followed by \n
			if ch == '\r' && i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			continue
		}

		result.WriteByte(ch)
	}

	return result.String()
}
