// Package jsonextract pulls the first balanced JSON object out of an LLM
// response, tolerating surrounding prose and markdown code fences. Both the
// Planner (spec §4.4) and the Supervisor (spec §4.3) parse model output this
// way instead of requiring the whole response to be JSON.
package jsonextract

import "strings"

// FirstObject scans text for the first top-level '{'...'}' span whose braces
// balance, skipping over braces inside string literals. It returns ok=false
// if no balanced object is found.
func FirstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

// StripCodeFence removes a single leading/trailing ``` or ```json fence
// around text, if present. LLMs routinely wrap JSON responses in one even
// when asked not to.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimPrefix(trimmed, "JSON")
	if idx := strings.LastIndex(trimmed, "```"); idx != -1 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}
