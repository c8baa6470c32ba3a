package drafter

import (
	"errors"
)

// ErrNoJSON is returned when model output contains no complete JSON object.
var ErrNoJSON = errors.New("drafter: response did not contain a JSON object")

// ExtractJSON returns the first balanced {...} object in text. Braces inside
// JSON strings are ignored, so fenced or chatty output still parses.
func ExtractJSON(text string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if start < 0 {
			if ch == '{' {
				start = i
				depth = 1
			}
			continue
		}

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
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}
