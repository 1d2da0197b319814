package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const fence = "```"

// stripFences returns the content of the first markdown code fence in text,
// or text unchanged when there is none. An optional info string ("json")
// after the opening fence is dropped. An unclosed fence, as left behind by a
// truncated generation, runs to the end of the text. Backticks inside JSON
// string literals are not fences.
func stripFences(text string) string {
	open := indexOutsideStrings(text, fence)
	if open == -1 {
		// Prose with an unpaired quote hides a real fence from the scan.
		if t := strings.TrimSpace(text); strings.HasPrefix(t, "[") || strings.HasPrefix(t, "{") {
			return text
		}
		if open = strings.Index(text, fence); open == -1 {
			return text
		}
	}
	body := text[open+len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl != -1 && isInfoString(body[:nl]) {
		body = body[nl+1:]
	} else if isInfoString(body) {
		return ""
	}
	if end := indexOutsideStrings(body, fence); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// indexOutsideStrings is strings.Index restricted to positions outside JSON
// string literals.
func indexOutsideStrings(s, sub string) int {
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
		if c == '"' {
			inString = true
			continue
		}
		if strings.HasPrefix(s[i:], sub) {
			return i
		}
	}
	return -1
}

// isInfoString reports whether s looks like a fence language tag.
func isInfoString(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// decode parses s as exactly one JSON value. Numbers are kept as json.Number
// so integer ids survive without float rounding.
func decode(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// matchClose returns the index of the bracket closing the one at s[start],
// skipping brackets inside string literals. It returns -1 when the input ends
// first.
func matchClose(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// outermostSpans returns the balanced substrings that start at one of the
// opening bytes and are not nested in an earlier span, in order. Scanning
// stops at the first bracket that never closes, since everything after it is
// nested inside it.
func outermostSpans(s string, opens string) []string {
	var spans []string
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(opens, s[i]) == -1 {
			continue
		}
		end := matchClose(s, i)
		if end == -1 {
			break
		}
		spans = append(spans, s[i:end+1])
		i = end
	}
	return spans
}

// stripTrailingCommas drops commas that directly precede a closing bracket,
// outside string literals.
func stripTrailingCommas(s string) string {
	var b bytes.Buffer
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// repairTruncated closes an array that the generation cut off mid-element,
// keeping only the elements that completed. Balanced arrays before it, such
// as bracketed asides in prose, are skipped. It returns "" when there is no
// unclosed array or it has no complete element.
func repairTruncated(s string) string {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] != '[' {
			continue
		}
		end := matchClose(s, i)
		if end == -1 {
			start = i
			break
		}
		i = end
	}
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	lastComplete := -1
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 1 {
				lastComplete = i + 1
			}
		case ',':
			if depth == 1 {
				lastComplete = i
			}
		}
	}
	if lastComplete == -1 {
		return ""
	}
	return strings.TrimRight(s[start:lastComplete], " \t\r\n,") + "]"
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
