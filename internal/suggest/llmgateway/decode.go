package llmgateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	markdownFence    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingComma    = regexp.MustCompile(`,\s*([}\]])`)
	smartQuoteRepl   = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// ExtractJSON cleans a raw LLM text response into valid JSON bytes. It
// tolerates markdown code fences, smart quotes, stray control
// characters, and trailing commas, then re-encodes through a generic
// decode+marshal round trip so the result is canonical JSON. It never
// invents fields: if no valid JSON object or array can be recovered, it
// returns an error.
func ExtractJSON(raw string) (json.RawMessage, error) {
	candidate := stripMarkdownFence(raw)
	candidate = sanitizeJSON(candidate)

	if json.Valid([]byte(candidate)) {
		return reencode(candidate)
	}

	if braced, ok := findBracedSpan(candidate); ok {
		if json.Valid([]byte(braced)) {
			return reencode(braced)
		}
		sanitizedBraced := sanitizeJSON(braced)
		if json.Valid([]byte(sanitizedBraced)) {
			return reencode(sanitizedBraced)
		}
	}

	return nil, fmt.Errorf("no valid JSON object found in response")
}

func stripMarkdownFence(raw string) string {
	if m := markdownFence.FindStringSubmatch(raw); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// sanitizeJSON repairs common LLM JSON mistakes: smart quotes, stray
// control characters, and trailing commas before a closing brace/bracket.
func sanitizeJSON(s string) string {
	s = smartQuoteRepl.Replace(s)
	s = stripControlChars(s)
	s = trailingComma.ReplaceAllString(s, "$1")
	return s
}

func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || r == '\r' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// findBracedSpan finds the outermost {...} or [...] span by locating the
// first opening brace/bracket and its matching close, counting nesting
// depth forward from the opening. It reports false if that opening is
// never closed.
func findBracedSpan(s string) (string, bool) {
	startObj := strings.IndexByte(s, '{')
	startArr := strings.IndexByte(s, '[')
	start := -1
	var open, closeCh byte
	switch {
	case startObj == -1 && startArr == -1:
		return "", false
	case startArr == -1 || (startObj != -1 && startObj < startArr):
		start, open, closeCh = startObj, '{', '}'
	default:
		start, open, closeCh = startArr, '[', ']'
	}

	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func reencode(clean string) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal([]byte(clean), &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
