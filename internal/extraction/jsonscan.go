package extraction

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedBlock   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// findJSONObjects returns every JSON object embedded in text that decodes,
// fenced blocks first, then balanced top-level braces.
func findJSONObjects(text string) []map[string]any {
	var out []map[string]any
	seen := make(map[string]bool)
	add := func(candidate string) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || seen[candidate] {
			return
		}
		seen[candidate] = true
		if obj, ok := decodeLenient(candidate); ok {
			out = append(out, obj)
		}
	}

	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		for _, obj := range balancedObjects(m[1]) {
			add(obj)
		}
	}
	for _, obj := range balancedObjects(text) {
		add(obj)
	}
	return out
}

// balancedObjects slices out top-level {...} spans, skipping braces that
// appear inside string literals.
func balancedObjects(text string) []string {
	var (
		spans    []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
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
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	return spans
}

// decodeLenient decodes an object, retrying after escaping raw control
// characters inside strings and dropping trailing commas.
func decodeLenient(candidate string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		return obj, true
	}
	repaired := trailingComma.ReplaceAllString(escapeControlChars(candidate), "$1")
	obj = nil
	if err := json.Unmarshal([]byte(repaired), &obj); err == nil {
		return obj, true
	}
	return nil, false
}

func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				b.WriteString(`\n`)
				continue
			case r == '\r':
				b.WriteString(`\r`)
				continue
			case r == '\t':
				b.WriteString(`\t`)
				continue
			}
		} else if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	return b.String()
}
