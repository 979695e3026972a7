package extraction

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind decides how a raw value is cleaned.
type Kind string

const (
	KindCount  Kind = "count"
	KindAmount Kind = "amount"
	KindText   Kind = "text"
)

var plainNumber = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?$`)

var numberNoise = strings.NewReplacer(
	",", "",
	"円", "",
	"¥", "",
	"\\", "",
	"件", "",
	"名", "",
	"人", "",
	" ", "",
	"\t", "",
)

// NormalizeText applies NFKC folding so full-width digits, punctuation and
// the yen sign collapse onto their ASCII forms before matching.
func NormalizeText(s string) string {
	return norm.NFKC.String(s)
}

// normalizeNumber cleans a numeric string. It returns "" when nothing
// numeric remains.
func normalizeNumber(raw string) string {
	s := strings.TrimSpace(NormalizeText(raw))
	if s == "" {
		return ""
	}

	negative := false
	switch {
	case strings.HasPrefix(s, "▲"), strings.HasPrefix(s, "△"):
		negative = true
		s = strings.TrimPrefix(strings.TrimPrefix(s, "▲"), "△")
	case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "−"):
		negative = true
		s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "−")
	}

	s = numberNoise.Replace(s)
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return ""
	}
	if !plainNumber.MatchString(s) {
		return ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		s = strconv.FormatInt(int64(f), 10)
	}
	if negative && s != "0" {
		return "-" + s
	}
	return s
}

func normalizeNote(raw string) string {
	s := strings.TrimSpace(NormalizeText(raw))
	s = strings.Trim(s, `"'「」`)
	return strings.TrimSpace(s)
}

// normalizeValue converts a decoded JSON value into the field's string form.
func normalizeValue(v any, kind Kind) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if kind == KindText {
			return normalizeNote(t)
		}
		return normalizeNumber(t)
	case float64:
		if kind == KindText {
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		// 1.25e5 and 1e20 are valid JSON numbers but not plain digit strings.
		if kind != KindText {
			if f, err := strconv.ParseFloat(t.String(), 64); err == nil {
				return normalizeValue(f, kind)
			}
		}
		return normalizeValue(t.String(), kind)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any:
		// {"value": ..., "raw_text": ...} wrappers from confidence-scoring prompts
		if inner, ok := t["value"]; ok {
			return normalizeValue(inner, kind)
		}
		if inner, ok := t["raw_text"]; ok {
			return normalizeValue(inner, kind)
		}
		return ""
	case []any:
		if kind != KindText {
			return ""
		}
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := normalizeValue(item, KindText); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "、")
	default:
		return ""
	}
}
