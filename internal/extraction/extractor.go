package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Source names the step that produced a result.
type Source string

const (
	SourceOutputs      Source = "outputs"
	SourceRoot         Source = "root"
	SourceData         Source = "data"
	SourceEmbeddedJSON Source = "embedded_json"
	SourceText         Source = "text"
	SourceMerged       Source = "merged"
	SourceRepair       Source = "repair"
	SourceSample       Source = "sample"
	SourceNone         Source = "none"
)

// ErrNoFields is returned by ParseFields when the text holds no usable object.
var ErrNoFields = errors.New("extraction: no fields found")

// Result is the outcome of one extraction pass.
type Result struct {
	Fields  Fields   `json:"data"`
	Source  Source   `json:"source"`
	Success bool     `json:"success"`
	Missing []string `json:"missing,omitempty"`
	Steps   []string `json:"steps,omitempty"`
}

// Debug summarises the steps taken, for the response's debug string.
func (r Result) Debug() string {
	if len(r.Steps) == 0 {
		return string(r.Source)
	}
	return strings.Join(r.Steps, "; ")
}

// Merge fills gaps in r from other and updates Source and bookkeeping.
func (r *Result) Merge(other Fields, source Source, step string) int {
	wasEmpty := r.Fields.IsEmpty()
	filled := r.Fields.Fill(other)
	if filled > 0 {
		if wasEmpty {
			r.Source = source
		} else {
			r.Source = SourceMerged
		}
	}
	r.Steps = append(r.Steps, fmt.Sprintf("%s: +%d", step, filled))
	r.finish()
	return filled
}

// ApplySample replaces an empty result with the sample record.
func ApplySample(r *Result) {
	r.Fields = SampleFields()
	r.Source = SourceSample
	r.Steps = append(r.Steps, "sample fallback")
	r.finish()
}

func (r *Result) finish() {
	r.Success = !r.Fields.IsEmpty()
	r.Missing = r.Fields.Missing()
	if !r.Success {
		r.Source = SourceNone
	}
}

// Extractor applies structured lookups, embedded JSON and text mining in turn.
type Extractor struct {
	rules *Rules
}

// New returns an extractor using rules, or the embedded dictionary when nil.
func New(rules *Rules) *Extractor {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Extractor{rules: rules}
}

// Rules returns the dictionary in use.
func (e *Extractor) Rules() *Rules {
	return e.rules
}

// Extract parses a workflow response body.
func (e *Extractor) Extract(raw []byte) Result {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		res := Result{Source: SourceNone, Steps: []string{"empty response"}}
		res.finish()
		return res
	}

	var root map[string]any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&root); err != nil {
		res := e.ExtractText(string(trimmed))
		res.Steps = append([]string{"body is not JSON"}, res.Steps...)
		return res
	}

	res := Result{Source: SourceNone}
	data, _ := root["data"].(map[string]any)
	outputs, _ := data["outputs"].(map[string]any)

	candidates := []struct {
		source Source
		obj    map[string]any
	}{
		{SourceOutputs, outputs},
		{SourceRoot, root},
		{SourceData, data},
	}
	for _, c := range candidates {
		if c.obj == nil {
			continue
		}
		fields := e.lookup(c.obj)
		res.Steps = append(res.Steps, fmt.Sprintf("%s: %d fields", c.source, fields.Count()))
		if !fields.IsEmpty() {
			res.Fields = fields
			res.Source = c.source
			break
		}
	}

	if res.Fields.IsEmpty() && outputs != nil {
		for _, key := range slices.Sorted(maps.Keys(outputs)) {
			nested, ok := outputs[key].(map[string]any)
			if !ok {
				continue
			}
			if fields := e.lookup(nested); !fields.IsEmpty() {
				res.Fields = fields
				res.Source = SourceOutputs
				res.Steps = append(res.Steps, fmt.Sprintf("outputs.%s: %d fields", key, fields.Count()))
				break
			}
		}
	}
	res.finish()

	var texts []string
	if outputs != nil {
		texts = collectStrings(outputs, nil)
	} else {
		texts = collectStrings(root, nil)
	}
	e.fillFromText(&res, texts)
	return res
}

// ExtractText handles plain-text answers such as chat replies.
func (e *Extractor) ExtractText(text string) Result {
	res := Result{Source: SourceNone}
	res.finish()
	e.fillFromText(&res, []string{text})
	return res
}

// ParseFields decodes the first embedded JSON object that carries any known
// field. Used on LLM repair replies.
func (e *Extractor) ParseFields(text string) (Fields, error) {
	for _, obj := range findJSONObjects(text) {
		if fields := e.lookupDeep(obj); !fields.IsEmpty() {
			return fields, nil
		}
	}
	return Fields{}, ErrNoFields
}

// MineText runs only the regex dictionary over text.
func (e *Extractor) MineText(text string) Fields {
	normalized := NormalizeText(text)
	var fields Fields
	for _, key := range e.rules.order {
		rule := e.rules.byKey[key]
		for _, re := range rule.Patterns {
			m := re.FindStringSubmatch(normalized)
			if len(m) < 2 {
				continue
			}
			var value string
			if rule.Kind == KindText {
				value = normalizeNote(m[1])
			} else {
				value = normalizeNumber(m[1])
			}
			if value != "" {
				fields.Set(key, value)
				break
			}
		}
	}
	return fields
}

func (e *Extractor) fillFromText(res *Result, texts []string) {
	if len(res.Missing) == 0 || len(texts) == 0 {
		return
	}

	for _, text := range texts {
		for _, obj := range findJSONObjects(text) {
			if fields := e.lookupDeep(obj); !fields.IsEmpty() {
				res.Merge(fields, SourceEmbeddedJSON, "embedded_json")
			}
			if len(res.Missing) == 0 {
				return
			}
		}
	}

	res.Merge(e.MineText(strings.Join(texts, "\n")), SourceText, "text")
}

func (e *Extractor) lookup(obj map[string]any) Fields {
	var fields Fields
	for _, name := range slices.Sorted(maps.Keys(obj)) {
		key, ok := e.rules.Resolve(name)
		if !ok || fields.Get(key) != "" {
			continue
		}
		if value := normalizeValue(obj[name], e.rules.KindOf(key)); value != "" {
			fields.Set(key, value)
		}
	}
	return fields
}

// lookupDeep checks obj and then one level of nested objects.
func (e *Extractor) lookupDeep(obj map[string]any) Fields {
	fields := e.lookup(obj)
	if len(fields.Missing()) == 0 {
		return fields
	}
	for _, name := range slices.Sorted(maps.Keys(obj)) {
		if nested, ok := obj[name].(map[string]any); ok {
			fields.Fill(e.lookup(nested))
		}
	}
	return fields
}

func collectStrings(v any, out []string) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	case map[string]any:
		for _, key := range slices.Sorted(maps.Keys(t)) {
			out = collectStrings(t[key], out)
		}
	case []any:
		for _, item := range t {
			out = collectStrings(item, out)
		}
	}
	return out
}
