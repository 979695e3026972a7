package extraction

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

const numCapture = `([-▲△]?[0-9][0-9,]*(?:\.[0-9]+)?)`

// Rule describes how one field is recognised in JSON keys and in free text.
type Rule struct {
	Key      string
	Kind     Kind
	Labels   []string
	Aliases  []string
	Patterns []*regexp.Regexp
}

// Rules is the compiled label dictionary.
type Rules struct {
	order   []string
	byKey   map[string]*Rule
	aliases map[string]string
}

type rulesFile struct {
	Templates map[Kind][]string `yaml:"templates"`
	Fields    []fieldSpec       `yaml:"fields"`
}

type fieldSpec struct {
	Key      string   `yaml:"key"`
	Kind     Kind     `yaml:"kind"`
	Labels   []string `yaml:"labels"`
	Aliases  []string `yaml:"aliases"`
	Patterns []string `yaml:"patterns"`
}

// DefaultRules compiles the embedded dictionary.
func DefaultRules() *Rules {
	rules, err := LoadRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("extraction: embedded rules invalid: %v", err))
	}
	return rules
}

// LoadRulesFile reads a YAML dictionary from disk.
func LoadRulesFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extraction: read rules %s: %w", path, err)
	}
	return LoadRules(data)
}

// LoadRules parses and compiles a YAML dictionary.
func LoadRules(data []byte) (*Rules, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("extraction: parse rules: %w", err)
	}
	if len(file.Fields) == 0 {
		return nil, errors.New("extraction: rules define no fields")
	}

	rules := &Rules{
		byKey:   make(map[string]*Rule, len(file.Fields)),
		aliases: make(map[string]string),
	}
	known := make(map[string]bool, len(FieldKeys))
	for _, key := range FieldKeys {
		known[key] = true
		rules.aliases[aliasKey(key)] = key
	}

	for _, def := range file.Fields {
		if !known[def.Key] {
			return nil, fmt.Errorf("extraction: unknown field %q in rules", def.Key)
		}
		switch def.Kind {
		case KindCount, KindAmount, KindText:
		default:
			return nil, fmt.Errorf("extraction: field %s has invalid kind %q", def.Key, def.Kind)
		}

		rule := &Rule{Key: def.Key, Kind: def.Kind, Labels: def.Labels, Aliases: def.Aliases}
		sources := append(append([]string{}, file.Templates[def.Kind]...), def.Patterns...)
		if len(def.Labels) > 0 {
			label := alternation(def.Labels)
			for _, src := range sources {
				re, err := compileTemplate(src, label)
				if err != nil {
					return nil, fmt.Errorf("extraction: field %s: %w", def.Key, err)
				}
				rule.Patterns = append(rule.Patterns, re)
			}
		}
		keyValue, err := keyValuePattern(append([]string{def.Key}, def.Aliases...), def.Kind)
		if err != nil {
			return nil, fmt.Errorf("extraction: field %s: %w", def.Key, err)
		}
		rule.Patterns = append(rule.Patterns, keyValue)

		for _, alias := range def.Aliases {
			rules.aliases[aliasKey(alias)] = def.Key
		}
		if _, dup := rules.byKey[def.Key]; !dup {
			rules.order = append(rules.order, def.Key)
		}
		rules.byKey[def.Key] = rule
	}
	return rules, nil
}

// Resolve maps a JSON key (any casing, snake or camel, Japanese alias) to
// its canonical field key.
func (r *Rules) Resolve(name string) (string, bool) {
	key, ok := r.aliases[aliasKey(name)]
	return key, ok
}

// Rule returns the compiled rule for a canonical key.
func (r *Rules) Rule(key string) (*Rule, bool) {
	rule, ok := r.byKey[key]
	return rule, ok
}

// KindOf returns the value kind for key, defaulting to amount.
func (r *Rules) KindOf(key string) Kind {
	if rule, ok := r.byKey[key]; ok {
		return rule.Kind
	}
	if key == KeyBushanNote {
		return KindText
	}
	return KindAmount
}

// DisplayLabel returns a human-readable Japanese label such as "社保 件数".
func (r *Rules) DisplayLabel(key string) string {
	rule, ok := r.byKey[key]
	if !ok || len(rule.Labels) == 0 {
		return key
	}
	if key == KeyPreviousDifference {
		return rule.Labels[0]
	}
	switch rule.Kind {
	case KindCount:
		return rule.Labels[0] + " 件数"
	case KindText:
		return rule.Labels[0] + " 内容"
	default:
		return rule.Labels[0] + " 金額"
	}
}

// Keys returns field keys in dictionary order.
func (r *Rules) Keys() []string {
	return slices.Clone(r.order)
}

func compileTemplate(src, label string) (*regexp.Regexp, error) {
	expanded := strings.ReplaceAll(src, "{label}", label)
	expanded = strings.ReplaceAll(expanded, "{num}", numCapture)
	return regexp.Compile(expanded)
}

func keyValuePattern(names []string, kind Kind) (*regexp.Regexp, error) {
	value := numCapture
	if kind == KindText {
		value = `([^"'\n,}]+)`
	}
	return regexp.Compile(`(?i)["']?` + alternation(names) + `["']?\s*[:=]\s*["']?` + value)
}

func alternation(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			quoted = append(quoted, regexp.QuoteMeta(NormalizeText(item)))
		}
	}
	return "(?:" + strings.Join(quoted, "|") + ")"
}

func aliasKey(name string) string {
	name = strings.ToLower(NormalizeText(strings.TrimSpace(name)))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
}
