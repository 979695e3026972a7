package extraction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulesCoverEveryField(t *testing.T) {
	rules := DefaultRules()
	for _, key := range FieldKeys {
		rule, ok := rules.Rule(key)
		require.True(t, ok, key)
		assert.NotEmpty(t, rule.Patterns, key)
	}
}

func TestResolveAliases(t *testing.T) {
	rules := DefaultRules()
	cases := map[string]string{
		"shaho_count":     KeyShahoCount,
		"ShahoCount":      KeyShahoCount,
		"SHAHO-COUNT":     KeyShahoCount,
		"社保件数":            KeyShahoCount,
		"buppan_amount":   KeyBushanAmount,
		"uninsured_count": KeyHokenNashiCount,
	}
	for name, want := range cases {
		got, ok := rules.Resolve(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := rules.Resolve("workflow_run_id")
	assert.False(t, ok)
}

func TestLoadRulesRejectsBadInput(t *testing.T) {
	_, err := LoadRules([]byte("fields: []"))
	assert.Error(t, err)

	_, err = LoadRules([]byte("fields:\n  - key: nope\n    kind: count\n"))
	assert.ErrorContains(t, err, "unknown field")

	_, err = LoadRules([]byte("fields:\n  - key: shaho_count\n    kind: weight\n"))
	assert.ErrorContains(t, err, "invalid kind")

	_, err = LoadRules([]byte("fields:\n  - key: shaho_count\n    kind: count\n    labels: ['社保']\n    patterns: ['{label}(']\n"))
	assert.Error(t, err)
}

func TestLoadRulesFileCustomLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := "templates:\n  count:\n    - '{label}[^\\n0-9]{0,10}?{num}\\s*件'\nfields:\n  - key: shaho_count\n    kind: count\n    labels: ['SHA']\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)

	fields := New(rules).MineText("SHA 41件")
	assert.Equal(t, "41", fields.ShahoCount)

	_, err = LoadRulesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDisplayLabel(t *testing.T) {
	rules := DefaultRules()
	assert.Equal(t, "社保 件数", rules.DisplayLabel(KeyShahoCount))
	assert.Equal(t, "国保 金額", rules.DisplayLabel(KeyKokuhoAmount))
	assert.Equal(t, "物販 内容", rules.DisplayLabel(KeyBushanNote))
	assert.Equal(t, "前回差額", rules.DisplayLabel(KeyPreviousDifference))
	assert.Equal(t, "unknown", rules.DisplayLabel("unknown"))
	assert.Equal(t, FieldKeys, rules.Keys())
}
