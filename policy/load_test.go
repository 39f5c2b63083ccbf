package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRulesFile_EmptyPathYieldsNoRules(t *testing.T) {
	rules, err := LoadRulesFile("")
	require.NoError(t, err)
	require.Nil(t, rules)
}

func TestLoadRulesFile_ParsesJSONArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"pattern": "refs/heads/main", "lock": true},
		{"pattern": "refs/heads/**", "requiredReviews": 2, "requireLinearHistory": true}
	]`), 0o644))

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.True(t, rules[0].Lock)
	require.Equal(t, 2, rules[1].RequiredReviews)
	require.True(t, rules[1].RequireLinearHistory)
}

func TestLoadRulesFile_MissingFile(t *testing.T) {
	_, err := LoadRulesFile("/nonexistent/path/rules.json")
	require.Error(t, err)
}
