package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCommunityFile(t *testing.T, path, domain string) {
	t.Helper()
	doc := `{"version":"1.0","domains":{"` + domain + `":{"login_url":"https://` + domain + `/login","confidence":0.9,"steps":[{"action":"fill_credentials"}]}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
}

func TestImportPendingAppliesFreshDrops(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "rules.json"), nil)

	dropDir := filepath.Join(dir, "community")
	require.NoError(t, os.MkdirAll(dropDir, 0o755))
	writeCommunityFile(t, filepath.Join(dropDir, "drop.json"), "fresh.example")

	w := NewImportWatcher(store, dropDir, nil)
	w.importPending()

	rule, ok := store.RuleForDomain("fresh.example")
	require.True(t, ok)
	assert.Equal(t, ProvenanceCommunity, rule.Provenance)

	// The drop is marked processed exactly once.
	_, err := os.Stat(filepath.Join(dropDir, "drop.json.imported"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dropDir, "drop.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestImportPendingReplaysProcessedDrops(t *testing.T) {
	dir := t.TempDir()
	dropDir := filepath.Join(dir, "community")
	require.NoError(t, os.MkdirAll(dropDir, 0o755))
	writeCommunityFile(t, filepath.Join(dropDir, "earlier.json.imported"), "replay.example")

	store := NewStore(filepath.Join(dir, "rules.json"), nil)
	w := NewImportWatcher(store, dropDir, nil)
	w.importPending()

	rule, ok := store.RuleForDomain("replay.example")
	require.True(t, ok)
	assert.Equal(t, ProvenanceCommunity, rule.Provenance)

	// Replayed files keep their name; no .imported.imported chains.
	entries, err := os.ReadDir(dropDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "earlier.json.imported", entries[0].Name())
}

func TestCommunityRulesSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.json")
	dropDir := filepath.Join(dir, "community")
	require.NoError(t, os.MkdirAll(dropDir, 0o755))
	writeCommunityFile(t, filepath.Join(dropDir, "drop.json"), "shared.example")

	store := NewStore(rulesPath, nil)
	NewImportWatcher(store, dropDir, nil).importPending()
	_, ok := store.RuleForDomain("shared.example")
	require.True(t, ok)

	// A fresh store starts without the community layer; replaying the
	// processed drop restores it.
	reloaded := NewStore(rulesPath, nil)
	_, ok = reloaded.RuleForDomain("shared.example")
	require.False(t, ok)

	NewImportWatcher(reloaded, dropDir, nil).importPending()
	rule, ok := reloaded.RuleForDomain("shared.example")
	require.True(t, ok)
	assert.Equal(t, ProvenanceCommunity, rule.Provenance)
}
