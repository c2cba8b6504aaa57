package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vestiar/schedule"
)

func TestRegistryLookupAndAdd(t *testing.T) {
	r := NewRegistry("")

	_, found := r.Lookup(123)
	require.False(t, found)

	require.NoError(t, r.Add(123, "Ana", "Pop"))
	p, found := r.Lookup(123)
	require.True(t, found)
	require.Equal(t, "Ana", p.First)
	require.Equal(t, "Pop", p.Last)

	require.Error(t, r.Add(123, "", ""))
	require.Equal(t, 1, r.Count())
}

func TestRegistryReplaceAllAcceptsBareIntegers(t *testing.T) {
	r := NewRegistry("")
	require.NoError(t, r.ReplaceAll([]byte(`[123, {"id":456,"first":"Ana","last":"Pop"}, 789]`)))
	require.Equal(t, 3, r.Count())

	p, found := r.Lookup(456)
	require.True(t, found)
	require.Equal(t, "Ana", p.First)

	p, found = r.Lookup(123)
	require.True(t, found)
	require.Empty(t, p.First)
}

func TestRegistryReplaceAllKeepsOldOnParseError(t *testing.T) {
	r := NewRegistry("")
	require.NoError(t, r.ReplaceAll([]byte(`[123]`)))

	require.Error(t, r.ReplaceAll([]byte(`[123, "nonsense"]`)))
	require.Error(t, r.ReplaceAll([]byte(`not json`)))

	require.Equal(t, 1, r.Count())
	_, found := r.Lookup(123)
	require.True(t, found)
}

func TestRegistryPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "registry.json")

	r := NewRegistry(path)
	require.NoError(t, r.Add(123, "Ana", "Pop"))
	require.NoError(t, r.Add(456, "", ""))

	r2 := NewRegistry(path)
	require.NoError(t, r2.LoadFromFile())
	require.Equal(t, 2, r2.Count())
	p, found := r2.Lookup(123)
	require.True(t, found)
	require.Equal(t, "Pop", p.Last)
}

func TestRegistryLoadMissingFileStartsEmpty(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, r.LoadFromFile())
	require.Equal(t, 0, r.Count())
}

func TestMasterCodePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code.json")

	// No file yet: the configured seed wins.
	require.Equal(t, "4711", loadMasterCode(path, "4711"))

	require.NoError(t, saveMasterCode(path, "1234"))
	require.Equal(t, "1234", loadMasterCode(path, "4711"))

	// Corrupt file falls back to the seed.
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	require.Equal(t, "4711", loadMasterCode(path, "4711"))
}

func TestRulesPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")

	rules, err := loadRules(path)
	require.NoError(t, err)
	require.Empty(t, rules)

	in := []schedule.Rule{
		{Days: schedule.Weekdays, Minute: 7*60 + 30, Action: schedule.ActionUnlock, Note: "opening"},
		{Days: 1 << 6, Minute: 22 * 60, Action: schedule.ActionLock, Note: "sunday close"},
	}
	require.NoError(t, saveRules(path, in))

	out, err := loadRules(path)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestLoadRulesRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rules":[{"time":"25:00","action":"LOCK"}]}`), 0644))

	_, err := loadRules(path)
	require.Error(t, err)
}
