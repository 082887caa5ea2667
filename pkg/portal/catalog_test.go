package portal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCatalog = Catalog{
	{Label: "Alpha", FileName: "a.csv"},
	{Label: "Beta", FileName: "b.csv"},
	{Label: "Gamma", FileName: "c.csv"},
}

func TestCatalogFilter(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{name: "no patterns selects all", patterns: nil, want: []string{"a.csv", "b.csv", "c.csv"}},
		{name: "exact label", patterns: []string{"Beta"}, want: []string{"b.csv"}},
		{name: "wildcard", patterns: []string{"*a"}, want: []string{"a.csv", "b.csv", "c.csv"}},
		{name: "order follows catalog", patterns: []string{"Gamma", "Alpha"}, want: []string{"a.csv", "c.csv"}},
		{name: "no match", patterns: []string{"Delta"}, want: nil},
		{name: "character class", patterns: []string{"[AB]*"}, want: []string{"a.csv", "b.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testCatalog.Filter(tt.patterns)
			require.NoError(t, err)

			var names []string
			for _, e := range got {
				names = append(names, e.FileName)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestCatalogFilterKeepsPairing(t *testing.T) {
	got, err := testCatalog.Filter([]string{"Gamma"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Entry{Label: "Gamma", FileName: "c.csv"}, got[0])
}

func TestCatalogFilterReturnsCopy(t *testing.T) {
	got, err := testCatalog.Filter(nil)
	require.NoError(t, err)
	got[0].FileName = "changed.csv"
	assert.Equal(t, "a.csv", testCatalog[0].FileName)
}

func TestCatalogFilterInvalidPattern(t *testing.T) {
	_, err := testCatalog.Filter([]string{"[unclosed"})
	assert.ErrorContains(t, err, "invalid catalog pattern")
}

func TestCatalogLabels(t *testing.T) {
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, testCatalog.Labels())
}

func TestFresh(t *testing.T) {
	dir := t.TempDir()
	today := time.Now()

	todayFile := filepath.Join(dir, "today.csv")
	require.NoError(t, os.WriteFile(todayFile, []byte("x"), 0o600))

	oldFile := filepath.Join(dir, "old.csv")
	require.NoError(t, os.WriteFile(oldFile, []byte("x"), 0o600))
	yesterday := today.AddDate(0, 0, -1)
	require.NoError(t, os.Chtimes(oldFile, yesterday, yesterday))

	fresh, err := Fresh(todayFile, today)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = Fresh(oldFile, today)
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = Fresh(filepath.Join(dir, "missing.csv"), today)
	require.NoError(t, err)
	assert.False(t, fresh)

	_, err = Fresh(dir, today)
	assert.ErrorContains(t, err, "is a directory")
}

func TestFreshUsesRunDate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	modified := time.Date(2024, 3, 9, 23, 50, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, modified, modified))

	fresh, err := Fresh(path, time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = Fresh(path, time.Date(2024, 3, 10, 0, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, fresh, "a file from before midnight is stale the next day")
}
