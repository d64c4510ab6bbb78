package harness

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"compare_names.yaml", "undo_disconnect.yaml"} {
		data, err := os.ReadFile(filepath.Join("testdata/scenarios", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("name: broken\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failing.yaml"), []byte(`
name: failing
description: d
steps:
  - {do: add, type: Source, label: a}
assertions:
  - {type: node_count, count: 2}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	res, err := RunSuite([]string{dir}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "broken.yml", res.Failures[0].Scenario)
	assert.Equal(t, "failing", res.Failures[1].Scenario)
}

func TestExpandPaths_Missing(t *testing.T) {
	_, err := ExpandPaths([]string{"testdata/none"})
	require.Error(t, err)
}
