package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	dir  string
	base []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	return &cli{
		dir: dir,
		base: []string{
			"--log-level", "error",
			"--store-driver", "sqlite",
			"--store-path", filepath.Join(dir, "board.db"),
		},
	}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(append([]string{}, c.base...), args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedIsRepeatable(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "seed")
	require.NoError(t, err)
	assert.Equal(t, "seeded 25 patients\n", out)

	out, err = c.run(t, "seed")
	require.NoError(t, err)
	assert.Equal(t, "seeded 0 patients\n", out)
}

func TestSettingsImportAndGet(t *testing.T) {
	c := newCLI(t)
	file := filepath.Join(c.dir, "settings.yaml")
	require.NoError(t, os.WriteFile(file, []byte("pharmacy_name: Eastside\nwaiter_due_minutes: 20\n"), 0o644))

	_, err := c.run(t, "settings", "import", file)
	require.NoError(t, err)

	out, err := c.run(t, "settings", "get")
	require.NoError(t, err)
	assert.Contains(t, out, `"pharmacy_name": "Eastside"`)
	assert.Contains(t, out, `"waiter_due_minutes": 20`)

	out, err = c.run(t, "settings", "export", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "pharmacy_name: Eastside")

	_, err = c.run(t, "settings", "export", "--format", "toml")
	assert.Error(t, err)
}

func TestBoardAndAudit(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "board", "production")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")

	_, err = c.run(t, "board", "lobby")
	assert.Error(t, err)

	out, err = c.run(t, "audit", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "ACTION")
}

func TestSnapshotTakeAndShow(t *testing.T) {
	c := newCLI(t)
	snaps := filepath.Join(c.dir, "snapshots")

	out, err := c.run(t, "snapshot", "take", "--dir", snaps)
	require.NoError(t, err)
	assert.Contains(t, out, snaps)

	out, err = c.run(t, "snapshot", "show", "--dir", snaps)
	require.NoError(t, err)
	assert.Contains(t, out, "orders: 0")
}

func TestMigrateRejectsUnknownDriver(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "sqlite store is up to date\n", out)

	c.base = []string{"--store-driver", "mongo"}
	_, err = c.run(t, "migrate")
	assert.Error(t, err)
}
