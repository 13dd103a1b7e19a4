package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"
)

func newTestContext(t *testing.T, dataDir string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range commonFlags {
		f.Apply(set)
	}
	require.NoError(t, set.Parse([]string{"-datadir", dataDir}))
	app := cli.NewApp()
	return cli.NewContext(app, set, nil)
}

func TestRunInitCreatesIndexDir(t *testing.T) {
	dataDir := t.TempDir()
	ctx := newTestContext(t, dataDir)

	err := runInit(ctx)
	require.NoError(t, err)

	fi, err := os.Stat(filepath.Join(dataDir, "bp-index"))
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestRunInitFailsIfIndexAlreadyExists(t *testing.T) {
	dataDir := t.TempDir()
	ctx := newTestContext(t, dataDir)

	require.NoError(t, runInit(ctx))

	err := runInit(ctx)
	require.Error(t, err)
	exitErr, ok := err.(*cli.ExitError)
	require.True(t, ok)
	require.Equal(t, exitDbAlreadyExists, exitErr.ExitCode())
}

func TestSplitNonEmpty(t *testing.T) {
	require.Nil(t, splitNonEmpty("", ','))
	require.Equal(t, []string{"a", "b", "c"}, splitNonEmpty("a,b,c", ','))
	require.Equal(t, []string{"a", "b"}, splitNonEmpty("a,,b,", ','))
}
