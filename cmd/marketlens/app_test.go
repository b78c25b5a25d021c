package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"marketlens/internal/model"
)

type sinkFunc func(model.Report) error

func (f sinkFunc) SaveReport(_ context.Context, r model.Report) error { return f(r) }

func TestReportSinks_JoinsErrors(t *testing.T) {
	var got []string
	ok := sinkFunc(func(r model.Report) error {
		got = append(got, "ok:"+r.ID)
		return nil
	})
	bad := sinkFunc(func(model.Report) error { return errors.New("redis down") })

	err := reportSinks{bad, ok}.SaveReport(context.Background(), model.Report{ID: "r1"})
	require.EqualError(t, err, "redis down")
	require.Equal(t, []string{"ok:r1"}, got)

	require.NoError(t, reportSinks{ok}.SaveReport(context.Background(), model.Report{ID: "r2"}))
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"analyze", "watch", "serve"})

	analyze, _, err := root.Find([]string{"analyze"})
	require.NoError(t, err)
	require.NotNil(t, analyze.Flags().Lookup("balance"))
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestEnsureParentDir(t *testing.T) {
	root := t.TempDir()

	nested := filepath.Join(root, "data", "archive", "marketlens.db")
	require.NoError(t, ensureParentDir(nested))
	info, err := os.Stat(filepath.Dir(nested))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	require.NoError(t, ensureParentDir("marketlens.db"))

	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	err = ensureParentDir(filepath.Join(blocker, "sub", "marketlens.db"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "create")
}
