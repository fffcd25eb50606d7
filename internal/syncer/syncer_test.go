package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gosum-mcp/internal/storage"
	"github.com/dshills/gosum-mcp/pkg/types"
)

func setupSyncer(t *testing.T) (*Syncer, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store), store
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

func TestSyncProject(t *testing.T) {
	ctx := context.Background()

	t.Run("first sync registers all source files", func(t *testing.T) {
		s, _ := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"main.go":          "package main\n\nfunc main() {}\n",
			"internal/util.go": "package internal\n\nfunc Util() {}\n",
			"README.txt":       "not a source file",
		})

		project, result, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Created)
		assert.Zero(t, result.Updated)
		assert.Equal(t, 2, project.TotalFiles)
	})

	t.Run("second sync reports unchanged", func(t *testing.T) {
		s, _ := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{"a.go": "package a\n"})

		_, _, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)

		_, result, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)
		assert.Zero(t, result.Created)
		assert.Equal(t, 1, result.Unchanged)
	})

	t.Run("changed summarized file goes stale", func(t *testing.T) {
		s, store := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{"a.go": "package a\n"})

		project, _, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)

		file, err := store.GetFile(ctx, project.ID, "a.go")
		require.NoError(t, err)
		require.NoError(t, store.UpdateFileSummary(ctx, file.ID, "the a package", time.Now(), file.ContentHash))

		writeTree(t, root, map[string]string{"a.go": "package a\n\nvar Changed = true\n"})
		_, result, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Updated)

		got, err := store.GetFile(ctx, project.ID, "a.go")
		require.NoError(t, err)
		assert.Equal(t, types.StatusStale, got.Status)
		assert.Equal(t, "the a package", got.Summary)
		assert.True(t, got.ContentChangedSinceSummary())
	})

	t.Run("changed unsummarized file stays unsummarized", func(t *testing.T) {
		s, store := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{"b.go": "package b\n"})

		project, _, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)

		writeTree(t, root, map[string]string{"b.go": "package b\n\nvar X = 2\n"})
		_, _, err = s.SyncProject(ctx, root, nil)
		require.NoError(t, err)

		got, err := store.GetFile(ctx, project.ID, "b.go")
		require.NoError(t, err)
		assert.Equal(t, types.StatusUnsummarized, got.Status)
	})

	t.Run("empty files are skipped", func(t *testing.T) {
		s, store := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{"empty.go": ""})

		project, _, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)

		got, err := store.GetFile(ctx, project.ID, "empty.go")
		require.NoError(t, err)
		assert.Equal(t, types.StatusSkipped, got.Status)
	})

	t.Run("files removed from disk are pruned", func(t *testing.T) {
		s, store := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"keep.go": "package keep\n",
			"gone.go": "package gone\n",
		})

		project, _, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)

		require.NoError(t, os.Remove(filepath.Join(root, "gone.go")))
		project, result, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Deleted)
		assert.Equal(t, 1, project.TotalFiles)

		_, err = store.GetFile(ctx, project.ID, "gone.go")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		got, err := store.GetFile(ctx, project.ID, "keep.go")
		require.NoError(t, err)
		assert.Equal(t, types.StatusUnsummarized, got.Status)
	})

	t.Run("oversize files are fingerprinted but not stored", func(t *testing.T) {
		s, store := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{"big.go": "package big\n\nvar blob = \"0123456789\"\n"})
		config := &Config{IncludeTests: true, MaxFileBytes: 16}

		project, result, err := s.SyncProject(ctx, root, config)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Created)

		got, err := store.GetFile(ctx, project.ID, "big.go")
		require.NoError(t, err)
		assert.Equal(t, types.StatusSkipped, got.Status)
		assert.NotEqual(t, [32]byte{}, got.ContentHash)

		content, err := store.GetFileContent(ctx, got.ID)
		require.NoError(t, err)
		assert.Empty(t, content)

		// Unchanged on the next pass, no re-upsert
		_, result, err = s.SyncProject(ctx, root, config)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Unchanged)
		assert.Zero(t, result.Skipped)
	})

	t.Run("changed oversize file with a summary goes stale", func(t *testing.T) {
		s, store := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{"big.go": "package big\n"})

		project, _, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)

		file, err := store.GetFile(ctx, project.ID, "big.go")
		require.NoError(t, err)
		require.NoError(t, store.UpdateFileSummary(ctx, file.ID, "the big package", time.Now(), file.ContentHash))

		// The file grows past the limit with new content
		writeTree(t, root, map[string]string{"big.go": "package big\n\nvar grown = true\n"})
		_, _, err = s.SyncProject(ctx, root, &Config{IncludeTests: true, MaxFileBytes: 16})
		require.NoError(t, err)

		got, err := store.GetFile(ctx, project.ID, "big.go")
		require.NoError(t, err)
		assert.Equal(t, types.StatusStale, got.Status)
		assert.Equal(t, "the big package", got.Summary)
	})

	t.Run("hidden and vendor directories are skipped", func(t *testing.T) {
		s, _ := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"real.go":              "package real\n",
			".git/hook.go":         "package hook\n",
			"vendor/dep/dep.go":    "package dep\n",
			"node_modules/x/x.js":  "module.exports = 1\n",
			"__pycache__/cache.py": "cached = True\n",
		})

		_, result, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Created)
	})

	t.Run("test files excluded when configured", func(t *testing.T) {
		s, _ := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"a.go":      "package a\n",
			"a_test.go": "package a\n",
		})

		_, result, err := s.SyncProject(ctx, root, &Config{IncludeTests: false})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Created)
	})

	t.Run("missing root fails", func(t *testing.T) {
		s, _ := setupSyncer(t)
		_, _, err := s.SyncProject(ctx, filepath.Join(t.TempDir(), "nope"), nil)
		assert.Error(t, err)
	})

	t.Run("records imports and identifiers", func(t *testing.T) {
		s, store := setupSyncer(t)
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"svc.go": "package svc\n\nimport \"fmt\"\n\nfunc Serve() {}\n\ntype Handler struct{}\n",
		})

		project, _, err := s.SyncProject(ctx, root, nil)
		require.NoError(t, err)

		got, err := store.GetFile(ctx, project.ID, "svc.go")
		require.NoError(t, err)
		assert.Contains(t, got.Imports, "fmt")
		assert.Contains(t, got.Identifiers, "Serve")
		assert.Contains(t, got.Identifiers, "Handler")
	})
}

func TestExtractImports(t *testing.T) {
	t.Run("go single and block imports", func(t *testing.T) {
		src := "package x\n\nimport \"fmt\"\n\nimport (\n\t\"os\"\n\tlog \"github.com/rs/zerolog\"\n)\n"
		imports := extractImports(src)
		assert.Contains(t, imports, "fmt")
		assert.Contains(t, imports, "os")
		assert.Contains(t, imports, "github.com/rs/zerolog")
	})

	t.Run("python from import", func(t *testing.T) {
		src := "from os.path import join\nimport sys\n"
		imports := extractImports(src)
		assert.Contains(t, imports, "os.path")
		assert.Contains(t, imports, "sys")
	})

	t.Run("javascript require and import", func(t *testing.T) {
		src := "const fs = require('fs')\nimport React from 'react'\n"
		imports := extractImports(src)
		assert.Contains(t, imports, "fs")
		assert.Contains(t, imports, "react")
	})

	t.Run("c include", func(t *testing.T) {
		imports := extractImports("#include <stdio.h>\n#include \"local.h\"\n")
		assert.Contains(t, imports, "stdio.h")
		assert.Contains(t, imports, "local.h")
	})

	t.Run("deduplicates and sorts", func(t *testing.T) {
		imports := extractImports("import \"fmt\"\nimport \"fmt\"\nimport \"bytes\"\n")
		assert.Equal(t, []string{"bytes", "fmt"}, imports)
	})
}

func TestExtractIdentifiers(t *testing.T) {
	t.Run("go declarations", func(t *testing.T) {
		src := "package x\n\nfunc Run() {}\n\nfunc (s *Server) Serve() {}\n\ntype Config struct{}\n\nconst MaxSize = 10\n"
		idents := extractIdentifiers(src)
		assert.Contains(t, idents, "Run")
		assert.Contains(t, idents, "Serve")
		assert.Contains(t, idents, "Config")
		assert.Contains(t, idents, "MaxSize")
	})

	t.Run("python declarations", func(t *testing.T) {
		idents := extractIdentifiers("class Tracker:\n    pass\n\ndef sync_files():\n    pass\n")
		assert.Contains(t, idents, "Tracker")
		assert.Contains(t, idents, "sync_files")
	})

	t.Run("javascript declarations", func(t *testing.T) {
		idents := extractIdentifiers("function handleClick() {}\nconst MAX_RETRIES = 3\n")
		assert.Contains(t, idents, "handleClick")
		assert.Contains(t, idents, "MAX_RETRIES")
	})
}

func TestIsTestFile(t *testing.T) {
	assert.True(t, isTestFile("pkg/foo_test.go"))
	assert.True(t, isTestFile("test_models.py"))
	assert.True(t, isTestFile("button.spec.ts"))
	assert.True(t, isTestFile("api.test.js"))
	assert.False(t, isTestFile("tester.go"))
	assert.False(t, isTestFile("contest.py"))
}
