package repository

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeTool installs a fake command line tool implemented as a shell script
// and returns its path.
func writeTool(t *testing.T, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake %s: %v", name, err)
	}
	return path
}

// openFake opens a backend of kind rooted in a new temporary directory and
// driven by command.
func openFake(t *testing.T, kind Kind, command string, verbose bool) (Repository, string) {
	t.Helper()
	root := t.TempDir()
	cfg := NewConfig(kind, root)
	cfg.Command = command
	cfg.Verbose = verbose
	cfg.TempDir = t.TempDir()
	repo, err := Open(kind, cfg)
	if err != nil {
		t.Fatalf("Open(%s): %v", kind, err)
	}
	return repo, cfg.TempDir
}

func readAllAndClose(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("close content: %v", err)
	}
	return string(data)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected %s to be empty, found %v", dir, names)
	}
}
