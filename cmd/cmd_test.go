package cmd

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thiagokokada/histget/internal/highlight"
)

const fakeHg = `case "$1" in
--version)
	echo "Mercurial Distributed SCM (version $HG_FAKE_VERSION)"
	;;
log)
	cat "$HG_FAKE_DATA/log.txt"
	;;
cat)
	printf 'package main\n' > "$5"
	;;
annotate)
	printf '0:bbbbbbbbbbbb|jane|\n1:aaaaaaaaaaaa|john|\n'
	;;
*)
	exit 255
	;;
esac
`

const fakeLog = "1:aaaaaaaaaaaa\t\"Jane <jane@example.com>\"\t2024-01-02T10:00:00Z\t[\"main.go\"]\t\"Second\"\n" +
	"0:bbbbbbbbbbbb\t\"Jane <jane@example.com>\"\t2024-01-01T10:00:00Z\t[\"main.go\"]\t\"First\"\n"

type fixture struct {
	root string
	tool string
	args []string
}

// newFixture creates a Mercurial working copy served by a fake hg reporting
// version.
func newFixture(t *testing.T, version string) fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	data := t.TempDir()
	if err := os.WriteFile(filepath.Join(data, "log.txt"), []byte(fakeLog), 0o644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\nHG_FAKE_DATA='" + data + "'\nHG_FAKE_VERSION='" + version + "'\n" + fakeHg
	tool := filepath.Join(data, "hg")
	if err := os.WriteFile(tool, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".hg", "store"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return fixture{
		root: root,
		tool: tool,
		args: []string{"-command", tool, "-config", filepath.Join(data, "missing.yaml")},
	}
}

func (f fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out strings.Builder
	err := run(context.Background(), append(append([]string(nil), f.args...), args...), &out)
	return out.String(), err
}

func TestRun_History(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "6.1.1")
	file := filepath.Join(f.root, "main.go")
	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{name: "all", args: []string{"history", file}, want: []string{"revision 1:aaaaaaaaaaaa", "revision 0:bbbbbbbbbbbb", "    Second"}},
		{name: "since", args: []string{"history", "-since", "0:bbbbbbbbbbbb", file}, want: []string{"revision 1:aaaaaaaaaaaa"}, notWant: []string{"revision 0:"}},
		{name: "limit", args: []string{"history", "-limit", "1", f.root}, want: []string{"revision 1:"}, notWant: []string{"revision 0:"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.run(t, tt.args...)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output unexpectedly contains %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestRun_HistoryUnknownSince(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "6.1.1")
	_, err := f.run(t, "history", "-since", "7:cccccccccccc", f.root)
	if err == nil || !strings.Contains(err.Error(), "not found in the repository") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestRun_Annotate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "6.1.1")
	out, err := f.run(t, "annotate", filepath.Join(f.root, "main.go"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out)
	}
	if !strings.Contains(lines[1], "1:aaaaaaaaaaaa john") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestRun_AnnotateSummary(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "6.1.1")
	out, err := f.run(t, "annotate", "-summary", filepath.Join(f.root, "main.go"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, w := range []string{
		"2 lines, 2 revisions, 2 authors\n",
		"revisions: 0:bbbbbbbbbbbb 1:aaaaaaaaaaaa\n",
		"authors: jane john\n",
	} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestRun_Get(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "6.1.1")
	file := filepath.Join(f.root, "main.go")
	out, err := f.run(t, "get", "-rev", "1:aaaaaaaaaaaa", file)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "package main\n" {
		t.Fatalf("unexpected content %q", out)
	}

	out, err = f.run(t, "get", "-rev", "1:aaaaaaaaaaaa", "-highlight", "-mode", "dark", file)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if highlight.Enabled && !strings.Contains(out, "\x1b[") {
		t.Fatalf("expected highlighted output, got %q", out)
	}

	if _, err := f.run(t, "get", file); err == nil {
		t.Fatal("expected error without -rev")
	}
}

func TestRun_Update(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "6.1.1")
	if _, err := f.run(t, "-backend", "hg", "update", f.root); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRun_VersionCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "3.9")
	_, err := f.run(t, "history", f.root)
	if err == nil || !strings.Contains(err.Error(), "-nocheck") {
		t.Fatalf("expected version check failure, got %v", err)
	}
	if _, err := f.run(t, "-nocheck", "history", f.root); err != nil {
		t.Fatalf("run with -nocheck: %v", err)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "6.1.1")
	tests := [][]string{
		{},
		{"frobnicate"},
		{"-backend", "svn", "history", f.root},
		{"history", f.root, f.root},
	}
	for _, args := range tests {
		if _, err := f.run(t, args...); err == nil {
			t.Errorf("run(%q): expected error", args)
		}
	}
}

func TestRun_Version(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "6.1.1")
	out, err := f.run(t, "-backend", "hg", "version", "-tools")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out, "histget ") {
		t.Fatalf("unexpected version line %q", out)
	}
	if !strings.Contains(out, f.tool+": 6.1.1") {
		t.Fatalf("expected fake hg version in %q", out)
	}
}

type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestRun_Watch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "6.1.1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, append(f.args, "watch", "-delay", "20ms", f.root), &out)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for i := 0; !strings.Contains(out.String(), "changed "); i++ {
		if time.Now().After(deadline) {
			t.Fatal("no change reported")
		}
		name := filepath.Join(f.root, ".hg", "store", "00changelog.i")
		if err := os.WriteFile(name, []byte{byte(i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}
