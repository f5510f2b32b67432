package repository

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStartProcess_Missing(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "no-such-tool")
	_, err := startProcess(context.Background(), "", []string{missing, "log"}, nil)
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if spawnErr.Command != "no-such-tool log" {
		t.Fatalf("unexpected command: %q", spawnErr.Command)
	}
}

func TestStartProcess_Empty(t *testing.T) {
	t.Parallel()

	if _, err := startProcess(context.Background(), "", nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	t.Parallel()

	tool := writeTool(t, "tool", "echo partial\necho 'boom happened' >&2\nexit 3\n")
	err := run(context.Background(), "", []string{tool, "log"}, nil)
	var exitErr *NonZeroExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected NonZeroExitError, got %v", err)
	}
	if exitErr.ExitCode != 3 || exitErr.Stderr != "boom happened" {
		t.Fatalf("unexpected error fields: %+v", exitErr)
	}
	if !strings.Contains(err.Error(), "tool log: exit status 3: boom happened") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestRun_ParseErrorStopsProcess(t *testing.T) {
	t.Parallel()

	tool := writeTool(t, "tool", "echo first\nexec sleep 30\n")
	parseErr := errors.New("bad output")
	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), "", []string{tool}, func(r io.Reader) error {
			lr := newLineReader(r)
			if _, err := lr.next(); err != nil {
				return err
			}
			return parseErr
		})
	}()
	select {
	case err := <-done:
		if !errors.Is(err, parseErr) {
			t.Fatalf("expected parse error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not kill the unfinished process")
	}
}

func TestWait_DrainsLargeOutput(t *testing.T) {
	t.Parallel()

	// Far more than a pipe buffer holds; the tool blocks unless drained.
	tool := writeTool(t, "tool", "i=0\nwhile [ $i -lt 20000 ]; do echo 'xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx'; i=$((i+1)); done\n")
	p, err := startProcess(context.Background(), "", []string{tool}, nil)
	if err != nil {
		t.Fatalf("startProcess: %v", err)
	}
	defer p.Close()
	done := make(chan error, 1)
	go func() { done <- p.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Wait blocked on a full pipe")
	}
}

func TestClose_KillsUnfinishedProcess(t *testing.T) {
	t.Parallel()

	tool := writeTool(t, "tool", "exec sleep 30\n")
	p, err := startProcess(context.Background(), "", []string{tool}, nil)
	if err != nil {
		t.Fatalf("startProcess: %v", err)
	}
	start := time.Now()
	p.Close()
	if !p.waited.Load() {
		t.Fatal("process was not reaped")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("Close took %v", elapsed)
	}
	// A second Close is a no-op.
	p.Close()
}

func TestWait_ContextCanceled(t *testing.T) {
	t.Parallel()

	tool := writeTool(t, "tool", "exec sleep 30\n")
	ctx, cancel := context.WithCancel(context.Background())
	p, err := startProcess(ctx, "", []string{tool}, nil)
	if err != nil {
		t.Fatalf("startProcess: %v", err)
	}
	defer p.Close()
	cancel()
	if err := p.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestProcess_WorkingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tool := writeTool(t, "tool", "pwd\n")
	var out strings.Builder
	err := run(context.Background(), dir, []string{tool}, func(r io.Reader) error {
		_, err := io.Copy(&out, r)
		return err
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(out.String()))
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Fatalf("working directory = %q, want %q", got, want)
	}
}

func TestCommandName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		argv []string
		want string
	}{
		{argv: []string{"hg", "log", "--template", "x"}, want: "hg log"},
		{argv: []string{"/usr/bin/git", "--no-pager", "show", "HEAD:./a"}, want: "git show"},
		{argv: []string{`C:\bin\cleartool.exe`, "lshistory", "-dir"}, want: "cleartool.exe lshistory"},
		{argv: []string{"cleartool", "-version"}, want: "cleartool"},
		{argv: []string{"git", "-c", "core.quotePath=false", "--no-pager", "log"}, want: "git log"},
	}
	for _, tt := range tests {
		if got := commandName(tt.argv); got != tt.want {
			t.Errorf("commandName(%q) = %q, want %q", tt.argv, got, tt.want)
		}
	}
}

func TestCappedBuffer(t *testing.T) {
	t.Parallel()

	var b cappedBuffer
	chunk := []byte(strings.Repeat("e", 1024))
	for range 2 * maxStderr / len(chunk) {
		n, err := b.Write(chunk)
		if err != nil || n != len(chunk) {
			t.Fatalf("Write = %d, %v", n, err)
		}
	}
	if got := len(b.String()); got != maxStderr {
		t.Fatalf("buffer kept %d bytes, want %d", got, maxStderr)
	}
}

func TestLineReader(t *testing.T) {
	t.Parallel()

	lr := newLineReader(strings.NewReader("one\r\ntwo\n\nlast"))
	var got []string
	for {
		line, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, line)
	}
	want := []string{"one", "two", "", "last"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	if lr.line != 4 {
		t.Fatalf("line count = %d, want 4", lr.line)
	}
}
