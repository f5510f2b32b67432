package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

const tempPrefix = "histget-"

// materializer builds the command writing rel as of revision to dest. When
// toStdout is set the tool prints the content and the caller redirects it.
type materializer func(rel, revision, dest string) (argv []string, toStdout bool)

// fetchContent materializes rel as of revision into a fresh temporary file
// and returns a reader that deletes the file when closed.
func fetchContent(ctx context.Context, cfg Config, rel, revision string, materialize materializer) (io.ReadCloser, error) {
	if rel == "" {
		return nil, errors.New("file not specified")
	}
	if revision == "" {
		return nil, errors.New("revision not specified")
	}
	tmp := filepath.Join(cfg.TempDir, tempPrefix+uuid.NewString()+".tmp")
	// Some tools refuse to write to a path that already exists.
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("prepare temporary file: %w", err)
	}

	argv, toStdout := materialize(rel, revision, tmp)
	var out *os.File
	var stdout io.Writer
	if toStdout {
		f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create temporary file: %w", err)
		}
		out, stdout = f, f
	}

	p, err := startProcess(ctx, cfg.Root, argv, stdout)
	if err != nil {
		discardPartial(out, tmp, nil)
		return nil, err
	}
	waitErr := p.Wait()
	p.Close()
	if waitErr != nil {
		discardPartial(out, tmp, nil)
		return nil, waitErr
	}
	if out != nil {
		if err := out.Close(); err != nil {
			discardPartial(nil, tmp, err)
			return nil, fmt.Errorf("write temporary file: %w", err)
		}
	}

	f, err := os.Open(tmp)
	if err != nil {
		discardPartial(nil, tmp, nil)
		return nil, fmt.Errorf("%s did not produce %s: %w", p.name, rel, err)
	}
	return &tempFile{File: f, path: tmp}, nil
}

// discardPartial removes what a failed fetch left behind.
func discardPartial(out *os.File, path string, cause error) {
	var result *multierror.Error
	if cause != nil {
		result = multierror.Append(result, cause)
	}
	if out != nil {
		if err := out.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		deferRemoval(path)
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		slog.Warn("temporary file cleanup", slog.String("path", path), slog.Any("error", err))
	}
}

// tempFile is a materialized revision. Close removes the file exactly once;
// when that fails the removal is retried by Cleanup.
type tempFile struct {
	*os.File
	path string

	once     sync.Once
	closeErr error
}

func (t *tempFile) Close() error {
	t.once.Do(func() {
		t.closeErr = t.File.Close()
		if err := os.Remove(t.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("remove temporary file, deferring",
				slog.String("path", t.path),
				slog.Any("error", err),
			)
			deferRemoval(t.path)
		}
	})
	return t.closeErr
}

var pendingRemovals struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func deferRemoval(path string) {
	pendingRemovals.mu.Lock()
	defer pendingRemovals.mu.Unlock()
	if pendingRemovals.paths == nil {
		pendingRemovals.paths = make(map[string]struct{})
	}
	pendingRemovals.paths[path] = struct{}{}
}

// PendingRemovals lists temporary files whose removal was deferred.
func PendingRemovals() []string {
	pendingRemovals.mu.Lock()
	defer pendingRemovals.mu.Unlock()
	paths := make([]string, 0, len(pendingRemovals.paths))
	for p := range pendingRemovals.paths {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Cleanup removes the temporary files whose removal failed earlier. Programs
// call it once before exiting.
func Cleanup() error {
	pendingRemovals.mu.Lock()
	defer pendingRemovals.mu.Unlock()
	var result *multierror.Error
	for p := range pendingRemovals.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
			continue
		}
		delete(pendingRemovals.paths, p)
	}
	return result.ErrorOrNil()
}
