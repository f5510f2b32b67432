package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/thiagokokada/histget/internal/history"
)

type clearCase struct {
	base
}

func (c *clearCase) Kind() Kind {
	return KindClearCase
}

func (c *clearCase) History(ctx context.Context, path string, since string) (*history.History, error) {
	abs, rel, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	dir := isDir(abs)
	var h *history.History
	err = run(ctx, c.cfg.Root, c.historyArgs(rel, dir), func(r io.Reader) error {
		var err error
		h, err = parseClearCaseHistory(r, rel, dir, c.cfg.Verbose)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("history", slog.String("path", rel), slog.Int("entries", h.Len()))
	if since != "" {
		return h.Since(since)
	}
	return h, nil
}

func (c *clearCase) historyArgs(rel string, dir bool) []string {
	argv := []string{c.cfg.Command, "lshistory"}
	if dir {
		argv = append(argv, "-dir")
	}
	if rel == "" {
		rel = "."
	}
	return append(argv, "-fmt", clearCaseHistoryFormat, rel)
}

func (c *clearCase) Get(ctx context.Context, parentDir, baseName, revision string) (io.ReadCloser, error) {
	_, rel, err := c.resolve(filepath.Join(parentDir, baseName))
	if err != nil {
		return nil, err
	}
	rc, err := fetchContent(ctx, c.cfg, rel, revision, c.getArgs)
	if err != nil {
		slog.Error("get historical content",
			slog.String("path", rel),
			slog.String("revision", revision),
			slog.Any("error", err),
		)
		return nil, err
	}
	return rc, nil
}

func (c *clearCase) getArgs(rel, revision, dest string) ([]string, bool) {
	return []string{c.cfg.Command, "get", "-to", dest, filepath.FromSlash(rel) + "@@" + revision}, false
}

// Annotate runs in the directory of the file, the way cleartool expects
// element names. A failing exit status is tolerated once lines were produced.
func (c *clearCase) Annotate(ctx context.Context, path, revision string) (*history.Annotation, error) {
	abs, _, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(abs)
	target := name
	if revision != "" {
		target += "@@" + revision
	}
	argv := []string{c.cfg.Command, "annotate", "-nheader", "-out", "-", "-f", "-fmt", clearCaseAnnotateFormat, target}
	p, err := startProcess(ctx, filepath.Dir(abs), argv, nil)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	a, err := parseClearCaseAnnotation(p.Stdout(), name)
	if err != nil {
		return nil, err
	}
	return tolerateAnnotateExit(a, p.Wait())
}

func tolerateAnnotateExit(a *history.Annotation, waitErr error) (*history.Annotation, error) {
	if waitErr == nil {
		return a, nil
	}
	var exitErr *NonZeroExitError
	if errors.As(waitErr, &exitErr) && a.Size() > 0 {
		slog.Warn("annotate exited with failure, keeping partial result",
			slog.String("file", a.FileName),
			slog.Int("lines", a.Size()),
			slog.Any("error", waitErr),
		)
		return a, nil
	}
	return nil, waitErr
}

// UpdateState is a step of the snapshot view refresh.
type UpdateState uint8

const (
	UpdateProbing UpdateState = iota
	UpdateSnapshotDetected
	UpdateNotSnapshot
	UpdateUpdated
	UpdateFailed
)

func (s UpdateState) String() string {
	switch s {
	case UpdateProbing:
		return "probing"
	case UpdateSnapshotDetected:
		return "snapshot detected"
	case UpdateNotSnapshot:
		return "not a snapshot"
	case UpdateUpdated:
		return "updated"
	case UpdateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Update refreshes snapshot views; dynamic views always show the latest
// versions and are left alone.
func (c *clearCase) Update(ctx context.Context) error {
	slog.Debug("update", slog.String("root", c.cfg.Root), slog.String("state", UpdateProbing.String()))
	state, err := c.update(ctx)
	slog.Debug("update", slog.String("root", c.cfg.Root), slog.String("state", state.String()))
	return err
}

func (c *clearCase) update(ctx context.Context) (UpdateState, error) {
	var snapshot bool
	err := run(ctx, c.cfg.Root, []string{c.cfg.Command, "catcs"}, func(r io.Reader) error {
		var err error
		snapshot, err = detectSnapshotView(r)
		return err
	})
	if err != nil {
		return UpdateFailed, fmt.Errorf("update: probe view: %w", err)
	}
	if !snapshot {
		return UpdateNotSnapshot, nil
	}
	slog.Debug("update", slog.String("root", c.cfg.Root), slog.String("state", UpdateSnapshotDetected.String()))
	if err := run(ctx, c.cfg.Root, []string{c.cfg.Command, "update", "-overwrite", "-f"}, nil); err != nil {
		return UpdateFailed, fmt.Errorf("update: %w", err)
	}
	return UpdateUpdated, nil
}

func (c *clearCase) SupportsAnnotation() bool {
	return true
}

// FileHasHistory is always true; lshistory prints nothing for elements
// without history.
func (c *clearCase) FileHasHistory(string) bool {
	return true
}
