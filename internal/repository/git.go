package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/thiagokokada/histget/internal/history"
)

type gitRepo struct {
	base
}

func (g *gitRepo) Kind() Kind {
	return KindGit
}

func (g *gitRepo) History(ctx context.Context, path string, since string) (*history.History, error) {
	_, rel, err := g.resolve(path)
	if err != nil {
		return nil, err
	}
	format := gitLogSummaryFormat
	if g.cfg.Verbose {
		format = gitLogFormat
	}
	argv := []string{
		g.cfg.Command,
		"-c", "core.quotePath=false",
		"-c", "log.showSignature=false",
		"--no-pager",
		"log",
		"--no-color",
		"--no-decorate",
		"--name-only",
		"-z",
		// tformat terminates every record, including the last one.
		"--pretty=tformat:" + format,
	}
	if rel != "" {
		argv = append(argv, "--", rel)
	}
	var h *history.History
	err = run(ctx, g.cfg.Root, argv, func(r io.Reader) error {
		var err error
		h, err = parseGitLog(r)
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

func (g *gitRepo) Get(ctx context.Context, parentDir, baseName, revision string) (io.ReadCloser, error) {
	_, rel, err := g.resolve(filepath.Join(parentDir, baseName))
	if err != nil {
		return nil, err
	}
	rc, err := fetchContent(ctx, g.cfg, rel, revision, g.showArgs)
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

// showArgs prints the blob on stdout. "./" makes the path relative to the
// root instead of the top of the git worktree.
func (g *gitRepo) showArgs(rel, revision, _ string) ([]string, bool) {
	return []string{g.cfg.Command, "--no-pager", "show", revision + ":./" + rel}, true
}

func (g *gitRepo) Annotate(ctx context.Context, path, revision string) (*history.Annotation, error) {
	abs, rel, err := g.resolve(path)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, fmt.Errorf("annotate %s: not a file", abs)
	}
	argv := []string{g.cfg.Command, "--no-pager", "blame", "--porcelain"}
	if revision != "" {
		argv = append(argv, revision)
	}
	argv = append(argv, "--", rel)
	p, err := startProcess(ctx, g.cfg.Root, argv, nil)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	a, err := parseGitBlame(p.Stdout(), filepath.Base(abs))
	if err != nil {
		return nil, err
	}
	return tolerateAnnotateExit(a, p.Wait())
}

// Update is a no-op: a git worktree has no snapshot mode.
func (g *gitRepo) Update(context.Context) error {
	return nil
}

func (g *gitRepo) SupportsAnnotation() bool {
	return true
}

// FileHasHistory asks go-git whether any commit reachable from HEAD touched
// path. Anything it cannot answer is reported as true and left to git.
func (g *gitRepo) FileHasHistory(path string) bool {
	abs, _, err := g.resolve(path)
	if err != nil {
		return true
	}
	repo, err := gitlib.PlainOpenWithOptions(g.cfg.Root, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		slog.Debug("open repository", slog.String("root", g.cfg.Root), slog.Any("error", err))
		return true
	}
	wt, err := repo.Worktree()
	if err != nil {
		return true
	}
	rel, err := filepath.Rel(wt.Filesystem.Root(), abs)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	iter, err := repo.Log(&gitlib.LogOptions{
		PathFilter: func(p string) bool {
			return rel == "." || p == rel || strings.HasPrefix(p, rel+"/")
		},
	})
	if err != nil {
		// No HEAD yet: nothing was ever committed.
		return !errors.Is(err, plumbing.ErrReferenceNotFound)
	}
	defer iter.Close()
	if _, err := iter.Next(); err != nil {
		return !errors.Is(err, io.EOF)
	}
	return true
}
