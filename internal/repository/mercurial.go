package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/thiagokokada/histget/internal/history"
)

type mercurial struct {
	base
}

func (m *mercurial) Kind() Kind {
	return KindMercurial
}

func (m *mercurial) History(ctx context.Context, path string, since string) (*history.History, error) {
	_, rel, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	tmpl := hgLogSummaryTemplate
	if m.cfg.Verbose {
		tmpl = hgLogTemplate
	}
	argv := []string{m.cfg.Command, "log", "--template", tmpl}
	if rel != "" {
		argv = append(argv, "--", rel)
	}
	var h *history.History
	err = run(ctx, m.cfg.Root, argv, func(r io.Reader) error {
		var err error
		h, err = parseMercurialLog(r)
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

// Get retrieves rel as of revision. When the file was renamed after that
// revision the name it had back then is looked up and used instead.
func (m *mercurial) Get(ctx context.Context, parentDir, baseName, revision string) (io.ReadCloser, error) {
	_, rel, err := m.resolve(filepath.Join(parentDir, baseName))
	if err != nil {
		return nil, err
	}
	rc, err := fetchContent(ctx, m.cfg, rel, revision, m.catArgs)
	var exitErr *NonZeroExitError
	if err != nil && errors.As(err, &exitErr) {
		old, lookupErr := m.originalName(ctx, rel, revision)
		switch {
		case lookupErr != nil:
			slog.Debug("lookup original name", slog.String("path", rel), slog.Any("error", lookupErr))
		case old != rel:
			slog.Debug("file renamed since revision",
				slog.String("path", rel),
				slog.String("revision", revision),
				slog.String("original", old),
			)
			rc, err = fetchContent(ctx, m.cfg, old, revision, m.catArgs)
		}
	}
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

func (m *mercurial) catArgs(rel, revision, dest string) ([]string, bool) {
	// -o takes a format string; keep a literal path literal.
	out := strings.ReplaceAll(dest, "%", "%%")
	return []string{m.cfg.Command, "cat", "-r", mercurialRevisionArg(revision), "-o", out, "--", rel}, false
}

func (m *mercurial) originalName(ctx context.Context, rel, revision string) (string, error) {
	target, err := m.revisionNumber(ctx, revision)
	if err != nil {
		return "", err
	}
	var records []hgCopies
	argv := []string{m.cfg.Command, "log", "--follow", "--template", hgCopiesTemplate, "--", rel}
	err = run(ctx, m.cfg.Root, argv, func(r io.Reader) error {
		var err error
		records, err = parseMercurialCopies(r)
		return err
	})
	if err != nil {
		return "", err
	}
	return nameAtRevision(rel, target, records), nil
}

func (m *mercurial) revisionNumber(ctx context.Context, revision string) (int, error) {
	if n, _, ok := splitMercurialRevision(revision); ok {
		return n, nil
	}
	if n, err := strconv.Atoi(revision); err == nil {
		return n, nil
	}
	var out strings.Builder
	argv := []string{m.cfg.Command, "log", "-r", revision, "--template", "{rev}\n"}
	err := run(ctx, m.cfg.Root, argv, func(r io.Reader) error {
		_, err := io.Copy(&out, r)
		return err
	})
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out.String()))
	if err != nil {
		return 0, &history.ParseError{Tool: "hg log", Text: out.String(), Reason: "invalid revision number"}
	}
	return n, nil
}

func (m *mercurial) Annotate(ctx context.Context, path, revision string) (*history.Annotation, error) {
	abs, rel, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, fmt.Errorf("annotate %s: not a file", abs)
	}
	argv := []string{m.cfg.Command, "annotate", "--template", hgAnnotateTemplate}
	if revision != "" {
		argv = append(argv, "-r", mercurialRevisionArg(revision))
	}
	argv = append(argv, "--", rel)
	p, err := startProcess(ctx, m.cfg.Root, argv, nil)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	a, err := parseMercurialAnnotation(p.Stdout(), filepath.Base(abs))
	if err != nil {
		return nil, err
	}
	return tolerateAnnotateExit(a, p.Wait())
}

// Update is a no-op: a Mercurial working copy has no snapshot mode.
func (m *mercurial) Update(context.Context) error {
	return nil
}

func (m *mercurial) SupportsAnnotation() bool {
	return true
}

func (m *mercurial) FileHasHistory(string) bool {
	return true
}
