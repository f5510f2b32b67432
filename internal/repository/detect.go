package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gitlib "github.com/go-git/go-git/v5"
)

// ErrNoRepository is returned by Detect when no working copy contains path.
var ErrNoRepository = errors.New("no repository found")

// clearCaseViewMarker is present at the root of every ClearCase snapshot view.
const clearCaseViewMarker = "view.dat"

// Detect walks up from path and returns the kind and root of the innermost
// working copy containing it.
func Detect(path string) (Kind, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return KindUnknown, "", err
	}
	for dir := abs; ; {
		if kind, root, ok := detectAt(dir); ok {
			return kind, root, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return KindUnknown, "", fmt.Errorf("%s: %w", path, ErrNoRepository)
		}
		dir = parent
	}
}

func detectAt(dir string) (Kind, string, bool) {
	if isDir(filepath.Join(dir, ".hg")) {
		return KindMercurial, dir, true
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		// .git may also be a file pointing elsewhere (worktrees, submodules);
		// let go-git confirm it is usable.
		repo, err := gitlib.PlainOpenWithOptions(dir, &gitlib.PlainOpenOptions{EnableDotGitCommonDir: true})
		if err == nil {
			if wt, err := repo.Worktree(); err == nil {
				return KindGit, wt.Filesystem.Root(), true
			}
		}
		return KindGit, dir, true
	}
	if info, err := os.Stat(filepath.Join(dir, clearCaseViewMarker)); err == nil && !info.IsDir() {
		return KindClearCase, dir, true
	}
	return KindUnknown, "", false
}

// MetadataPaths lists the directories whose changes signal new history in the
// working copy at root.
func MetadataPaths(kind Kind, root string) []string {
	var candidates []string
	switch kind {
	case KindMercurial:
		candidates = []string{filepath.Join(root, ".hg"), filepath.Join(root, ".hg", "store")}
	case KindGit:
		candidates = []string{filepath.Join(root, ".git"), filepath.Join(root, ".git", "refs", "heads")}
	default:
		candidates = []string{root}
	}
	var paths []string
	for _, p := range candidates {
		if isDir(p) {
			paths = append(paths, p)
		}
	}
	return paths
}
