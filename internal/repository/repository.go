// Package repository gives uniform access to the history of files kept in
// different version control systems.
//
// Every backend shells out to the tool of its version control system, reads
// the tool's stdout and translates it into the types of the history package.
// A backend is selected once per working copy (see Detect) and holds an
// immutable Config; all operations are synchronous and spawn one process per
// call.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/thiagokokada/histget/internal/history"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindClearCase
	KindMercurial
	KindGit
)

func (k Kind) String() string {
	switch k {
	case KindClearCase:
		return "clearcase"
	case KindMercurial:
		return "mercurial"
	case KindGit:
		return "git"
	default:
		return "unknown"
	}
}

// Kinds lists the supported backends.
func Kinds() []Kind {
	return []Kind{KindClearCase, KindMercurial, KindGit}
}

func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "clearcase", "cleartool", "cc":
		return KindClearCase, nil
	case "mercurial", "hg":
		return KindMercurial, nil
	case "git":
		return KindGit, nil
	default:
		return KindUnknown, fmt.Errorf("unknown repository type %q", raw)
	}
}

// Environment variables overriding the default tool of a backend.
const (
	EnvClearCaseCommand = "HISTGET_CLEARCASE"
	EnvMercurialCommand = "HISTGET_MERCURIAL"
	EnvGitCommand       = "HISTGET_GIT"
)

// DefaultCommand returns the tool used by a backend when Config.Command is
// empty: the environment override if set, the stock executable name otherwise.
func (k Kind) DefaultCommand() string {
	env, name := "", ""
	switch k {
	case KindClearCase:
		env, name = EnvClearCaseCommand, "cleartool"
	case KindMercurial:
		env, name = EnvMercurialCommand, "hg"
	case KindGit:
		env, name = EnvGitCommand, "git"
	default:
		return ""
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	return name
}

// Config is the immutable configuration of one repository backend.
type Config struct {
	// Root is the absolute path of the working copy.
	Root string
	// Command is the tool executable, see Kind.DefaultCommand.
	Command string
	// Verbose selects full log messages instead of their first line.
	Verbose bool
	// Cacheable reports whether callers may cache computed history.
	Cacheable bool
	// TempDir holds materialized revisions; os.TempDir() when empty.
	TempDir string
}

// NewConfig returns the default configuration of a backend rooted at root.
func NewConfig(kind Kind, root string) Config {
	return Config{Root: root, Command: kind.DefaultCommand(), Cacheable: true}
}

func (c Config) normalize(kind Kind) (Config, error) {
	if strings.TrimSpace(c.Root) == "" {
		return c, errors.New("repository root not set")
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return c, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return c, fmt.Errorf("repository root: %w", err)
	}
	if !info.IsDir() {
		return c, fmt.Errorf("repository root %s is not a directory", abs)
	}
	c.Root = abs
	if strings.TrimSpace(c.Command) == "" {
		c.Command = kind.DefaultCommand()
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	return c, nil
}

// Repository is implemented by every backend.
type Repository interface {
	Kind() Kind
	Root() string

	// History lists the revisions of path, newest first. A non-empty since
	// restricts the result to the entries strictly newer than that revision;
	// an unknown since yields an error wrapping history.ErrHistoryNotFound.
	History(ctx context.Context, path string, since string) (*history.History, error)
	// Get returns the content of parentDir/baseName as of revision. Closing
	// the reader removes the temporary copy backing it.
	Get(ctx context.Context, parentDir, baseName, revision string) (io.ReadCloser, error)
	// Annotate attributes every line of path to the revision that last
	// touched it. An empty revision annotates the working copy's version.
	Annotate(ctx context.Context, path, revision string) (*history.Annotation, error)
	// Update refreshes working copies that need an explicit refresh.
	Update(ctx context.Context) error

	SupportsAnnotation() bool
	IsCacheable() bool
	FileHasHistory(path string) bool
}

// Open returns the backend of the given kind.
func Open(kind Kind, cfg Config) (Repository, error) {
	cfg, err := cfg.normalize(kind)
	if err != nil {
		return nil, fmt.Errorf("open %s repository: %w", kind, err)
	}
	b := base{cfg: cfg}
	switch kind {
	case KindClearCase:
		return &clearCase{base: b}, nil
	case KindMercurial:
		return &mercurial{base: b}, nil
	case KindGit:
		return &gitRepo{base: b}, nil
	default:
		return nil, fmt.Errorf("open repository: unsupported kind %s", kind)
	}
}

type base struct {
	cfg Config
}

func (b base) Root() string {
	return b.cfg.Root
}

func (b base) IsCacheable() bool {
	return b.cfg.Cacheable
}

// resolve maps path, absolute or relative to the root, to its absolute form
// and its slash-separated path relative to the root ("" for the root itself).
func (b base) resolve(path string) (abs string, rel string, err error) {
	if path == "" {
		return b.cfg.Root, "", nil
	}
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Join(b.cfg.Root, path)
	}
	r, err := filepath.Rel(b.cfg.Root, abs)
	if err != nil {
		return "", "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%s is outside of repository %s", path, b.cfg.Root)
	}
	if r == "." {
		r = ""
	}
	return abs, filepath.ToSlash(r), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
