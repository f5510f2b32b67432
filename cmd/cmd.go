package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/thiagokokada/histget/internal/buildinfo"
	"github.com/thiagokokada/histget/internal/config"
	"github.com/thiagokokada/histget/internal/highlight"
	"github.com/thiagokokada/histget/internal/history"
	"github.com/thiagokokada/histget/internal/repository"
	"github.com/thiagokokada/histget/internal/watch"
)

const usage = `usage: histget [flags] <command> [command flags] [path]

commands:
  history   list the revisions of a file or directory, newest first
  annotate  attribute every line of a file to a revision
  get       print a file as of a revision
  update    refresh a ClearCase snapshot view
  watch     print a line whenever the history of a working copy changes
  version   print version information

flags:
`

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if cleanupErr := repository.Cleanup(); cleanupErr != nil {
			slog.Warn("remove temporary files", slog.Any("error", cleanupErr))
		}
	}()
	return run(ctx, os.Args[1:], os.Stdout)
}

type globals struct {
	backend    string
	command    string
	configPath string
	verbose    bool
	noCheck    bool
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("histget", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	var g globals
	fs.StringVar(&g.backend, "backend", "auto", "version control system: auto, clearcase, mercurial, or git")
	fs.StringVar(&g.command, "command", "", "tool executable (default from config, $HISTGET_<BACKEND> or the stock name)")
	fs.StringVar(&g.configPath, "config", "", "configuration file (default $XDG_CONFIG_HOME/histget/config.yaml)")
	fs.BoolVar(&g.verbose, "verbose", false, "enable verbose logging and full log messages")
	fs.BoolVar(&g.noCheck, "nocheck", false, "skip the minimum tool version check")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}
	setupLogging(g.verbose)

	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	var err error
	switch name {
	case "history":
		err = runHistory(ctx, g, rest, stdout)
	case "annotate":
		err = runAnnotate(ctx, g, rest, stdout)
	case "get":
		err = runGet(ctx, g, rest, stdout)
	case "update":
		err = runUpdate(ctx, g, rest)
	case "watch":
		err = runWatch(ctx, g, rest, stdout)
	case "version":
		err = runVersion(ctx, g, rest, stdout)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// parseSub parses the flags of a subcommand and returns its only positional
// argument, "." when absent.
func parseSub(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	switch fs.NArg() {
	case 0:
		return ".", nil
	case 1:
		return fs.Arg(0), nil
	default:
		return "", fmt.Errorf("%s: expected one path, got %d", fs.Name(), fs.NArg())
	}
}

func runHistory(ctx context.Context, g globals, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	since := fs.String("since", "", "only list revisions newer than this one")
	limit := fs.Int("limit", 0, "print at most this many revisions (0 for all)")
	path, err := parseSub(fs, args)
	if err != nil {
		return err
	}
	repo, abs, err := openRepository(ctx, g, path)
	if err != nil {
		return err
	}
	h, err := repo.History(ctx, abs, *since)
	if err != nil {
		return err
	}
	entries := h.Entries
	if *limit > 0 && len(entries) > *limit {
		entries = entries[:*limit]
	}
	for i, e := range entries {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		fmt.Fprint(stdout, history.FormatEntry(e))
	}
	return nil
}

func runAnnotate(ctx context.Context, g globals, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("annotate", flag.ContinueOnError)
	rev := fs.String("rev", "", "revision to annotate (default: the working copy's)")
	summary := fs.Bool("summary", false, "also list the distinct revisions and authors")
	path, err := parseSub(fs, args)
	if err != nil {
		return err
	}
	repo, abs, err := openRepository(ctx, g, path)
	if err != nil {
		return err
	}
	if !repo.SupportsAnnotation() {
		return fmt.Errorf("%s does not support annotation", repo.Kind())
	}
	a, err := repo.Annotate(ctx, abs, *rev)
	if err != nil {
		return err
	}
	lines := a.Lines()
	width := 0
	for _, l := range lines {
		width = max(width, len(l.Revision))
	}
	for i, l := range lines {
		marker := " "
		if !l.Enabled {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%6d %s%-*s %s\n", i+1, marker, width, l.Revision, l.Author)
	}
	if *summary {
		revisions, authors := a.Revisions(), a.Authors()
		fmt.Fprintf(stdout, "\n%d lines, %d revisions, %d authors\n", a.Size(), len(revisions), len(authors))
		fmt.Fprintf(stdout, "revisions: %s\n", strings.Join(revisions, " "))
		fmt.Fprintf(stdout, "authors: %s\n", strings.Join(authors, " "))
	}
	return nil
}

func runGet(ctx context.Context, g globals, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	rev := fs.String("rev", "", "revision to retrieve (required)")
	doHighlight := fs.Bool("highlight", false, "syntax highlight the content")
	mode := fs.String("mode", highlight.ModeAuto.String(), "highlight color mode: auto, light, or dark")
	path, err := parseSub(fs, args)
	if err != nil {
		return err
	}
	if *rev == "" {
		return errors.New("get: -rev is required")
	}
	repo, abs, err := openRepository(ctx, g, path)
	if err != nil {
		return err
	}
	rc, err := repo.Get(ctx, filepath.Dir(abs), filepath.Base(abs), *rev)
	if err != nil {
		return err
	}
	defer rc.Close()
	if !*doHighlight {
		_, err := io.Copy(stdout, rc)
		return err
	}
	content, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return highlight.Write(stdout, abs, string(content), highlight.ModeFromString(*mode))
}

func runUpdate(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	path, err := parseSub(fs, args)
	if err != nil {
		return err
	}
	repo, _, err := openRepository(ctx, g, path)
	if err != nil {
		return err
	}
	return repo.Update(ctx)
}

func runWatch(ctx context.Context, g globals, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	delay := fs.Duration("delay", watch.DefaultDelay, "wait this long for changes to settle")
	path, err := parseSub(fs, args)
	if err != nil {
		return err
	}
	repo, _, err := openRepository(ctx, g, path)
	if err != nil {
		return err
	}
	changed := make(chan struct{}, 1)
	w, err := watch.New(repo.Kind(), repo.Root(), *delay, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()
	slog.Info("watching", slog.String("root", repo.Root()), slog.Any("paths", w.Paths()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			fmt.Fprintf(stdout, "changed %s\n", repo.Root())
		}
	}
}

func runVersion(ctx context.Context, g globals, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	tools := fs.Bool("tools", false, "also print the version of every backend's tool")
	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "histget %s\n", buildinfo.String())
	if !*tools {
		return nil
	}
	file, err := loadConfig(g)
	if err != nil {
		return err
	}
	for _, kind := range repository.Kinds() {
		command := file.Repository(kind, "").Command
		if k, err := repository.ParseKind(g.backend); err == nil && k == kind && g.command != "" {
			command = g.command
		}
		v, err := repository.ToolVersion(ctx, kind, command)
		if err != nil {
			slog.Debug("tool version", slog.String("backend", kind.String()), slog.Any("error", err))
			fmt.Fprintf(stdout, "%-10s %s: unavailable\n", kind, command)
			continue
		}
		fmt.Fprintf(stdout, "%-10s %s: %s\n", kind, command, v)
	}
	return nil
}

func loadConfig(g globals) (*config.File, error) {
	path := g.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			slog.Debug("no user config directory", slog.Any("error", err))
			return nil, nil
		}
		path = p
	}
	return config.Load(path)
}

// openRepository selects the backend for path and returns it together with
// the absolute form of path.
func openRepository(ctx context.Context, g globals, path string) (repository.Repository, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	file, err := loadConfig(g)
	if err != nil {
		return nil, "", err
	}
	kind, root, err := selectBackend(g.backend, abs)
	if err != nil {
		return nil, "", err
	}
	cfg := file.Repository(kind, root)
	if g.command != "" {
		cfg.Command = g.command
	}
	if g.verbose {
		cfg.Verbose = true
	}
	if !g.noCheck {
		if err := repository.CheckToolVersion(ctx, kind, cfg.Command, file.MinVersion(kind)); err != nil {
			return nil, "", fmt.Errorf("%w (use -nocheck to skip this check)", err)
		}
	}
	repo, err := repository.Open(kind, cfg)
	if err != nil {
		return nil, "", err
	}
	slog.Debug("repository",
		slog.String("backend", kind.String()),
		slog.String("root", repo.Root()),
		slog.String("command", cfg.Command),
	)
	return repo, abs, nil
}

func selectBackend(backend, abs string) (repository.Kind, string, error) {
	detected, root, detectErr := repository.Detect(abs)
	if strings.EqualFold(backend, "auto") || backend == "" {
		return detected, root, detectErr
	}
	kind, err := repository.ParseKind(backend)
	if err != nil {
		return repository.KindUnknown, "", err
	}
	if detectErr == nil && detected == kind {
		return kind, root, nil
	}
	// No matching metadata (e.g. a dynamic ClearCase view): the nearest
	// directory is the root.
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return kind, abs, nil
	}
	return kind, filepath.Dir(abs), nil
}
