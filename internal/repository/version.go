package repository

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// DefaultMinVersion is the oldest tool release whose flags and templates the
// backends rely on ("" means any).
func DefaultMinVersion(kind Kind) string {
	switch kind {
	case KindMercurial:
		// annotate --template with {lines % ...}
		return ">= 4.6.0"
	case KindGit:
		// %aI in log formats
		return ">= 2.2.0"
	default:
		return ""
	}
}

var toolVersionPattern = regexp.MustCompile(`\d+(?:\.\d+)+`)

// parseToolVersion extracts the first dotted version number from tool output
// such as "Mercurial Distributed SCM (version 6.1.1)", "git version
// 2.39.3.windows.1" or "ClearCase version 8.0.1.06".
func parseToolVersion(out string) (*semver.Version, error) {
	m := toolVersionPattern.FindString(out)
	if m == "" {
		return nil, fmt.Errorf("unable to parse version output: %q", strings.TrimSpace(out))
	}
	parts := strings.Split(m, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	for i, p := range parts {
		if trimmed := strings.TrimLeft(p, "0"); trimmed != "" {
			parts[i] = trimmed
		} else {
			parts[i] = "0"
		}
	}
	return semver.NewVersion(strings.Join(parts, "."))
}

func versionArgs(kind Kind, command string) []string {
	if kind == KindClearCase {
		return []string{command, "-version"}
	}
	return []string{command, "--version"}
}

type toolVersionResult struct {
	version *semver.Version
	err     error
}

var toolVersions struct {
	mu    sync.Mutex
	cache map[string]toolVersionResult
}

// ToolVersion runs the tool of a backend once per command and returns its
// version.
func ToolVersion(ctx context.Context, kind Kind, command string) (*semver.Version, error) {
	if command == "" {
		command = kind.DefaultCommand()
	}
	key := kind.String() + "\x00" + command
	toolVersions.mu.Lock()
	defer toolVersions.mu.Unlock()
	if res, ok := toolVersions.cache[key]; ok {
		return res.version, res.err
	}
	var out strings.Builder
	err := run(ctx, "", versionArgs(kind, command), func(r io.Reader) error {
		_, err := io.Copy(&out, r)
		return err
	})
	var res toolVersionResult
	if err != nil {
		res.err = err
	} else {
		res.version, res.err = parseToolVersion(out.String())
	}
	if ctx.Err() == nil {
		if toolVersions.cache == nil {
			toolVersions.cache = make(map[string]toolVersionResult)
		}
		toolVersions.cache[key] = res
	}
	return res.version, res.err
}

// CheckToolVersion fails when the tool does not satisfy constraint.
func CheckToolVersion(ctx context.Context, kind Kind, command, constraint string) error {
	if strings.TrimSpace(constraint) == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("version constraint %q: %w", constraint, err)
	}
	v, err := ToolVersion(ctx, kind, command)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("%s %s does not satisfy %s", kind, v, constraint)
	}
	return nil
}
