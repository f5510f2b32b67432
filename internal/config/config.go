// Package config loads the optional histget configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/thiagokokada/histget/internal/repository"
)

var ErrInvalidConfig = errors.New("invalid config")

// Backend holds the settings of one version control system.
type Backend struct {
	// Command overrides the tool executable.
	Command string `yaml:"command"`
	// Verbose keeps full log messages; nil inherits File.Verbose.
	Verbose *bool `yaml:"verbose"`
	// Cacheable defaults to true.
	Cacheable *bool `yaml:"cacheable"`
	// MinVersion is a semver constraint such as ">= 4.6".
	MinVersion string `yaml:"min_version"`
}

type File struct {
	Verbose  bool               `yaml:"verbose"`
	TempDir  string             `yaml:"temp_dir"`
	Backends map[string]Backend `yaml:"backends"`

	backends map[repository.Kind]Backend
}

// DefaultPath returns the location of the user's configuration file.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "histget", "config.yaml"), nil
}

// Load reads the file at path. A missing file yields the defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", errors.Join(ErrInvalidConfig, err))
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks backend names and version constraints, and indexes the
// backends by kind.
func (f *File) Validate() error {
	f.backends = make(map[repository.Kind]Backend, len(f.Backends))
	for name, b := range f.Backends {
		kind, err := repository.ParseKind(name)
		if err != nil {
			return fmt.Errorf("backend %q: %w", name, ErrInvalidConfig)
		}
		if _, dup := f.backends[kind]; dup {
			return fmt.Errorf("backend %q configured twice: %w", kind, ErrInvalidConfig)
		}
		if strings.TrimSpace(b.MinVersion) != "" {
			if _, err := semver.NewConstraint(b.MinVersion); err != nil {
				return fmt.Errorf("backend %q min_version %q: %w", name, b.MinVersion, ErrInvalidConfig)
			}
		}
		f.backends[kind] = b
	}
	if f.TempDir != "" {
		info, err := os.Stat(f.TempDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("temp_dir %q is not a directory: %w", f.TempDir, ErrInvalidConfig)
		}
	}
	return nil
}

// Backend returns the settings of kind, zero when not configured.
func (f *File) Backend(kind repository.Kind) Backend {
	if f == nil {
		return Backend{}
	}
	return f.backends[kind]
}

// Repository builds the configuration of a backend rooted at root.
func (f *File) Repository(kind repository.Kind, root string) repository.Config {
	cfg := repository.NewConfig(kind, root)
	if f == nil {
		return cfg
	}
	b := f.Backend(kind)
	if b.Command != "" {
		cfg.Command = b.Command
	}
	cfg.Verbose = f.Verbose
	if b.Verbose != nil {
		cfg.Verbose = *b.Verbose
	}
	if b.Cacheable != nil {
		cfg.Cacheable = *b.Cacheable
	}
	cfg.TempDir = f.TempDir
	return cfg
}

// MinVersion returns the version constraint for kind, falling back to
// repository.DefaultMinVersion.
func (f *File) MinVersion(kind repository.Kind) string {
	if v := strings.TrimSpace(f.Backend(kind).MinVersion); v != "" {
		return v
	}
	return repository.DefaultMinVersion(kind)
}
