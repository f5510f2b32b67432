// Package highlight renders file content with terminal syntax highlighting.
package highlight

import (
	"log/slog"
	"strings"

	darkmode "github.com/thiagokokada/dark-mode-go"
)

type Mode int

const (
	ModeAuto Mode = iota
	ModeLight
	ModeDark
)

func (m Mode) String() string {
	switch m {
	case ModeLight:
		return "light"
	case ModeDark:
		return "dark"
	default:
		return "auto"
	}
}

// ModeFromString parses a -mode flag value; anything unknown is ModeAuto.
func ModeFromString(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ModeDark.String():
		return ModeDark
	case ModeLight.String():
		return ModeLight
	default:
		return ModeAuto
	}
}

var detectDarkMode = darkmode.IsDarkMode

// IsDark resolves ModeAuto by asking the desktop environment, falling back to
// light when that fails.
func (m Mode) IsDark() bool {
	switch m {
	case ModeDark:
		return true
	case ModeLight:
		return false
	}
	if detectDarkMode == nil {
		return false
	}
	dark, err := detectDarkMode()
	if err != nil {
		slog.Debug("detect dark-mode", slog.Any("error", err))
		return false
	}
	return dark
}
