// Package history holds the backend-agnostic model shared by every repository
// backend: revision history entries, per-line annotations and the errors
// produced while building them.
package history

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Entry describes one revision of a file or directory.
//
// Revision is opaque outside the backend that produced it and must only be
// compared as an exact string. Entries are shared once built; callers must
// not modify Files.
type Entry struct {
	Revision string
	Author   string
	Date     time.Time
	Message  string
	Files    []string // repository-relative, sorted, unique
	Active   bool
}

// NewEntry returns an Entry with a normalized file list.
func NewEntry(revision, author string, date time.Time, message string, files []string) Entry {
	return Entry{
		Revision: revision,
		Author:   author,
		Date:     date,
		Message:  message,
		Files:    normalizeFiles(files),
		Active:   true,
	}
}

func normalizeFiles(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		f = strings.TrimSpace(strings.ReplaceAll(f, "\\", "/"))
		if f == "" {
			continue
		}
		out = append(out, f)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// History is an ordered list of entries, most recent first. Callers must not
// modify Entries; Since and the backends return fresh values instead.
type History struct {
	Entries []Entry
}

func New(entries []Entry) *History {
	return &History{Entries: entries}
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Entries)
}

// Revisions returns the revision identifiers in history order.
func (h *History) Revisions() []string {
	if h == nil {
		return nil
	}
	revs := make([]string, len(h.Entries))
	for i, e := range h.Entries {
		revs[i] = e.Revision
	}
	return revs
}

// Since returns the entries strictly newer than revision. The receiver is not
// modified. An unknown revision yields an error wrapping ErrHistoryNotFound.
func (h *History) Since(revision string) (*History, error) {
	if h == nil {
		return nil, fmt.Errorf("revision %s: %w", revision, ErrHistoryNotFound)
	}
	for i, e := range h.Entries {
		if e.Revision == revision {
			return New(slices.Clone(h.Entries[:i])), nil
		}
	}
	return nil, fmt.Errorf("revision %s: %w", revision, ErrHistoryNotFound)
}

// FormatEntry renders an entry the way `log` style commands print it.
func FormatEntry(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "revision %s\n", e.Revision)
	fmt.Fprintf(&b, "Author: %s\n", e.Author)
	if !e.Date.IsZero() {
		fmt.Fprintf(&b, "Date:   %s\n", e.Date.Format(time.RFC1123Z))
	}
	for _, f := range e.Files {
		fmt.Fprintf(&b, "        %s\n", f)
	}
	b.WriteString("\n")
	message := strings.TrimRight(e.Message, "\n")
	if message == "" {
		b.WriteString("    (no message)\n")
		return b.String()
	}
	for line := range strings.SplitSeq(message, "\n") {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "    %s\n", line)
	}
	return b.String()
}
