package history

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

var testRevisions = []string{
	"8:6a8c423f5624", "7:db1394c05268", "6:e386b51ddbcc",
	"5:8706402863c6", "4:e494d67af12f", "3:2058725c1470",
	"2:585a1b3f2efb", "1:f24a5fd7a85d", "0:816b6279ae9c",
}

func testHistory() *History {
	entries := make([]Entry, 0, len(testRevisions))
	base := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, rev := range testRevisions {
		date := base.Add(time.Duration(len(testRevisions)-i) * time.Hour)
		entries = append(entries, NewEntry(rev, "Alice <alice@example.com>", date, "change "+rev, []string{"novel.txt"}))
	}
	return New(entries)
}

func TestSince(t *testing.T) {
	t.Parallel()

	h := testHistory()
	tests := []struct {
		name  string
		since string
		want  []string
	}{
		{name: "oldest", since: testRevisions[len(testRevisions)-1], want: testRevisions[:len(testRevisions)-1]},
		{name: "newest", since: testRevisions[0], want: []string{}},
		{name: "middle", since: "5:8706402863c6", want: testRevisions[:3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := h.Since(tt.since)
			if err != nil {
				t.Fatalf("Since(%q): %v", tt.since, err)
			}
			if !slices.Equal(got.Revisions(), tt.want) {
				t.Fatalf("Since(%q) = %v, want %v", tt.since, got.Revisions(), tt.want)
			}
		})
	}
	if h.Len() != len(testRevisions) {
		t.Fatalf("Since modified the receiver: len=%d", h.Len())
	}
}

func TestSince_NotFound(t *testing.T) {
	t.Parallel()

	// Same hash as revision 7 but a sequence number that does not exist.
	_, err := testHistory().Since("8:db1394c05268")
	if !errors.Is(err, ErrHistoryNotFound) {
		t.Fatalf("expected ErrHistoryNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "not found in the repository") {
		t.Fatalf("missing marker phrase: %v", err)
	}
	if !strings.Contains(err.Error(), "8:db1394c05268") {
		t.Fatalf("missing revision in message: %v", err)
	}
}

func TestSince_NilHistory(t *testing.T) {
	t.Parallel()

	var h *History
	if _, err := h.Since("1"); !errors.Is(err, ErrHistoryNotFound) {
		t.Fatalf("expected ErrHistoryNotFound, got %v", err)
	}
}

func TestNewEntryNormalizesFiles(t *testing.T) {
	t.Parallel()

	e := NewEntry("1", "bob", time.Time{}, "msg", []string{"b.txt", `dir\a.txt`, "", "b.txt", " c.txt "})
	want := []string{"b.txt", "c.txt", "dir/a.txt"}
	if !slices.Equal(e.Files, want) {
		t.Fatalf("Files = %v, want %v", e.Files, want)
	}
	if !e.Active {
		t.Fatal("expected entry to be active")
	}
}

func TestFormatEntry(t *testing.T) {
	t.Parallel()

	ts := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
	got := FormatEntry(NewEntry("3", "Alice", ts, "Subject line\n\nBody line\n", []string{"novel.txt"}))
	for _, want := range []string{"revision 3\n", "Author: Alice\n", "        novel.txt\n", "    Subject line\n\n    Body line\n"} {
		if !strings.Contains(got, want) {
			t.Fatalf("FormatEntry missing %q in:\n%s", want, got)
		}
	}
	if empty := FormatEntry(Entry{Revision: "1"}); !strings.Contains(empty, "(no message)") {
		t.Fatalf("expected placeholder message, got:\n%s", empty)
	}
}

func TestAnnotationBuilder(t *testing.T) {
	t.Parallel()

	b := NewAnnotationBuilder("novel.txt")
	b.Add("/main/2", "alice", true)
	b.Add("/main/1", "bob", true)
	b.Add("/main/2", "alice", false)
	a := b.Build()

	if a.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", a.Size())
	}
	line, ok := a.Line(2)
	if !ok || line.Revision != "/main/1" || line.Author != "bob" || !line.Enabled {
		t.Fatalf("Line(2) = %+v, %v", line, ok)
	}
	if _, ok := a.Line(0); ok {
		t.Fatal("Line(0) should be out of range")
	}
	if _, ok := a.Line(4); ok {
		t.Fatal("Line(4) should be out of range")
	}
	if got := a.Revisions(); !slices.Equal(got, []string{"/main/1", "/main/2"}) {
		t.Fatalf("Revisions() = %v", got)
	}
	if got := a.Authors(); !slices.Equal(got, []string{"alice", "bob"}) {
		t.Fatalf("Authors() = %v", got)
	}
	lines := a.Lines()
	lines[0].Author = "mallory"
	if first, _ := a.Line(1); first.Author != "alice" {
		t.Fatal("Lines() must return a copy")
	}
}

func TestParseErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ParseError{Tool: "hg log", Line: 4, Text: "garbage", Reason: "missing field"}
	if got := err.Error(); !strings.Contains(got, "line 4") || !strings.Contains(got, `"garbage"`) {
		t.Fatalf("unexpected message: %s", got)
	}
}
