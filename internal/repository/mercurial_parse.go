package repository

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/thiagokokada/histget/internal/history"
)

// One changeset per line. Free-text fields are JSON encoded so that tabs and
// newlines in them cannot be confused with the separators.
const (
	hgLogTemplate        = "{rev}:{node|short}\t{author|json}\t{date|rfc3339date}\t{files|json}\t{desc|json}\n"
	hgLogSummaryTemplate = "{rev}:{node|short}\t{author|json}\t{date|rfc3339date}\t{files|json}\t{desc|firstline|json}\n"
	hgAnnotateTemplate   = "{lines % '{rev}:{node|short}|{user}|\\n'}"
	hgCopiesTemplate     = "{rev}\n{file_copies % '{name}\\t{source}\\n'}.\n"
)

func parseMercurialLog(r io.Reader) (*history.History, error) {
	const tool = "hg log"
	lr := newLineReader(r)
	var entries []history.Entry
	for {
		line, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		fail := func(reason string) error {
			return &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: reason}
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 5 {
			return nil, fail("expected 5 tab separated fields")
		}
		revision := fields[0]
		if _, _, ok := splitMercurialRevision(revision); !ok {
			return nil, fail("invalid revision")
		}
		var author, message string
		var files []string
		if err := json.Unmarshal([]byte(fields[1]), &author); err != nil {
			return nil, fail("invalid author")
		}
		date, err := time.Parse(time.RFC3339, fields[2])
		if err != nil {
			return nil, fail("invalid date")
		}
		if err := json.Unmarshal([]byte(fields[3]), &files); err != nil {
			return nil, fail("invalid file list")
		}
		if err := json.Unmarshal([]byte(fields[4]), &message); err != nil {
			return nil, fail("invalid description")
		}
		entries = append(entries, history.NewEntry(revision, author, date, strings.TrimSpace(message), files))
	}
	return history.New(entries), nil
}

// splitMercurialRevision splits "8:6a8c423f5624" into its local revision
// number and changeset hash.
func splitMercurialRevision(rev string) (int, string, bool) {
	num, node, ok := strings.Cut(rev, ":")
	if !ok || node == "" {
		return 0, "", false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0, "", false
	}
	return n, node, true
}

// mercurialRevisionArg turns a revision identifier into an argument of -r.
// "rev:node" is a range in hg syntax, so only the node is passed on.
func mercurialRevisionArg(rev string) string {
	if _, node, ok := splitMercurialRevision(rev); ok {
		return node
	}
	return rev
}

func parseMercurialAnnotation(r io.Reader, fileName string) (*history.Annotation, error) {
	const tool = "hg annotate"
	lr := newLineReader(r)
	b := history.NewAnnotationBuilder(fileName)
	for {
		line, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 || parts[2] != "" {
			return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: "expected revision|user|"}
		}
		if _, _, ok := splitMercurialRevision(parts[0]); !ok {
			return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: "invalid revision"}
		}
		b.Add(parts[0], parts[1], true)
	}
	return b.Build(), nil
}

// hgCopies lists the renames recorded by one changeset, new name to old name.
type hgCopies struct {
	rev    int
	copies map[string]string
}

func parseMercurialCopies(r io.Reader) ([]hgCopies, error) {
	const tool = "hg log --follow"
	lr := newLineReader(r)
	var out []hgCopies
	var cur *hgCopies
	for {
		line, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch {
		case cur == nil:
			if line == "" {
				continue
			}
			n, err := strconv.Atoi(line)
			if err != nil {
				return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: "invalid revision number"}
			}
			cur = &hgCopies{rev: n}
		case line == ".":
			out = append(out, *cur)
			cur = nil
		default:
			name, source, ok := strings.Cut(line, "\t")
			if !ok || name == "" || source == "" {
				return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: "expected name\\tsource"}
			}
			if cur.copies == nil {
				cur.copies = make(map[string]string)
			}
			cur.copies[name] = source
		}
	}
	if cur != nil {
		return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: strconv.Itoa(cur.rev), Reason: "unterminated record"}
	}
	return out, nil
}

// nameAtRevision walks renames newest first and returns the name rel had
// at revision target.
func nameAtRevision(rel string, target int, records []hgCopies) string {
	name := rel
	for _, rec := range records {
		if rec.rev <= target {
			break
		}
		if source, ok := rec.copies[name]; ok {
			name = source
		}
	}
	return name
}
