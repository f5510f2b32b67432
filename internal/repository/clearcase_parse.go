package repository

import (
	"io"
	"strings"
	"time"

	"github.com/thiagokokada/histget/internal/history"
)

const (
	// One field per line, records terminated by a lone ".".
	clearCaseHistoryFormat  = "%e\n%Nd\n%Fu (%u)\n%Vn\n%Nc\n.\n"
	clearCaseAnnotateFormat = "%u|%Vn|"
	clearCaseDateLayout     = "20060102.150405"
	clearCaseRecordEnd      = "."
)

// parseClearCaseHistory reads lshistory output. Only events creating a
// version become entries; other events (branches, labels, ...) are skipped.
func parseClearCaseHistory(r io.Reader, rel string, dir bool, verbose bool) (*history.History, error) {
	const tool = "cleartool lshistory"
	lr := newLineReader(r)
	var entries []history.Entry
	for {
		event, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if event == "" || event == clearCaseRecordEnd {
			continue
		}
		start := lr.line

		var fields [3]string // date, author, version
		for i := range fields {
			line, err := lr.next()
			if err != nil && err != io.EOF {
				return nil, err
			}
			if err == io.EOF || line == clearCaseRecordEnd {
				return nil, &history.ParseError{Tool: tool, Line: start, Text: event, Reason: "truncated record"}
			}
			fields[i] = line
		}
		var comment []string
		terminated := false
		for {
			line, err := lr.next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			if line == clearCaseRecordEnd {
				terminated = true
				break
			}
			comment = append(comment, line)
		}
		if !terminated {
			return nil, &history.ParseError{Tool: tool, Line: start, Text: event, Reason: "unterminated record"}
		}

		if !isClearCaseVersionEvent(event) {
			continue
		}
		date, err := time.ParseInLocation(clearCaseDateLayout, strings.TrimSpace(fields[0]), time.Local)
		if err != nil {
			return nil, &history.ParseError{Tool: tool, Line: start + 1, Text: fields[0], Reason: "invalid date"}
		}
		revision := normalizeClearCaseVersion(fields[2])
		if revision == "" {
			return nil, &history.ParseError{Tool: tool, Line: start + 3, Text: fields[2], Reason: "empty version"}
		}
		message := strings.TrimSpace(strings.Join(comment, "\n"))
		if !verbose {
			message, _, _ = strings.Cut(message, "\n")
		}
		var files []string
		if !dir && rel != "" {
			files = []string{rel}
		}
		entries = append(entries, history.NewEntry(revision, strings.TrimSpace(fields[1]), date, message, files))
	}
	return history.New(entries), nil
}

func isClearCaseVersionEvent(event string) bool {
	switch strings.TrimSpace(event) {
	case "create version", "create directory version":
		return true
	default:
		return false
	}
}

func normalizeClearCaseVersion(v string) string {
	return strings.ReplaceAll(strings.TrimSpace(v), `\`, "/")
}

// parseClearCaseAnnotation reads annotate output formatted with
// clearCaseAnnotateFormat: "author|version|" followed by the line text.
func parseClearCaseAnnotation(r io.Reader, fileName string) (*history.Annotation, error) {
	const tool = "cleartool annotate"
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
		if len(parts) < 3 {
			return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: "expected author|version|"}
		}
		revision := normalizeClearCaseVersion(parts[1])
		if revision == "" {
			return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: "empty version"}
		}
		b.Add(revision, strings.TrimSpace(parts[0]), true)
	}
	return b.Build(), nil
}

// detectSnapshotView reports whether catcs output loads elements, which only
// snapshot views do. It stops reading at the first match.
func detectSnapshotView(r io.Reader) (bool, error) {
	lr := newLineReader(r)
	for {
		line, err := lr.next()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if strings.HasPrefix(line, "load") {
			return true, nil
		}
	}
}
