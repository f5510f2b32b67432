package repository

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/thiagokokada/histget/internal/history"
)

const (
	gitRecordStart = '\x1e'
	gitFilesStart  = '\x1f'
	// Each record starts with RS; the NUL separated file list printed by
	// --name-only -z follows US.
	gitLogFormat        = "%x1e%H%n%an <%ae>%n%aI%n%B%x1f"
	gitLogSummaryFormat = "%x1e%H%n%an <%ae>%n%aI%n%s%x1f"
)

func parseGitLog(r io.Reader) (*history.History, error) {
	br := bufio.NewReader(r)
	var entries []history.Entry
	for n := 0; ; n++ {
		rec, err := br.ReadBytes(gitRecordStart)
		if err != nil && err != io.EOF {
			return nil, err
		}
		atEOF := err == io.EOF
		rec = bytes.TrimSuffix(rec, []byte{gitRecordStart})
		if n == 0 {
			// Everything before the first RS; only whitespace is expected.
			if len(bytes.TrimSpace(rec)) != 0 {
				return nil, &history.ParseError{Tool: "git log", Text: string(rec), Reason: "output before first record"}
			}
		} else {
			entry, err := parseGitLogRecord(rec)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
		if atEOF {
			break
		}
	}
	return history.New(entries), nil
}

func parseGitLogRecord(rec []byte) (history.Entry, error) {
	const tool = "git log"
	header, files, ok := bytes.Cut(rec, []byte{gitFilesStart})
	if !ok {
		return history.Entry{}, &history.ParseError{Tool: tool, Text: string(rec), Reason: "missing file list separator"}
	}
	parts := strings.SplitN(string(header), "\n", 4)
	if len(parts) < 3 {
		return history.Entry{}, &history.ParseError{Tool: tool, Text: string(header), Reason: "truncated record"}
	}
	hash := strings.TrimSpace(parts[0])
	if !isHexHash(hash) {
		return history.Entry{}, &history.ParseError{Tool: tool, Text: parts[0], Reason: "invalid commit hash"}
	}
	when, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[2]))
	if err != nil {
		return history.Entry{}, &history.ParseError{Tool: tool, Text: parts[2], Reason: "invalid date"}
	}
	message := ""
	if len(parts) > 3 {
		message = strings.TrimSpace(parts[3])
	}
	// -z terminates the header with NUL and puts a newline before the first
	// name.
	files = bytes.TrimPrefix(files, []byte{0})
	files = bytes.TrimPrefix(files, []byte{'\n'})
	var names []string
	for name := range strings.SplitSeq(string(files), "\x00") {
		if name != "" {
			names = append(names, name)
		}
	}
	return history.NewEntry(hash, parts[1], when, message, names), nil
}

// parseGitBlame reads `git blame --porcelain`. Each source line is preceded
// by a "<hash> <orig> <final> [<count>]" header; the first header of a commit
// is followed by its metadata, of which only the author is kept.
func parseGitBlame(r io.Reader, fileName string) (*history.Annotation, error) {
	const tool = "git blame"
	lr := newLineReader(r)
	b := history.NewAnnotationBuilder(fileName)
	authors := make(map[string]string)
	current := ""
	for {
		line, err := lr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(line, "\t") {
			if current == "" {
				return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: "content before header"}
			}
			b.Add(current, authors[current], !isZeroHash(current))
			current = ""
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: "empty line"}
		}
		if isHexHash(fields[0]) {
			if len(fields) != 3 && len(fields) != 4 {
				return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: "invalid header"}
			}
			current = fields[0]
			continue
		}
		if current == "" {
			return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: line, Reason: "metadata before header"}
		}
		if author, ok := strings.CutPrefix(line, "author "); ok {
			authors[current] = author
		}
	}
	if current != "" {
		return nil, &history.ParseError{Tool: tool, Line: lr.line, Text: current, Reason: "header without content line"}
	}
	return b.Build(), nil
}

func isHexHash(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func isZeroHash(s string) bool {
	return strings.Trim(s, "0") == ""
}
