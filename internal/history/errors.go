package history

import (
	"errors"
	"fmt"
)

// ErrHistoryNotFound is returned when a revision filter matches no entry.
// Its text is relied upon by callers grepping logs, keep it stable.
var ErrHistoryNotFound = errors.New("not found in the repository")

// ParseError reports tool output that does not match the expected grammar.
type ParseError struct {
	Tool   string // e.g. "cleartool lshistory"
	Line   int    // 1-based line number in the output, 0 when unknown
	Text   string // offending line or record
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s output: line %d: %s: %q", e.Tool, e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("parse %s output: %s: %q", e.Tool, e.Reason, e.Text)
}
