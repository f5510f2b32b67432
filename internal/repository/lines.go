package repository

import (
	"bufio"
	"io"
	"strings"
)

// lineReader reads tool output one line at a time without the line length
// limit of bufio.Scanner.
type lineReader struct {
	r    *bufio.Reader
	line int
}

func newLineReader(r io.Reader) *lineReader {
	if br, ok := r.(*bufio.Reader); ok {
		return &lineReader{r: br}
	}
	return &lineReader{r: bufio.NewReader(r)}
}

// next returns the next line without its terminator, or io.EOF.
func (l *lineReader) next() (string, error) {
	s, err := l.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && s != "" {
			l.line++
			return strings.TrimSuffix(s, "\r"), nil
		}
		return "", err
	}
	l.line++
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r"), nil
}
