//go:build !nosyntaxhighlight

package highlight

import (
	"fmt"
	"io"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Enabled reports whether this build highlights at all.
const Enabled = true

// StyleFor returns the chroma style used for mode.
func StyleFor(mode Mode) *chroma.Style {
	name := "github"
	if mode.IsDark() {
		name = "github-dark"
	}
	return styles.Get(name)
}

// LexerFor picks a lexer from the file name, then from the content.
func LexerFor(path, content string) chroma.Lexer {
	lexer := lexers.Match(path)
	if lexer == nil {
		lexer = lexers.Analyse(content)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

// Write prints content to w with ANSI 256-color escapes.
func Write(w io.Writer, path, content string, mode Mode) error {
	iterator, err := LexerFor(path, content).Tokenise(nil, content)
	if err != nil {
		return fmt.Errorf("tokenise %s: %w", path, err)
	}
	return formatters.TTY256.Format(w, StyleFor(mode), iterator)
}
