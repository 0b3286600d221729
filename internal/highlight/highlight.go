// Package highlight renders editor source as class-annotated HTML using the
// chroma lexer registry. Handlers register extra lexers into the same
// registry when their editor mode is initialized.
package highlight

import (
	"bytes"
	"fmt"

	"github.com/alecthomas/chroma"
	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
)

var formatter = chromahtml.New(chromahtml.WithClasses(true))

// Lexer returns the lexer registered for an editor mode. Unknown modes get
// the plain-text fallback.
func Lexer(mode string) chroma.Lexer {
	if l := lexers.Get(mode); l != nil {
		return l
	}
	return lexers.Fallback
}

// HTML highlights source with the lexer for mode.
func HTML(mode, source string) (string, error) {
	it, err := chroma.Coalesce(Lexer(mode)).Tokenise(nil, source)
	if err != nil {
		return "", fmt.Errorf("tokenise %s: %w", mode, err)
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, styles.Get("github"), it); err != nil {
		return "", fmt.Errorf("format %s: %w", mode, err)
	}
	return buf.String(), nil
}

// CSS returns the stylesheet for the classes HTML emits.
func CSS() string {
	var buf bytes.Buffer
	if err := formatter.WriteCSS(&buf, styles.Get("github")); err != nil {
		return ""
	}
	return buf.String()
}
