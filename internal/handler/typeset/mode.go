package typeset

import (
	"sync"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/lexers"
)

// LexerName is the editor mode advertised for typst files.
const LexerName = "typst"

const keywords = `(let|set|show|import|include|if|else|for|while|return|break|continue|in|not|and|or|as|context)`

// Lexer tokenizes typst markup for syntax coloring.
var Lexer = chroma.MustNewLexer(
	&chroma.Config{
		Name:      LexerName,
		Aliases:   []string{"typ"},
		Filenames: []string{"*.typ"},
		MimeTypes: []string{"text/x-typst"},
	},
	chroma.Rules{
		"root": {
			{Pattern: `//[^\n]*`, Type: chroma.CommentSingle},
			{Pattern: `/\*`, Type: chroma.CommentMultiline, Mutator: chroma.Push("comment")},
			{Pattern: `(?m)^[ \t]*=+[ \t][^\n]*`, Type: chroma.GenericHeading},
			{Pattern: "```[\\s\\S]*?```", Type: chroma.LiteralStringBacktick},
			{Pattern: "`[^`\\n]*`", Type: chroma.LiteralStringBacktick},
			{Pattern: `\$`, Type: chroma.LiteralStringOther, Mutator: chroma.Push("math")},
			{Pattern: `#` + keywords + `\b`, Type: chroma.Keyword},
			{Pattern: `#(true|false|none|auto)\b`, Type: chroma.KeywordConstant},
			{Pattern: `#[a-zA-Z_][\w-]*`, Type: chroma.NameFunction},
			{Pattern: `"(\\\\|\\"|[^"])*"`, Type: chroma.LiteralString},
			{Pattern: `\b\d+(\.\d+)?(pt|mm|cm|in|em|fr|deg|rad|%)?`, Type: chroma.LiteralNumber},
			{Pattern: `\b` + keywords + `\b`, Type: chroma.Keyword},
			{Pattern: `\b(true|false|none|auto)\b`, Type: chroma.KeywordConstant},
			{Pattern: `\*[^*\n]+\*`, Type: chroma.GenericStrong},
			{Pattern: `_[^_\n]+_`, Type: chroma.GenericEmph},
			{Pattern: `[{}()\[\],:;]`, Type: chroma.Punctuation},
			{Pattern: `\s+`, Type: chroma.Text},
			{Pattern: `[\w-]+`, Type: chroma.Text},
			{Pattern: `.`, Type: chroma.Text},
		},
		"comment": {
			{Pattern: `\*/`, Type: chroma.CommentMultiline, Mutator: chroma.Pop(1)},
			{Pattern: `[^*]+`, Type: chroma.CommentMultiline},
			{Pattern: `\*`, Type: chroma.CommentMultiline},
		},
		"math": {
			{Pattern: `\$`, Type: chroma.LiteralStringOther, Mutator: chroma.Pop(1)},
			{Pattern: `[^$]+`, Type: chroma.LiteralStringOther},
		},
	},
)

var registerOnce sync.Once

// InitializeEditorMode registers the typst lexer with the highlighter
// registry. It is cosmetic and does not affect rendering.
func (h *Handler) InitializeEditorMode() error {
	registerOnce.Do(func() {
		lexers.Register(Lexer)
	})
	return nil
}
