// Package markdown is the static HTML handler for Markdown sources.
package markdown

import (
	"bytes"
	_ "embed"
	"html"
	"path"
	"strconv"
	"strings"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extensionast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	alertcallouts "github.com/zmtcreative/gm-alert-callouts"

	"go-live-ide/internal/handler"
	"go-live-ide/internal/mimes"
)

// LineAttribute carries the 1-based source line of a block element.
const LineAttribute = "data-md-line"

//go:embed page.html
var pageTemplate string

var chromaCSS = func() string {
	var buf bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&buf, styles.Get("github")); err != nil {
		return ""
	}
	return buf.String()
}()

// Handler renders Markdown into a standalone HTML page.
type Handler struct {
	md goldmark.Markdown
}

func New() *Handler {
	md := goldmark.New(
		goldmark.WithExtensions(
			alertcallouts.AlertCallouts,
			extension.GFM,
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
			extension.Linkify,
			highlighting.NewHighlighting(
				highlighting.WithWrapperRenderer(renderHighlightedCodeWrapper),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	return &Handler{md: md}
}

func (h *Handler) Name() string { return "markdown" }

func (h *Handler) Capabilities() handler.Capabilities {
	return handler.Capabilities{}
}

func (h *Handler) CanHandle(fileName string) bool {
	switch mimes.Ext(fileName) {
	case "md", "markdown":
		return true
	}
	return false
}

func (h *Handler) FileType(string) string   { return "markdown" }
func (h *Handler) EditorMode(string) string { return "markdown" }

// GeneratePreview renders the file into a full page. A conversion failure
// shows the raw source with the error instead of failing the preview.
func (h *Handler) GeneratePreview(fileName, content string) handler.Preview {
	fragment, err := h.ConvertFragment([]byte(content), fileName)
	if err != nil {
		fragment = "<p><strong>Markdown error:</strong> " + html.EscapeString(err.Error()) + "</p>\n<pre>" +
			html.EscapeString(content) + "</pre>"
	}
	page := strings.NewReplacer(
		"{{TITLE}}", html.EscapeString(fileName),
		"{{CHROMA_CSS}}", chromaCSS,
		"{{CONTENT}}", fragment,
	).Replace(pageTemplate)
	return handler.Preview{Category: handler.CategoryStaticHTML, Content: page}
}

// ConvertFragment parses markdown source and returns the HTML fragment with
// data-md-line attributes attached to block elements.
//
// Relative image destinations are rewritten against the directory of
// fileName, because the preview page is always served from the root of the
// virtual file server prefix.
func (h *Handler) ConvertFragment(source []byte, fileName string) (string, error) {
	doc := h.md.Parser().Parse(text.NewReader(source))
	decorateAST(doc, source, fileName)

	var buf bytes.Buffer
	if err := h.md.Renderer().Render(&buf, source, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// decorateAST walks the AST once, attaching line metadata for cursor follow
// and resolving local image destinations.
func decorateAST(doc ast.Node, source []byte, fileName string) {
	baseDir := path.Dir(fileName)

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if shouldAnnotateNode(n) {
			if offset, ok := firstNodeOffset(n); ok {
				n.SetAttributeString(LineAttribute, strconv.Itoa(offsetToLine(source, offset)))
			}
		}

		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}

		rawDest := strings.TrimSpace(string(img.Destination))
		if rawDest == "" || isExternal(rawDest) {
			return ast.WalkContinue, nil
		}

		if baseDir != "." && !strings.HasPrefix(rawDest, "/") {
			img.Destination = []byte(path.Join(baseDir, rawDest))
		}
		img.SetAttributeString("loading", "lazy")
		img.SetAttributeString("decoding", "async")
		return ast.WalkContinue, nil
	})
}

func isExternal(dest string) bool {
	lower := strings.ToLower(dest)
	for _, prefix := range []string{"http://", "https://", "data:", "blob:", "file://", "//", "#"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// shouldAnnotateNode returns true for block-level element types that map
// directly to source lines.
func shouldAnnotateNode(n ast.Node) bool {
	switch n.Kind() {
	case ast.KindHeading,
		ast.KindParagraph,
		ast.KindBlockquote,
		ast.KindFencedCodeBlock,
		ast.KindList,
		ast.KindListItem,
		ast.KindThematicBreak,
		extensionast.KindTable:
		return true
	default:
		return false
	}
}

// firstNodeOffset returns the byte offset of the first line in a node,
// searching children for nodes such as lists that carry no lines themselves.
func firstNodeOffset(n ast.Node) (int, bool) {
	if n == nil {
		return 0, false
	}

	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		return lines.At(0).Start, true
	}

	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if offset, ok := firstNodeOffset(child); ok {
			return offset, true
		}
	}

	return 0, false
}

// offsetToLine converts a byte offset, clamped to the source, to a 1-based
// line number.
func offsetToLine(source []byte, offset int) int {
	if offset < 0 {
		offset = 0
	}
	if offset > len(source) {
		offset = len(source)
	}
	return bytes.Count(source[:offset], []byte{'\n'}) + 1
}

// renderHighlightedCodeWrapper keeps the line attribute of highlighted code
// blocks by wrapping them in a div.
func renderHighlightedCodeWrapper(w util.BufWriter, context highlighting.CodeBlockContext, entering bool) {
	line, ok := highlightedCodeLine(context)
	if !ok {
		return
	}

	if entering {
		_, _ = w.WriteString("<div ")
		_, _ = w.WriteString(LineAttribute)
		_, _ = w.WriteString(`="`)
		_, _ = w.WriteString(line)
		_, _ = w.WriteString(`">`)
		return
	}

	_, _ = w.WriteString("</div>")
}

func highlightedCodeLine(context highlighting.CodeBlockContext) (string, bool) {
	if context == nil {
		return "", false
	}

	attrs := context.Attributes()
	if attrs == nil {
		return "", false
	}

	v, ok := attrs.GetString(LineAttribute)
	if !ok {
		return "", false
	}

	switch typed := v.(type) {
	case string:
		return typed, typed != ""
	case []byte:
		if len(typed) == 0 {
			return "", false
		}
		return string(typed), true
	default:
		return "", false
	}
}
