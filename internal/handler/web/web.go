// Package web is the static HTML handler for web sources. It is also the
// registry's fallback for names no other handler claims.
package web

import (
	_ "embed"
	"html"
	"strings"

	"go-live-ide/internal/handler"
	"go-live-ide/internal/mimes"
)

var (
	//go:embed css_sample.html
	cssTemplate string
	//go:embed js_sandbox.html
	jsTemplate string
	//go:embed json_view.html
	jsonTemplate string
	//go:embed unavailable.html
	unavailableTemplate string
)

// fileTypes is keyed by extension. Anything missing is "text".
var fileTypes = map[string]string{
	"html": "html",
	"htm":  "html",
	"css":  "css",
	"js":   "javascript",
	"json": "json",
}

var angleEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// "</" is broken up so user code cannot close the script element.
var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"${", `\${`,
	"</", `<\/`,
)

// Handler previews html, css, js and json files.
type Handler struct{}

// New returns the web handler.
func New() *Handler {
	return &Handler{}
}

func (h *Handler) Name() string { return "web" }

func (h *Handler) Capabilities() handler.Capabilities {
	return handler.Capabilities{}
}

func (h *Handler) CanHandle(fileName string) bool {
	_, ok := fileTypes[mimes.Ext(fileName)]
	return ok
}

func (h *Handler) FileType(fileName string) string {
	if t, ok := fileTypes[mimes.Ext(fileName)]; ok {
		return t
	}
	return "text"
}

func (h *Handler) EditorMode(fileName string) string {
	return h.FileType(fileName)
}

// GeneratePreview returns a complete HTML document for the file. The
// output depends only on its arguments.
func (h *Handler) GeneratePreview(fileName, content string) handler.Preview {
	var doc string
	switch mimes.Ext(fileName) {
	case "html", "htm":
		doc = content
	case "css":
		doc = CSSDocument(fileName, content)
	case "js":
		doc = JSDocument(fileName, content)
	case "json":
		doc = JSONDocument(fileName, content)
	default:
		doc = UnavailableDocument(fileName)
	}
	return handler.Preview{Category: handler.CategoryStaticHTML, Content: doc}
}

// CSSDocument embeds css unmodified into a fixed sample page.
func CSSDocument(fileName, css string) string {
	return strings.NewReplacer(
		"{{NAME}}", html.EscapeString(fileName),
		"{{CSS}}", css,
	).Replace(cssTemplate)
}

// JSDocument shows the escaped source and a run button that evaluates it
// with console.log captured into a console region.
func JSDocument(fileName, source string) string {
	return strings.NewReplacer(
		"{{NAME}}", html.EscapeString(fileName),
		"{{SOURCE}}", EscapeAngles(source),
		"{{CODE}}", EscapeTemplateLiteral(source),
	).Replace(jsTemplate)
}

// JSONDocument pretty-prints valid JSON with a two-space indent. Invalid
// input is shown as written.
func JSONDocument(fileName, content string) string {
	text := content
	if pretty, ok := PrettyJSON(content); ok {
		text = pretty
	}
	return strings.NewReplacer(
		"{{NAME}}", html.EscapeString(fileName),
		"{{JSON}}", EscapeAngles(text),
	).Replace(jsonTemplate)
}

// UnavailableDocument is shown for files nothing can preview.
func UnavailableDocument(fileName string) string {
	return strings.ReplaceAll(unavailableTemplate, "{{NAME}}", html.EscapeString(fileName))
}

// EscapeAngles entity-escapes angle brackets.
func EscapeAngles(s string) string {
	return angleEscaper.Replace(s)
}

// EscapeTemplateLiteral makes s safe to place between backticks.
func EscapeTemplateLiteral(s string) string {
	return literalEscaper.Replace(s)
}
