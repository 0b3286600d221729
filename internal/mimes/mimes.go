// Package mimes maps virtual file names to extensions and content types.
package mimes

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// contentTypes is the fixed table the virtual file server answers with.
var contentTypes = map[string]string{
	"js":   "application/javascript",
	"css":  "text/css",
	"html": "text/html",
	"htm":  "text/html",
	"json": "application/json",
}

// Ext returns the lower-cased extension of name without the leading dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// ContentType returns the served content type for name. Unknown extensions
// are served as text/plain.
func ContentType(name string) string {
	if t, ok := contentTypes[Ext(name)]; ok {
		return t
	}
	return "text/plain"
}

// IsText reports whether content looks like text. Detection walks the
// detected type's parents until it reaches text/plain.
func IsText(content []byte) bool {
	for t := mimetype.Detect(content); t != nil; t = t.Parent() {
		if t.Is("text/plain") {
			return true
		}
	}
	return false
}
