// Package web carries the portal's HTML templates and browser assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/layouts/*.html templates/partials/*.html templates/pages/*.html
var Templates embed.FS

// TemplatePatterns lists the template globs in parse order: layouts first so
// pages can reference "head" and "foot".
var TemplatePatterns = []string{
	"templates/layouts/*.html",
	"templates/partials/*.html",
	"templates/pages/*.html",
}

//go:embed static/css/*.css static/js/*.js
var static embed.FS

// Static returns the assets rooted at their public path below /static/.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		// Only reachable if the embed directive and the prefix disagree.
		panic(err)
	}
	return sub
}
