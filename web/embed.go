// Package web embeds the console's page templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static templates
var content embed.FS

// mustSub returns the named subdirectory of the embedded files. The
// directories are fixed at build time, so a failure is a programming error.
func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(content, dir)
	if err != nil {
		panic("web: missing embedded directory " + dir + ": " + err.Error())
	}
	return sub
}

// StaticFS returns the static asset file system (styles, scripts).
func StaticFS() fs.FS {
	return mustSub("static")
}

// TemplatesFS returns the page template file system.
func TemplatesFS() fs.FS {
	return mustSub("templates")
}
