// Package webui carries the static frontend assets.
package webui

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed static view
var files embed.FS

// Files returns the frontend assets. A debug build reads them from disk so
// edits show up without recompiling, anything else gets the embedded copies.
func Files(build string) fs.FS {
	if build == "debug" {
		return os.DirFS("src/handler/webui")
	}
	return files
}
