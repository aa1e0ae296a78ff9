// Package client embeds the browser player served by the video backend.
package client

import (
	"embed"
	"io/fs"
)

//go:embed dist
var dist embed.FS

// Build is rooted inside of the dist directory, such that index.html is at the
// root.
var Build fs.FS

func init() {
	if build, err := fs.Sub(dist, "dist"); err == nil {
		Build = build
	} else {
		panic(err)
	}
}
