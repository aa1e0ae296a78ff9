// Package assets serves the static files of the browser player.
package assets

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
)

const indexPage = "/index.html"

// Handler serves the files in fsys, which must have index.html at its root.
//
// Unknown paths without a file extension are answered with the index page
// rather than a 404, so that the player can be reloaded on any of its own
// routes. Directory listings are never served.
func Handler(fsys fs.FS) http.Handler {
	return http.FileServer(fileSystem{http.FS(fsys)})
}

type fileSystem struct {
	http.FileSystem
}

func (fsys fileSystem) Open(name string) (http.File, error) {
	f, err := fsys.FileSystem.Open(name)
	if errors.Is(err, fs.ErrNotExist) && name != indexPage && path.Ext(name) == "" {
		return fsys.FileSystem.Open(indexPage)
	}
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		// http.FileServer serves the index page of a directory itself, and
		// redirects requests for the page to the directory, so the directory
		// entry is returned as-is when an index exists. Without one, the
		// directory is hidden.
		index, err := fsys.FileSystem.Open(path.Join(name, indexPage))
		if err != nil {
			f.Close()
			return nil, fs.ErrNotExist
		}
		index.Close()
	}
	return f, nil
}
