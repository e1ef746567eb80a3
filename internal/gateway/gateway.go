// Package gateway talks to the gallery JSON API.
//
// Every list operation returns entries in no particular order; callers sort
// them with SortFolders / SortPictures before display. Failures are returned
// as *Error so call sites can log the operation and path they concern.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Gateway is the set of remote operations the browser depends on.
type Gateway interface {
	ListSources(ctx context.Context, nsfw bool) ([]FolderEntry, error)
	ListSubfolders(ctx context.Context, path string) ([]FolderEntry, error)
	ListPictures(ctx context.Context, path string) ([]PictureEntry, error)
	ListRecent(ctx context.Context, nsfw, onlyFolders bool) ([]RecentEntry, error)
	ListNewSources(ctx context.Context) ([]NewSourceEntry, error)
	// RequestArchive asks the server to prepare a zip of path and reports
	// whether it is ready for download.
	RequestArchive(ctx context.Context, path string) (bool, error)
	// DownloadURL is the link that streams the prepared archive of path.
	DownloadURL(path string) string
}

// FolderEntry is a source or a subfolder.
type FolderEntry struct {
	Name string
	// Link is the folder path relative to the gallery root.
	Link    string
	Preview string
	// GenericIcon means there is no thumbnail; show a folder icon instead.
	// Preview is empty when it is set.
	GenericIcon bool
}

// PictureEntry links a full image and its thumbnail, both absolute.
type PictureEntry struct {
	ID          string
	FullLink    string
	PreviewLink string
}

// RecentEntry is one item of the recent additions strip.
type RecentEntry struct {
	Folder  string `json:"folder"`
	Name    string `json:"name"`
	Preview string `json:"preview"`
}

// NewSourceEntry is a newly added source, reported for diagnostics only.
type NewSourceEntry struct {
	Name   string
	Detail string
}

// ErrStatus is wrapped when the API answers with a non-2xx status.
var ErrStatus = errors.New("unexpected status")

// Error records the failed operation and the folder path it concerned.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
