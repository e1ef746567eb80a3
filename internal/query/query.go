// Package query maps the location query string to a navigation state and back.
package query

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// FolderParam holds the "/"-joined folder path.
	FolderParam = "folder"
	// NsfwParam holds "true" or "false".
	NsfwParam = "isNsfw"

	// WelcomeTitle is the title of the index view.
	WelcomeTitle = "Welcome"
)

// Buckets names the two rating-bucket pseudo folders the gateway uses
// inside a source.
type Buckets struct {
	Safe   string
	Unsafe string
}

// DefaultBuckets matches the canonical deployment.
func DefaultBuckets() Buckets {
	return Buckets{Safe: "1.SFW", Unsafe: "2.NSFW"}
}

// Contains reports whether segment is one of the bucket names.
func (b Buckets) Contains(segment string) bool {
	return segment != "" && (segment == b.Safe || segment == b.Unsafe)
}

// State is the navigation state derived from a location.
// Path is nil at the index view.
type State struct {
	Path  []string
	Title string
	Nsfw  bool
	// NsfwSet is true when the isNsfw parameter was present at all.
	NsfwSet bool
}

// IsIndex reports whether the state is the index (welcome) view.
func (s State) IsIndex() bool {
	return s.Path == nil
}

// Folder returns the path joined with "/", or "" at the index.
func (s State) Folder() string {
	return strings.Join(s.Path, "/")
}

// Parent returns the path minus its last segment. ok is false when the
// path has fewer than two segments.
func (s State) Parent() (parent []string, ok bool) {
	if len(s.Path) < 2 {
		return nil, false
	}
	parent = make([]string, len(s.Path)-1)
	copy(parent, s.Path)
	return parent, true
}

// Child returns a copy of the path with name appended.
func (s State) Child(name string) []string {
	child := make([]string, 0, len(s.Path)+1)
	child = append(child, s.Path...)
	return append(child, name)
}

// Decode parses a location search string (with or without the leading "?").
// A missing or empty folder parameter yields the index state.
func Decode(search string, buckets Buckets) State {
	values, err := url.ParseQuery(strings.TrimPrefix(search, "?"))
	if err != nil && values == nil {
		values = url.Values{}
	}

	st := State{Title: WelcomeTitle}
	if values.Has(NsfwParam) {
		st.NsfwSet = true
		st.Nsfw = values.Get(NsfwParam) == "true"
	}

	path := SplitPath(values.Get(FolderParam))
	if path == nil {
		return st
	}
	st.Path = path
	st.Title = TitleFor(path, buckets)
	return st
}

// SplitPath splits a "/"-joined folder into segments, dropping empty ones.
// It returns nil when nothing remains.
func SplitPath(folder string) []string {
	var path []string
	for _, seg := range strings.Split(folder, "/") {
		if seg != "" {
			path = append(path, seg)
		}
	}
	return path
}

// TitleFor derives the display title of a folder path. A trailing rating
// bucket is skipped in favour of the folder that contains it.
func TitleFor(path []string, buckets Buckets) string {
	switch n := len(path); {
	case n == 0:
		return WelcomeTitle
	case n >= 2 && buckets.Contains(path[n-1]):
		return path[n-2]
	default:
		return path[n-1]
	}
}

// Encode builds a new query string from search. A nil path removes the
// folder parameter; a nil nsfw leaves isNsfw as it is. Other parameters
// are kept.
func Encode(search string, path []string, nsfw *bool) string {
	values, err := url.ParseQuery(strings.TrimPrefix(search, "?"))
	if err != nil && values == nil {
		values = url.Values{}
	}
	if path == nil {
		values.Del(FolderParam)
	} else {
		values.Set(FolderParam, strings.Join(path, "/"))
	}
	if nsfw != nil {
		values.Set(NsfwParam, strconv.FormatBool(*nsfw))
	}
	return values.Encode()
}

// Href is Encode with the leading "?" that makes it a relative URL.
// An empty query still yields "?" so the folder parameter is really dropped.
func Href(search string, path []string, nsfw *bool) string {
	return "?" + Encode(search, path, nsfw)
}
