package gateway

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// A collate.Collator keeps scratch buffers, so each sort gets its own.
func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.Numeric)
}

// Compare orders two names locale-aware with digit runs compared by value,
// so "folder 2" sorts before "folder 10".
func Compare(a, b string) int {
	return compare(newCollator(), a, b)
}

func compare(c *collate.Collator, a, b string) int {
	if r := c.CompareString(a, b); r != 0 {
		return r
	}
	// collation ties (e.g. differing only in ignorable code points)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortFolders orders folder entries by name.
func SortFolders(entries []FolderEntry) {
	c := newCollator()
	sort.SliceStable(entries, func(i, j int) bool {
		return compare(c, entries[i].Name, entries[j].Name) < 0
	})
}

// SortPictures orders pictures by their full link.
func SortPictures(entries []PictureEntry) {
	c := newCollator()
	sort.SliceStable(entries, func(i, j int) bool {
		return compare(c, entries[i].FullLink, entries[j].FullLink) < 0
	})
}
