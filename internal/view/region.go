// Package view holds what the browser shows: the chrome and the content
// region the controller fills on each render pass.
package view

import (
	"strings"
	"sync"
)

// Kind says what a node displays.
type Kind int

const (
	KindRecent Kind = iota
	KindSource
	KindFolder
	KindSeparator
	KindPicture
	KindDownload
)

func (k Kind) String() string {
	switch k {
	case KindRecent:
		return "recent"
	case KindSource:
		return "source"
	case KindFolder:
		return "folder"
	case KindSeparator:
		return "separator"
	case KindPicture:
		return "picture"
	case KindDownload:
		return "download"
	}
	return "unknown"
}

// Item is one card of the recent additions strip.
type Item struct {
	Label   string
	Target  []string
	Preview string
}

// Node is one visible element of the content region.
type Node struct {
	Kind  Kind
	Label string
	// Target is the folder path a source or folder card navigates to.
	Target      []string
	Preview     string
	GenericIcon bool
	// Link is the full picture link.
	Link string
	// Items is set on the recent strip only.
	Items []Item
}

// Chrome is the static part of the page, rendered once at startup.
type Chrome struct {
	AppName    string
	ShowFilter bool
	Nsfw       bool
}

// Snapshot is a consistent copy of the region.
type Snapshot struct {
	Generation uint64
	Title      string
	Nodes      []Node
	Busy       bool
	Chrome     Chrome
}

// Region is the single content area. It is safe for concurrent use.
type Region struct {
	mu       sync.Mutex
	gen      uint64
	title    string
	nodes    []Node
	busy     int
	tasks    int
	chrome   Chrome
	onChange func()
}

// NewRegion returns an empty region. onChange, if set, is called after
// every visible change, outside the region lock.
func NewRegion(onChange func()) *Region {
	return &Region{onChange: onChange}
}

// SetChrome replaces the chrome.
func (r *Region) SetChrome(c Chrome) {
	r.mu.Lock()
	r.chrome = c
	r.mu.Unlock()
	r.changed()
}

// SetFilter updates the filter selection shown in the chrome.
func (r *Region) SetFilter(nsfw bool) {
	r.mu.Lock()
	r.chrome.Nsfw = nsfw
	r.mu.Unlock()
	r.changed()
}

// Begin clears the region and opens a frame for one render pass. Frames
// opened earlier become stale: their writes are dropped.
func (r *Region) Begin(title string) *Frame {
	r.mu.Lock()
	r.gen++
	r.title = title
	r.nodes = nil
	r.busy = 0
	f := &Frame{r: r, gen: r.gen}
	r.mu.Unlock()
	r.changed()
	return f
}

// Current returns a frame for the latest pass.
func (r *Region) Current() *Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Frame{r: r, gen: r.gen}
}

// Snapshot copies the region state.
func (r *Region) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Generation: r.gen,
		Title:      r.title,
		Nodes:      append([]Node(nil), r.nodes...),
		Busy:       r.busy > 0 || r.tasks > 0,
		Chrome:     r.chrome,
	}
}

// Busy shows the busy indicator for work that is not part of a render
// pass. Later passes do not clear it; only the returned func does, and it
// is safe to call more than once.
func (r *Region) Busy() (done func()) {
	r.mu.Lock()
	r.tasks++
	r.mu.Unlock()
	r.changed()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.tasks--
			r.mu.Unlock()
			r.changed()
		})
	}
}

func (r *Region) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}

// Frame writes into the region for one render pass.
type Frame struct {
	r   *Region
	gen uint64
}

// Generation identifies the pass.
func (f *Frame) Generation() uint64 { return f.gen }

// Stale reports whether a newer pass has begun.
func (f *Frame) Stale() bool {
	f.r.mu.Lock()
	defer f.r.mu.Unlock()
	return f.gen != f.r.gen
}

// Append adds nodes unless the frame is stale. It reports whether they
// were added.
func (f *Frame) Append(nodes ...Node) bool {
	f.r.mu.Lock()
	if f.gen != f.r.gen {
		f.r.mu.Unlock()
		return false
	}
	f.r.nodes = append(f.r.nodes, nodes...)
	f.r.mu.Unlock()
	f.r.changed()
	return true
}

// Busy shows the busy indicator until the returned func is called. The
// func is safe to call more than once.
func (f *Frame) Busy() (done func()) {
	f.r.mu.Lock()
	if f.gen != f.r.gen {
		f.r.mu.Unlock()
		return func() {}
	}
	f.r.busy++
	f.r.mu.Unlock()
	f.r.changed()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.r.mu.Lock()
			if f.gen == f.r.gen && f.r.busy > 0 {
				f.r.busy--
			}
			f.r.mu.Unlock()
			f.r.changed()
		})
	}
}

// Text renders a snapshot as plain lines, one node per line.
func (s Snapshot) Text() string {
	var b strings.Builder
	b.WriteString("# " + s.Title + "\n")
	for _, n := range s.Nodes {
		switch n.Kind {
		case KindRecent:
			labels := make([]string, 0, len(n.Items))
			for _, it := range n.Items {
				labels = append(labels, it.Label)
			}
			b.WriteString("recent: " + strings.Join(labels, " | ") + "\n")
		case KindSeparator:
			b.WriteString("----\n")
		case KindPicture:
			b.WriteString("picture " + n.Link + "\n")
		case KindDownload:
			b.WriteString("[download]\n")
		default:
			b.WriteString(n.Kind.String() + " " + n.Label + "\n")
		}
	}
	return b.String()
}

// Kinds lists the node kinds in order.
func (s Snapshot) Kinds() []Kind {
	kinds := make([]Kind, len(s.Nodes))
	for i, n := range s.Nodes {
		kinds[i] = n.Kind
	}
	return kinds
}
