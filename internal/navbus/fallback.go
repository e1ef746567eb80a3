package navbus

import (
	"net/url"
	"sync"
)

// Locator reports the committed location. history.Session is one.
type Locator interface {
	Location() *url.URL
}

// installed holds the fallback of every host, keyed by its history, so
// buses sharing a host share one patched pair and one set of forwarders.
var (
	installMu sync.Mutex
	installed = make(map[Primitives]*Fallback)
)

// fallbackFor returns the fallback of h, building it on first use.
func fallbackFor(h Host) (fb *Fallback, built bool) {
	installMu.Lock()
	defer installMu.Unlock()
	if fb, ok := installed[h.History]; ok {
		return fb, false
	}
	fb = newFallback(h)
	installed[h.History] = fb
	return fb, true
}

// Fallback is the event bus used when the host has no native navigation
// facility. Each host gets exactly one, built on first use.
type Fallback struct {
	mu        sync.Mutex
	listeners []*Listener

	history Primitives
}

func newFallback(h Host) *Fallback {
	fb := &Fallback{}
	fb.history = Patch(h.History, h.Document, fb.Dispatch)

	// back/forward and fragment changes take the same path as push/replace
	forward := NewListener(fb.Dispatch)
	h.Window.AddPopStateListener(forward)
	h.Window.AddHashChangeListener(forward)
	return fb
}

// History returns the wrapped push/replace pair.
func (fb *Fallback) History() Primitives {
	return fb.history
}

// Add registers l once; duplicates are ignored.
func (fb *Fallback) Add(l *Listener) {
	if l == nil {
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, x := range fb.listeners {
		if x == l {
			return
		}
	}
	fb.listeners = append(fb.listeners, l)
}

// Remove unregisters l.
func (fb *Fallback) Remove(l *Listener) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i, x := range fb.listeners {
		if x == l {
			fb.listeners = append(fb.listeners[:i:i], fb.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (fb *Fallback) Len() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.listeners)
}

// Dispatch delivers e to every listener, in registration order.
func (fb *Fallback) Dispatch(e Event) {
	fb.mu.Lock()
	ls := append([]*Listener(nil), fb.listeners...)
	fb.mu.Unlock()
	for _, l := range ls {
		l.Fire(e)
	}
}

// patched marks primitives that already broadcast.
type patched struct {
	orig     Primitives
	doc      Document
	dispatch func(Event)
}

// Patch wraps p so each successful push or replace also sets the document
// title and calls dispatch. Patching an already patched value returns it
// unchanged.
func Patch(p Primitives, doc Document, dispatch func(Event)) Primitives {
	if IsPatched(p) {
		return p
	}
	return &patched{orig: p, doc: doc, dispatch: dispatch}
}

// IsPatched reports whether p was returned by Patch.
func IsPatched(p Primitives) bool {
	_, ok := p.(*patched)
	return ok
}

func (p *patched) PushState(state any, title, rawURL string) error {
	if err := p.orig.PushState(state, title, rawURL); err != nil {
		return err
	}
	p.after(state, title, rawURL)
	return nil
}

func (p *patched) ReplaceState(state any, title, rawURL string) error {
	if err := p.orig.ReplaceState(state, title, rawURL); err != nil {
		return err
	}
	p.after(state, title, rawURL)
	return nil
}

func (p *patched) after(state any, title, rawURL string) {
	if p.doc != nil {
		p.doc.SetTitle(title)
	}
	dest := rawURL
	if l, ok := p.orig.(Locator); ok {
		dest = l.Location().String()
	}
	p.dispatch(Event{Destination: dest, State: state})
}
