// Package history is the browsing context the gallery client runs in: a
// location, a session history stack, a document title, popstate and
// hashchange listeners, and optionally a native navigation facility.
//
// Listeners are invoked synchronously, outside the session lock, in the
// order the triggering calls were made.
package history

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
)

// Event describes a navigation: where it went and the state attached to
// the history entry.
type Event struct {
	Destination string
	State       any
}

// Listener wraps a callback so it has an identity. Registering the same
// *Listener twice is the same as registering it once.
type Listener struct {
	fn func(Event)
}

// NewListener returns a listener invoking fn.
func NewListener(fn func(Event)) *Listener {
	return &Listener{fn: fn}
}

// Fire invokes the callback.
func (l *Listener) Fire(e Event) {
	if l != nil && l.fn != nil {
		l.fn(e)
	}
}

// ErrCrossOrigin is returned when a push or replace would leave the origin.
var ErrCrossOrigin = errors.New("history: url is not same-origin")

type entry struct {
	url   *url.URL
	state any
	title string
}

// Session is one browsing context. The zero value is not usable; use New.
type Session struct {
	mu      sync.Mutex
	entries []entry
	index   int
	title   string

	popstate   listenerSet
	hashchange listenerSet
	navigation *Navigation
}

// Option configures a Session.
type Option func(*Session)

// WithNavigation gives the session a native navigation facility.
func WithNavigation() Option {
	return func(s *Session) {
		s.navigation = &Navigation{}
	}
}

// New opens a session at start, which must be an absolute URL.
func New(start string, opts ...Option) (*Session, error) {
	u, err := url.Parse(start)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("start url %q is not absolute", start)
	}
	s := &Session{entries: []entry{{url: u}}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Navigation returns the native navigation facility, or nil if the session
// has none.
func (s *Session) Navigation() *Navigation {
	return s.navigation
}

// Location returns a copy of the current URL.
func (s *Session) Location() *url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *s.entries[s.index].url
	return &u
}

// State returns the state of the current entry.
func (s *Session) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[s.index].state
}

// Title returns the document title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// SetTitle sets the document title.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.entries[s.index].title = title
	s.mu.Unlock()
}

// Len returns the number of history entries.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Index returns the position of the current entry.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// PushState adds an entry after the current one, discarding forward
// entries. The title argument is recorded on the entry but, as in
// browsers, does not change the document title.
func (s *Session) PushState(state any, title, rawURL string) error {
	s.mu.Lock()
	u, err := s.resolveLocked(rawURL)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.entries = append(s.entries[:s.index+1], entry{url: u, state: state, title: title})
	s.index++
	s.mu.Unlock()

	s.navigation.dispatch(Event{Destination: u.String(), State: state})
	return nil
}

// ReplaceState overwrites the current entry.
func (s *Session) ReplaceState(state any, title, rawURL string) error {
	s.mu.Lock()
	u, err := s.resolveLocked(rawURL)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.entries[s.index] = entry{url: u, state: state, title: title}
	s.mu.Unlock()

	s.navigation.dispatch(Event{Destination: u.String(), State: state})
	return nil
}

// Back moves one entry back. It reports false at the first entry.
func (s *Session) Back() bool { return s.Go(-1) }

// Forward moves one entry forward. It reports false at the last entry.
func (s *Session) Forward() bool { return s.Go(1) }

// Go traverses delta entries and fires popstate. Out of range or zero
// deltas do nothing.
func (s *Session) Go(delta int) bool {
	s.mu.Lock()
	target := s.index + delta
	if delta == 0 || target < 0 || target >= len(s.entries) {
		s.mu.Unlock()
		return false
	}
	s.index = target
	e := s.entries[target]
	s.mu.Unlock()

	ev := Event{Destination: e.url.String(), State: e.state}
	s.popstate.fire(ev)
	s.navigation.dispatch(ev)
	return true
}

// SetHash performs a same-document fragment navigation: a new entry with
// the fragment replaced, followed by hashchange.
func (s *Session) SetHash(fragment string) {
	s.mu.Lock()
	cur := s.entries[s.index]
	u := *cur.url
	u.Fragment = fragment
	if u.String() == cur.url.String() {
		s.mu.Unlock()
		return
	}
	s.entries = append(s.entries[:s.index+1], entry{url: &u, title: cur.title})
	s.index++
	s.mu.Unlock()

	ev := Event{Destination: u.String()}
	s.hashchange.fire(ev)
	s.navigation.dispatch(ev)
}

// AddPopStateListener registers l for back/forward traversals.
func (s *Session) AddPopStateListener(l *Listener) { s.popstate.add(l) }

// RemovePopStateListener unregisters l.
func (s *Session) RemovePopStateListener(l *Listener) { s.popstate.remove(l) }

// AddHashChangeListener registers l for fragment navigations.
func (s *Session) AddHashChangeListener(l *Listener) { s.hashchange.add(l) }

// RemoveHashChangeListener unregisters l.
func (s *Session) RemoveHashChangeListener(l *Listener) { s.hashchange.remove(l) }

func (s *Session) resolveLocked(rawURL string) (*url.URL, error) {
	cur := s.entries[s.index].url
	if rawURL == "" {
		u := *cur
		return &u, nil
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	u := cur.ResolveReference(ref)
	if u.Scheme != cur.Scheme || u.Host != cur.Host {
		return nil, fmt.Errorf("%w: %s", ErrCrossOrigin, u)
	}
	return u, nil
}

// Navigation is the native navigation facility: one navigate event per
// push, replace, traversal or fragment change, delivered after the new
// entry is current.
type Navigation struct {
	listeners listenerSet
}

// AddNavigateListener registers l.
func (n *Navigation) AddNavigateListener(l *Listener) { n.listeners.add(l) }

// RemoveNavigateListener unregisters l.
func (n *Navigation) RemoveNavigateListener(l *Listener) { n.listeners.remove(l) }

func (n *Navigation) dispatch(e Event) {
	if n == nil {
		return
	}
	n.listeners.fire(e)
}

// listenerSet keeps registration order and ignores duplicates.
type listenerSet struct {
	mu   sync.Mutex
	list []*Listener
}

func (ls *listenerSet) add(l *Listener) {
	if l == nil {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for _, x := range ls.list {
		if x == l {
			return
		}
	}
	ls.list = append(ls.list, l)
}

func (ls *listenerSet) remove(l *Listener) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for i, x := range ls.list {
		if x == l {
			ls.list = append(ls.list[:i:i], ls.list[i+1:]...)
			return
		}
	}
}

func (ls *listenerSet) snapshot() []*Listener {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]*Listener(nil), ls.list...)
}

func (ls *listenerSet) fire(e Event) {
	for _, l := range ls.snapshot() {
		l.Fire(e)
	}
}
