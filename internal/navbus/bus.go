// Package navbus turns every kind of navigation into a single stream of
// events, whatever the host offers.
//
// With a native navigation facility the bus delegates to it. Without one
// it lazily builds a fallback: push and replace are wrapped so that they
// also set the document title and broadcast an event, and popstate and
// hashchange are forwarded through the same broadcast. Push and Replace on
// the Bus are the only sanctioned ways to change history; a navigation
// event, never a direct call, is what triggers a re-render.
package navbus

import (
	"sync"

	"github.com/rs/zerolog"

	"gposes/internal/history"
)

// Event is a navigation notification.
type Event = history.Event

// Listener is a navigation callback with identity.
type Listener = history.Listener

// NewListener wraps fn in a Listener.
func NewListener(fn func(Event)) *Listener {
	return history.NewListener(fn)
}

// Primitives are the two history-mutating operations.
type Primitives interface {
	PushState(state any, title, rawURL string) error
	ReplaceState(state any, title, rawURL string) error
}

// Document owns the visible title.
type Document interface {
	SetTitle(title string)
}

// Window delivers the host's back/forward and fragment-change events.
type Window interface {
	AddPopStateListener(l *Listener)
	AddHashChangeListener(l *Listener)
}

// Native is a host-provided navigation interception facility.
type Native interface {
	AddNavigateListener(l *Listener)
	RemoveNavigateListener(l *Listener)
}

// Host lists the facilities available. Nil fields are absent.
type Host struct {
	History    Primitives
	Document   Document
	Window     Window
	Navigation Native
}

// SessionHost describes a history.Session. The native facility is only
// included when the session was created with one.
func SessionHost(s *history.Session) Host {
	h := Host{History: s, Document: s, Window: s}
	if nav := s.Navigation(); nav != nil {
		h.Navigation = nav
	}
	return h
}

// Mode reports which facility a Bus uses.
type Mode int

const (
	ModeNative Mode = iota
	ModeFallback
	ModeDegraded
)

func (m Mode) String() string {
	switch m {
	case ModeNative:
		return "native"
	case ModeFallback:
		return "fallback"
	default:
		return "degraded"
	}
}

// Bus is the navigation event service. Create one per host and share it.
type Bus struct {
	host Host
	log  zerolog.Logger

	once     sync.Once
	fallback *Fallback
}

// New returns a bus for host. Nothing is installed until first use.
func New(host Host, log zerolog.Logger) *Bus {
	return &Bus{host: host, log: log.With().Str("component", "navbus").Logger()}
}

// Mode reports which facility the bus delivers events through.
func (b *Bus) Mode() Mode {
	switch {
	case b.host.Navigation != nil:
		return ModeNative
	case b.host.History != nil && b.host.Window != nil:
		return ModeFallback
	default:
		return ModeDegraded
	}
}

// Subscribe registers l. Subscribing the same listener again has no
// additional effect. In degraded mode it does nothing.
func (b *Bus) Subscribe(l *Listener) {
	switch b.Mode() {
	case ModeNative:
		b.host.Navigation.RemoveNavigateListener(l)
		b.host.Navigation.AddNavigateListener(l)
	case ModeFallback:
		fb := b.ensureFallback()
		fb.Remove(l)
		fb.Add(l)
	default:
		b.log.Debug().Msg("no navigation facility; subscribe ignored")
	}
}

// Unsubscribe removes l.
func (b *Bus) Unsubscribe(l *Listener) {
	switch b.Mode() {
	case ModeNative:
		b.host.Navigation.RemoveNavigateListener(l)
	case ModeFallback:
		b.ensureFallback().Remove(l)
	}
}

// Push adds a history entry, sets the document title and, through the
// active facility, emits one navigation event.
func (b *Bus) Push(state any, title, rawURL string) error {
	return b.primitives().PushState(state, title, rawURL)
}

// Replace overwrites the current entry; otherwise like Push.
func (b *Bus) Replace(state any, title, rawURL string) error {
	return b.primitives().ReplaceState(state, title, rawURL)
}

func (b *Bus) primitives() Primitives {
	switch b.Mode() {
	case ModeFallback:
		return b.ensureFallback().History()
	case ModeNative:
		return titled{b.host.History, b.host.Document}
	default:
		if b.host.History == nil {
			return noHistory{}
		}
		return titled{b.host.History, b.host.Document}
	}
}

func (b *Bus) ensureFallback() *Fallback {
	b.once.Do(func() {
		fb, built := fallbackFor(b.host)
		b.fallback = fb
		if built {
			b.log.Debug().Msg("fallback navigation installed")
		}
	})
	return b.fallback
}

// titled sets the document title before the mutation, so listeners of the
// native facility, which fires inside it, already see the new title. A
// failed mutation restores the previous title when the document has one.
type titled struct {
	Primitives
	doc Document
}

func (t titled) PushState(state any, title, rawURL string) error {
	return t.retitle(title, func() error { return t.Primitives.PushState(state, title, rawURL) })
}

func (t titled) ReplaceState(state any, title, rawURL string) error {
	return t.retitle(title, func() error { return t.Primitives.ReplaceState(state, title, rawURL) })
}

func (t titled) retitle(title string, mutate func() error) error {
	if t.doc == nil {
		return mutate()
	}
	prev, restore := "", false
	if r, ok := t.doc.(interface{ Title() string }); ok {
		prev, restore = r.Title(), true
	}
	t.doc.SetTitle(title)
	if err := mutate(); err != nil {
		if restore {
			t.doc.SetTitle(prev)
		}
		return err
	}
	return nil
}

type noHistory struct{}

func (noHistory) PushState(any, string, string) error    { return nil }
func (noHistory) ReplaceState(any, string, string) error { return nil }
