package navbus

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"gposes/internal/history"
)

func newSession(t *testing.T, opts ...history.Option) *history.Session {
	t.Helper()
	s, err := history.New("gposes://xplorer/", opts...)
	if err != nil {
		t.Fatalf("history.New: %v", err)
	}
	return s
}

type counter struct {
	n    atomic.Int32
	mu   sync.Mutex
	seen []string
}

func (c *counter) listener() *Listener {
	return NewListener(func(e Event) {
		c.n.Add(1)
		c.mu.Lock()
		c.seen = append(c.seen, e.Destination)
		c.mu.Unlock()
	})
}

// fakePrimitives counts raw mutations.
type fakePrimitives struct {
	pushes, replaces int
}

func (f *fakePrimitives) PushState(any, string, string) error    { f.pushes++; return nil }
func (f *fakePrimitives) ReplaceState(any, string, string) error { f.replaces++; return nil }

type fakeDocument struct {
	sets  int
	title string
}

func (d *fakeDocument) SetTitle(title string) { d.sets++; d.title = title }

func TestModes(t *testing.T) {
	tests := []struct {
		name string
		host Host
		want Mode
	}{
		{"native", SessionHost(newSession(t, history.WithNavigation())), ModeNative},
		{"fallback", SessionHost(newSession(t)), ModeFallback},
		{"degraded", Host{}, ModeDegraded},
		{"no window", Host{History: &fakePrimitives{}}, ModeDegraded},
	}
	for _, tt := range tests {
		if got := New(tt.host, zerolog.Nop()).Mode(); got != tt.want {
			t.Errorf("%s: Mode = %v; want %v", tt.name, got, tt.want)
		}
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	for _, opts := range [][]history.Option{nil, {history.WithNavigation()}} {
		s := newSession(t, opts...)
		bus := New(SessionHost(s), zerolog.Nop())
		var c counter
		l := c.listener()

		bus.Subscribe(l)
		bus.Subscribe(l)
		if err := bus.Push(nil, "A", "?folder=A"); err != nil {
			t.Fatalf("Push: %v", err)
		}
		if got := c.n.Load(); got != 1 {
			t.Errorf("%v: callback fired %d times; want 1", bus.Mode(), got)
		}
		if s.Title() != "A" {
			t.Errorf("%v: title = %q; want A", bus.Mode(), s.Title())
		}
	}
}

func TestFallbackFunnelsAllTriggers(t *testing.T) {
	s := newSession(t)
	bus := New(SessionHost(s), zerolog.Nop())
	var c counter
	bus.Subscribe(c.listener())

	_ = bus.Push(nil, "A", "?folder=A")
	_ = bus.Push(nil, "B", "?folder=B")
	_ = bus.Replace(nil, "C", "?folder=C")
	s.Back()
	s.SetHash("top")

	want := []string{
		"gposes://xplorer/?folder=A",
		"gposes://xplorer/?folder=B",
		"gposes://xplorer/?folder=C",
		"gposes://xplorer/?folder=A",
		"gposes://xplorer/?folder=A#top",
	}
	if len(c.seen) != len(want) {
		t.Fatalf("events = %v; want %v", c.seen, want)
	}
	for i := range want {
		if c.seen[i] != want[i] {
			t.Errorf("event %d = %q; want %q", i, c.seen[i], want[i])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	s := newSession(t)
	bus := New(SessionHost(s), zerolog.Nop())
	var c counter
	l := c.listener()
	bus.Subscribe(l)
	bus.Unsubscribe(l)
	_ = bus.Push(nil, "", "?folder=A")
	if c.n.Load() != 0 {
		t.Error("unsubscribed listener fired")
	}
}

func TestPatchIdempotent(t *testing.T) {
	raw := &fakePrimitives{}
	doc := &fakeDocument{}
	var events int
	dispatch := func(Event) { events++ }

	once := Patch(raw, doc, dispatch)
	twice := Patch(once, doc, dispatch)
	if once != twice {
		t.Fatal("second Patch wrapped again")
	}
	if !IsPatched(twice) || IsPatched(raw) {
		t.Error("IsPatched wrong")
	}

	_ = twice.PushState(nil, "T", "?a")
	_ = twice.ReplaceState(nil, "U", "?b")
	if raw.pushes != 1 || raw.replaces != 1 {
		t.Errorf("raw pushes=%d replaces=%d", raw.pushes, raw.replaces)
	}
	if doc.sets != 2 || doc.title != "U" {
		t.Errorf("title sets=%d title=%q", doc.sets, doc.title)
	}
	if events != 2 {
		t.Errorf("events = %d; want 2", events)
	}
}

func TestFallbackInstalledOnceUnderConcurrency(t *testing.T) {
	s := newSession(t)
	bus := New(SessionHost(s), zerolog.Nop())
	var c counter
	l := c.listener()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Subscribe(l)
		}()
	}
	wg.Wait()

	if n := bus.ensureFallback().Len(); n != 1 {
		t.Errorf("listeners = %d; want 1", n)
	}
	// A second install would forward popstate twice.
	_ = bus.Push(nil, "", "?folder=A")
	s.Back()
	if got := c.n.Load(); got != 2 {
		t.Errorf("events = %d; want 2", got)
	}
}

func TestDegradedIsSilent(t *testing.T) {
	bus := New(Host{}, zerolog.Nop())
	var c counter
	bus.Subscribe(c.listener())
	if err := bus.Push(nil, "x", "?folder=A"); err != nil {
		t.Errorf("Push in degraded mode: %v", err)
	}
	if c.n.Load() != 0 {
		t.Error("degraded bus delivered an event")
	}
}

func TestDegradedStillMutatesHistory(t *testing.T) {
	raw := &fakePrimitives{}
	doc := &fakeDocument{}
	bus := New(Host{History: raw, Document: doc}, zerolog.Nop())
	_ = bus.Push(nil, "T", "?folder=A")
	if raw.pushes != 1 || doc.title != "T" {
		t.Errorf("pushes=%d title=%q", raw.pushes, doc.title)
	}
}

func TestBusesShareFallbackOfOneSession(t *testing.T) {
	s := newSession(t)
	a := New(SessionHost(s), zerolog.Nop())
	b := New(SessionHost(s), zerolog.Nop())
	if a.ensureFallback() != b.ensureFallback() {
		t.Fatal("two fallbacks for one session")
	}

	var c counter
	l := c.listener()
	a.Subscribe(l)
	b.Subscribe(l)

	_ = a.Push(nil, "A", "?folder=A")
	if got := c.n.Load(); got != 1 {
		t.Errorf("push fired %d times; want 1", got)
	}
	s.Back()
	if got := c.n.Load(); got != 2 {
		t.Errorf("back fired %d times; want 1", got-1)
	}

	other := New(SessionHost(newSession(t)), zerolog.Nop())
	if other.ensureFallback() == a.ensureFallback() {
		t.Error("separate sessions share a fallback")
	}
}

func TestNativeListenersSeeNewTitle(t *testing.T) {
	s := newSession(t, history.WithNavigation())
	bus := New(SessionHost(s), zerolog.Nop())
	var titles []string
	bus.Subscribe(NewListener(func(Event) { titles = append(titles, s.Title()) }))

	_ = bus.Push(nil, "A", "?folder=A")
	_ = bus.Replace(nil, "B", "?folder=B")
	if len(titles) != 2 || titles[0] != "A" || titles[1] != "B" {
		t.Errorf("titles seen = %v; want [A B]", titles)
	}

	if err := bus.Push(nil, "Elsewhere", "https://example.com/"); err == nil {
		t.Fatal("cross-origin push accepted")
	}
	if s.Title() != "B" {
		t.Errorf("failed push left title %q", s.Title())
	}
}
