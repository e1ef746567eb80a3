package controller

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"gposes/internal/gateway"
	"gposes/internal/history"
	"gposes/internal/navbus"
	"gposes/internal/query"
	"gposes/internal/view"
)

var errDown = errors.New("down")

type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	sources  []gateway.FolderEntry
	folders  map[string][]gateway.FolderEntry
	pictures map[string][]gateway.PictureEntry
	recent   []gateway.RecentEntry
	ready    bool
	// zipStarted and zipRelease, when set, hold RequestArchive open
	zipStarted chan struct{}
	zipRelease chan struct{}

	failSources, failRecent, failFolders, failPictures bool
}

func (g *fakeGateway) record(format string, args ...any) {
	g.mu.Lock()
	g.calls = append(g.calls, fmt.Sprintf(format, args...))
	g.mu.Unlock()
}

func (g *fakeGateway) count(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (g *fakeGateway) ListSources(_ context.Context, nsfw bool) ([]gateway.FolderEntry, error) {
	g.record("sources %v", nsfw)
	if g.failSources {
		return nil, &gateway.Error{Op: "sources", Err: errDown}
	}
	return append([]gateway.FolderEntry(nil), g.sources...), nil
}

func (g *fakeGateway) ListSubfolders(_ context.Context, path string) ([]gateway.FolderEntry, error) {
	g.record("folders %s", path)
	if g.failFolders {
		return nil, &gateway.Error{Op: "folders", Path: path, Err: errDown}
	}
	return append([]gateway.FolderEntry(nil), g.folders[path]...), nil
}

func (g *fakeGateway) ListPictures(_ context.Context, path string) ([]gateway.PictureEntry, error) {
	g.record("thumbnails %s", path)
	if g.failPictures {
		return nil, &gateway.Error{Op: "thumbnails", Path: path, Err: errDown}
	}
	return append([]gateway.PictureEntry(nil), g.pictures[path]...), nil
}

func (g *fakeGateway) ListRecent(_ context.Context, nsfw, onlyFolders bool) ([]gateway.RecentEntry, error) {
	g.record("last %v %v", nsfw, onlyFolders)
	if g.failRecent {
		return nil, &gateway.Error{Op: "last", Err: errDown}
	}
	return g.recent, nil
}

func (g *fakeGateway) ListNewSources(context.Context) ([]gateway.NewSourceEntry, error) {
	g.record("new")
	return []gateway.NewSourceEntry{{Name: "Fresh"}}, nil
}

func (g *fakeGateway) RequestArchive(_ context.Context, path string) (bool, error) {
	g.record("zip %s", path)
	if g.zipStarted != nil {
		close(g.zipStarted)
		<-g.zipRelease
	}
	return g.ready, nil
}

func (g *fakeGateway) DownloadURL(path string) string {
	return "http://api/download.php?folder=" + path
}

type fakeOpener struct {
	mu    sync.Mutex
	links []string
	names []string
}

func (o *fakeOpener) Open(_ context.Context, link, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links = append(o.links, link)
	o.names = append(o.names, name)
	return nil
}

type harness struct {
	session *history.Session
	gw      *fakeGateway
	region  *view.Region
	opener  *fakeOpener
	ctrl    *Controller
}

func newHarness(t *testing.T, start string, gw *fakeGateway, opts ...history.Option) *harness {
	t.Helper()
	s, err := history.New(start, opts...)
	if err != nil {
		t.Fatalf("history.New: %v", err)
	}
	h := &harness{session: s, gw: gw, region: view.NewRegion(nil), opener: &fakeOpener{}}
	bus := navbus.New(navbus.SessionHost(s), zerolog.Nop())
	h.ctrl = New(bus, s, gw, h.region, h.opener, zerolog.Nop(), DefaultOptions())
	return h
}

func (h *harness) start() {
	h.ctrl.Start(context.Background())
	h.ctrl.Wait()
}

func sources(names ...string) []gateway.FolderEntry {
	out := make([]gateway.FolderEntry, 0, len(names))
	for _, n := range names {
		out = append(out, gateway.FolderEntry{Name: n, Link: n, GenericIcon: true})
	}
	return out
}

func labels(snap view.Snapshot, kind view.Kind) []string {
	var out []string
	for _, n := range snap.Nodes {
		if n.Kind == kind {
			out = append(out, n.Label)
		}
	}
	return out
}

func TestIndexRender(t *testing.T) {
	gw := &fakeGateway{
		sources: sources("b", "a10", "a2"),
		recent:  make([]gateway.RecentEntry, 30),
	}
	for i := range gw.recent {
		gw.recent[i] = gateway.RecentEntry{Folder: fmt.Sprintf("S/1.SFW/r%d", i)}
	}
	h := newHarness(t, "gposes://xplorer/", gw)
	h.start()

	snap := h.region.Snapshot()
	if snap.Title != query.WelcomeTitle {
		t.Errorf("title = %q", snap.Title)
	}
	want := []view.Kind{view.KindRecent, view.KindSource, view.KindSource, view.KindSource}
	if !reflect.DeepEqual(snap.Kinds(), want) {
		t.Fatalf("kinds = %v; want %v", snap.Kinds(), want)
	}
	if got := len(snap.Nodes[0].Items); got != 24 {
		t.Errorf("recent items = %d; want 24", got)
	}
	if it := snap.Nodes[0].Items[0]; it.Label != "r0" || !reflect.DeepEqual(it.Target, []string{"S", "1.SFW", "r0"}) {
		t.Errorf("recent item = %+v", it)
	}
	if got := labels(snap, view.KindSource); !reflect.DeepEqual(got, []string{"a2", "a10", "b"}) {
		t.Errorf("sources = %v", got)
	}
	if snap.Busy {
		t.Error("busy left on")
	}
	if gw.count("last false true") != 1 || gw.count("sources false") != 1 {
		t.Errorf("calls = %v", gw.calls)
	}
	if gw.count("new") != 1 {
		t.Error("new sources not requested at startup")
	}
}

func TestIndexRecentFailureKeepsSources(t *testing.T) {
	gw := &fakeGateway{sources: sources("a", "b", "c", "d", "e"), failRecent: true}
	h := newHarness(t, "gposes://xplorer/", gw)
	h.start()

	snap := h.region.Snapshot()
	if len(snap.Nodes) != 5 {
		t.Fatalf("nodes = %d; want 5\n%s", len(snap.Nodes), snap.Text())
	}
	for _, n := range snap.Nodes {
		if n.Kind != view.KindSource {
			t.Errorf("unexpected %v node", n.Kind)
		}
	}
}

func TestIndexSourcesFailureKeepsRecent(t *testing.T) {
	gw := &fakeGateway{recent: []gateway.RecentEntry{{Folder: "A/1.SFW", Name: "A"}}, failSources: true}
	h := newHarness(t, "gposes://xplorer/", gw)
	h.start()

	if got := h.region.Snapshot().Kinds(); !reflect.DeepEqual(got, []view.Kind{view.KindRecent}) {
		t.Errorf("kinds = %v", got)
	}
}

func TestFolderRender(t *testing.T) {
	gw := &fakeGateway{
		folders: map[string][]gateway.FolderEntry{
			"Gifts/1.SFW": {{Name: "z"}, {Name: "m"}},
		},
		pictures: map[string][]gateway.PictureEntry{
			"Gifts/1.SFW": {{ID: "2", FullLink: "http://h/b.png"}, {ID: "1", FullLink: "http://h/a.png"}},
		},
	}
	h := newHarness(t, "gposes://xplorer/?folder=Gifts/1.SFW", gw)
	h.start()

	snap := h.region.Snapshot()
	if snap.Title != "Gifts" {
		t.Errorf("title = %q", snap.Title)
	}
	want := []view.Kind{
		view.KindFolder, view.KindFolder, view.KindSeparator,
		view.KindPicture, view.KindPicture, view.KindDownload,
	}
	if !reflect.DeepEqual(snap.Kinds(), want) {
		t.Fatalf("kinds = %v; want %v", snap.Kinds(), want)
	}
	if got := labels(snap, view.KindFolder); !reflect.DeepEqual(got, []string{"m", "z"}) {
		t.Errorf("folders = %v", got)
	}
	if snap.Nodes[0].Target[2] != "m" || len(snap.Nodes[0].Target) != 3 {
		t.Errorf("folder target = %v", snap.Nodes[0].Target)
	}
	if snap.Nodes[3].Link != "http://h/a.png" {
		t.Errorf("first picture = %q", snap.Nodes[3].Link)
	}
}

func TestFolderWithoutPicturesHasNoSeparator(t *testing.T) {
	gw := &fakeGateway{folders: map[string][]gateway.FolderEntry{"A": {{Name: "x"}}}}
	h := newHarness(t, "gposes://xplorer/?folder=A", gw)
	h.start()

	want := []view.Kind{view.KindFolder, view.KindDownload}
	if got := h.region.Snapshot().Kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("kinds = %v; want %v", got, want)
	}
}

func TestFolderSubfolderFailureKeepsPictures(t *testing.T) {
	gw := &fakeGateway{
		failFolders: true,
		pictures:    map[string][]gateway.PictureEntry{"A": {{FullLink: "http://h/a.png"}}},
	}
	h := newHarness(t, "gposes://xplorer/?folder=A", gw)
	h.start()

	want := []view.Kind{view.KindSeparator, view.KindPicture, view.KindDownload}
	if got := h.region.Snapshot().Kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("kinds = %v; want %v", got, want)
	}
}

func TestOpenPushesAndRenders(t *testing.T) {
	for _, opts := range [][]history.Option{nil, {history.WithNavigation()}} {
		gw := &fakeGateway{sources: sources("Gifts")}
		h := newHarness(t, "gposes://xplorer/?isNsfw=false", gw, opts...)
		h.start()

		src := h.region.Snapshot().Nodes[0]
		if err := h.ctrl.Activate(src); err != nil {
			t.Fatalf("Activate: %v", err)
		}
		h.ctrl.Wait()
		if err := h.ctrl.Open("Wrapped"); err != nil {
			t.Fatalf("Open: %v", err)
		}
		h.ctrl.Wait()

		loc := h.session.Location()
		if got := loc.Query().Get("folder"); got != "Gifts/1.SFW/Wrapped" {
			t.Errorf("folder = %q", got)
		}
		if loc.Query().Get("isNsfw") != "false" {
			t.Error("isNsfw dropped on navigation")
		}
		if h.session.Title() != "Wrapped | Gposes Xplorer" {
			t.Errorf("document title = %q", h.session.Title())
		}
		if h.region.Snapshot().Title != "Wrapped" {
			t.Errorf("region title = %q", h.region.Snapshot().Title)
		}
		if gw.count("folders Gifts/1.SFW/Wrapped") != 1 {
			t.Errorf("calls = %v", gw.calls)
		}
		h.ctrl.Stop()
	}
}

func TestBackTargetsParent(t *testing.T) {
	h := newHarness(t, "gposes://xplorer/?folder=Gifts/1.SFW", &fakeGateway{})
	h.start()

	if err := h.ctrl.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	h.ctrl.Wait()
	st := h.ctrl.State()
	if !reflect.DeepEqual(st.Path, []string{"Gifts"}) || st.Title != "Gifts" {
		t.Errorf("state = %+v", st)
	}
	if err := h.ctrl.Back(); !errors.Is(err, ErrNoParent) {
		t.Errorf("Back at top level = %v; want ErrNoParent", err)
	}
	if err := h.ctrl.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
	h.ctrl.Wait()
	if !h.ctrl.State().IsIndex() {
		t.Error("Up from top level did not go home")
	}
}

func TestHistoryTraversalRerenders(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, "gposes://xplorer/", gw)
	h.start()

	_ = h.ctrl.Navigate([]string{"A"})
	h.ctrl.Wait()
	h.session.Back()
	h.ctrl.Wait()
	if gw.count("sources false") != 2 {
		t.Errorf("index renders = %d; want 2", gw.count("sources false"))
	}
	h.session.Forward()
	h.ctrl.Wait()
	if gw.count("folders A") != 2 {
		t.Errorf("folder renders = %d; want 2", gw.count("folders A"))
	}
}

func TestNsfwReadAtIndexOnly(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, "gposes://xplorer/?folder=A&isNsfw=true", gw)
	h.start()

	if h.ctrl.Nsfw() {
		t.Error("flag taken from a folder URL")
	}
	if !h.region.Snapshot().Chrome.ShowFilter {
		t.Error("filter hidden though isNsfw was present")
	}

	_ = h.ctrl.Home()
	h.ctrl.Wait()
	if !h.ctrl.Nsfw() || gw.count("sources true") != 1 || gw.count("last true true") != 1 {
		t.Errorf("nsfw=%v calls=%v", h.ctrl.Nsfw(), gw.calls)
	}
}

func TestSetNsfwInFolderKeepsContents(t *testing.T) {
	gw := &fakeGateway{folders: map[string][]gateway.FolderEntry{"A": {{Name: "x"}}}}
	h := newHarness(t, "gposes://xplorer/?folder=A&isNsfw=false", gw)
	h.start()
	before := h.region.Snapshot()

	if err := h.ctrl.SetNsfw(true); err != nil {
		t.Fatalf("SetNsfw: %v", err)
	}
	h.ctrl.Wait()
	after := h.region.Snapshot()
	if !reflect.DeepEqual(before.Nodes, after.Nodes) {
		t.Errorf("contents changed:\n%s\n%s", before.Text(), after.Text())
	}
	if h.session.Location().Query().Get("folder") != "A" {
		t.Error("folder lost")
	}
}

func TestSetNsfwAtIndex(t *testing.T) {
	gw := &fakeGateway{sources: sources("S")}
	h := newHarness(t, "gposes://xplorer/?isNsfw=false", gw)
	h.start()

	_ = h.ctrl.SetNsfw(true)
	h.ctrl.Wait()
	snap := h.region.Snapshot()
	if !snap.Chrome.Nsfw || gw.count("sources true") != 1 {
		t.Errorf("chrome=%+v calls=%v", snap.Chrome, gw.calls)
	}
	if got := snap.Nodes[0].Target; !reflect.DeepEqual(got, []string{"S", "2.NSFW"}) {
		t.Errorf("source target = %v", got)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, "gposes://xplorer/", gw)
	h.start()
	h.start()

	_ = h.ctrl.Navigate([]string{"A"})
	h.ctrl.Wait()
	if got := gw.count("folders A"); got != 1 {
		t.Errorf("renders per navigation = %d; want 1", got)
	}
	if got := gw.count("sources false"); got != 1 {
		t.Errorf("initial renders = %d; want 1", got)
	}
}

func TestGoRawQuery(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, "gposes://xplorer/?folder=A&isNsfw=false", gw)
	h.start()

	if err := h.ctrl.Go("isNsfw=true"); err != nil {
		t.Fatalf("Go: %v", err)
	}
	h.ctrl.Wait()
	q := h.session.Location().Query()
	if q.Has("folder") || q.Get("isNsfw") != "true" {
		t.Errorf("query = %v", q)
	}
	if gw.count("sources true") != 1 {
		t.Errorf("calls = %v", gw.calls)
	}
}

func TestOnNavigate(t *testing.T) {
	s, _ := history.New("gposes://xplorer/")
	var seen []string
	opts := DefaultOptions()
	opts.OnNavigate = func(st query.State, _ string) { seen = append(seen, st.Title) }
	c := New(navbus.New(navbus.SessionHost(s), zerolog.Nop()), s, &fakeGateway{}, view.NewRegion(nil), &fakeOpener{}, zerolog.Nop(), opts)
	c.Start(context.Background())
	_ = c.Navigate([]string{"A", "1.SFW"})
	c.Wait()

	if !reflect.DeepEqual(seen, []string{"Welcome", "A"}) {
		t.Errorf("seen = %v", seen)
	}
}

func TestDownload(t *testing.T) {
	gw := &fakeGateway{ready: true}
	h := newHarness(t, "gposes://xplorer/", gw)
	h.start()

	if err := h.ctrl.Download(context.Background()); !errors.Is(err, ErrNotInFolder) {
		t.Errorf("Download at index = %v", err)
	}

	_ = h.ctrl.Navigate([]string{"Gifts", "1.SFW"})
	h.ctrl.Wait()
	if err := h.ctrl.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(h.opener.links) != 1 || h.opener.links[0] != gw.DownloadURL("Gifts/1.SFW") {
		t.Errorf("opened %v", h.opener.links)
	}
	if h.opener.names[0] != "Gifts.zip" {
		t.Errorf("name = %q", h.opener.names[0])
	}
	if h.region.Snapshot().Busy {
		t.Error("busy left on after download")
	}
}

func TestDownloadNotReady(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, "gposes://xplorer/?folder=A", gw)
	h.start()

	if err := h.ctrl.Download(context.Background()); !errors.Is(err, ErrArchiveNotReady) {
		t.Errorf("Download = %v; want ErrArchiveNotReady", err)
	}
	if len(h.opener.links) != 0 {
		t.Error("opener called for an archive that is not ready")
	}
	if h.region.Snapshot().Busy {
		t.Error("busy left on")
	}
}

func TestDownloadBusySurvivesNavigation(t *testing.T) {
	gw := &fakeGateway{
		ready:      true,
		zipStarted: make(chan struct{}),
		zipRelease: make(chan struct{}),
	}
	h := newHarness(t, "gposes://xplorer/?folder=A", gw)
	h.start()

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Download(context.Background()) }()
	<-gw.zipStarted

	_ = h.ctrl.Navigate([]string{"B"})
	h.ctrl.Wait()
	if !h.region.Snapshot().Busy {
		t.Error("navigation hid the busy indicator of a running download")
	}

	close(gw.zipRelease)
	if err := <-errc; err != nil {
		t.Fatalf("Download: %v", err)
	}
	if h.region.Snapshot().Busy {
		t.Error("busy left on after download")
	}
}
