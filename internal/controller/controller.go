// Package controller is the navigation state machine of the gallery browser.
//
// Navigation is the only render trigger: actions push a history entry
// through the bus and the resulting navigation event starts the render
// pass. Nothing renders directly from an action.
package controller

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"gposes/internal/gateway"
	"gposes/internal/navbus"
	"gposes/internal/query"
	"gposes/internal/view"
)

var (
	// ErrNoParent is returned by Back when the path has fewer than two segments.
	ErrNoParent = errors.New("controller: folder has no parent")
	// ErrNotInFolder is returned by Download at the index view.
	ErrNotInFolder = errors.New("controller: not in a folder")
	// ErrArchiveNotReady is returned when the server declines the archive.
	ErrArchiveNotReady = errors.New("controller: archive not ready")
)

// Locator exposes the current location.
type Locator interface {
	Location() *url.URL
}

// Opener activates a download link, the way a browser follows one.
type Opener interface {
	Open(ctx context.Context, link, name string) error
}

// Options tunes the controller.
type Options struct {
	AppName string
	// AppTitle is appended to every document title: "<title> | <AppTitle>".
	AppTitle    string
	Buckets     query.Buckets
	RecentLimit int
	// RecentFoldersOnly asks the recent endpoint for folders only.
	RecentFoldersOnly bool
	// EnterBucket makes source cards open the rating bucket matching the
	// filter instead of the source root.
	EnterBucket bool
	// OnNavigate is called synchronously for each navigation event,
	// including the initial one.
	OnNavigate func(st query.State, location string)
}

// DefaultOptions are the settings of the canonical deployment.
func DefaultOptions() Options {
	return Options{
		AppName:           "Gposes",
		AppTitle:          "Gposes Xplorer",
		Buckets:           query.DefaultBuckets(),
		RecentLimit:       24,
		RecentFoldersOnly: true,
		EnterBucket:       true,
	}
}

// Controller owns the NSFW flag and the content region.
type Controller struct {
	bus    *navbus.Bus
	loc    Locator
	gw     gateway.Gateway
	region *view.Region
	opener Opener
	log    zerolog.Logger
	opts   Options

	nsfw     atomic.Bool
	listener *navbus.Listener

	mu      sync.Mutex
	ctx     context.Context
	started bool
	wg      sync.WaitGroup
}

// New wires a controller. Call Start to render.
func New(bus *navbus.Bus, loc Locator, gw gateway.Gateway, region *view.Region, opener Opener, log zerolog.Logger, opts Options) *Controller {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultOptions().RecentLimit
	}
	c := &Controller{
		bus:    bus,
		loc:    loc,
		gw:     gw,
		region: region,
		opener: opener,
		log:    log.With().Str("component", "controller").Logger(),
		opts:   opts,
		ctx:    context.Background(),
	}
	c.listener = navbus.NewListener(c.onNavigate)
	return c
}

// Start renders the chrome, subscribes to navigation events and performs
// the initial render pass. Fetches use ctx; calling Start again is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx = ctx
	c.mu.Unlock()

	st := c.State()
	nsfw := st.IsIndex() && st.Nsfw
	c.nsfw.Store(nsfw)
	c.region.SetChrome(view.Chrome{
		AppName:    c.opts.AppName,
		ShowFilter: st.NsfwSet,
		Nsfw:       nsfw,
	})

	c.bus.Subscribe(c.listener)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.reportNewSources(ctx)
	}()

	c.onNavigate(navbus.Event{Destination: c.loc.Location().String()})
}

// Stop unsubscribes from navigation events.
func (c *Controller) Stop() {
	c.bus.Unsubscribe(c.listener)
}

// Wait blocks until every render pass and background call has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// State decodes the current location.
func (c *Controller) State() query.State {
	return query.Decode(c.loc.Location().RawQuery, c.opts.Buckets)
}

// Title is the document title of the current location.
func (c *Controller) Title() string {
	return c.documentTitle(c.State().Title)
}

// Nsfw reports the filter value last applied at the index.
func (c *Controller) Nsfw() bool {
	return c.nsfw.Load()
}

// Navigate pushes a history entry for path; nil goes to the index.
func (c *Controller) Navigate(path []string) error {
	title := query.TitleFor(path, c.opts.Buckets)
	href := query.Href(c.loc.Location().RawQuery, path, nil)
	return c.bus.Push(nil, c.documentTitle(title), href)
}

// Go pushes an entry for a raw query such as "folder=a/b&isNsfw=true".
// Without a folder it goes to the index; other parameters of the current
// location are kept.
func (c *Controller) Go(search string) error {
	st := query.Decode(search, c.opts.Buckets)
	var nsfw *bool
	if st.NsfwSet {
		nsfw = &st.Nsfw
	}
	href := query.Href(c.loc.Location().RawQuery, st.Path, nsfw)
	return c.bus.Push(nil, c.documentTitle(st.Title), href)
}

// Open navigates into the child folder name of the current folder.
func (c *Controller) Open(name string) error {
	return c.Navigate(c.State().Child(name))
}

// Activate navigates to the node's target.
func (c *Controller) Activate(n view.Node) error {
	if n.Target == nil {
		return nil
	}
	return c.Navigate(n.Target)
}

// Back navigates to the parent folder.
func (c *Controller) Back() error {
	parent, ok := c.State().Parent()
	if !ok {
		return ErrNoParent
	}
	return c.Navigate(parent)
}

// Home navigates to the index.
func (c *Controller) Home() error {
	return c.Navigate(nil)
}

// Up goes to the parent folder, or home from a top-level folder.
func (c *Controller) Up() error {
	st := c.State()
	if st.IsIndex() {
		return nil
	}
	if err := c.Back(); !errors.Is(err, ErrNoParent) {
		return err
	}
	return c.Home()
}

// SetNsfw pushes an entry with the filter changed and the folder kept. The
// value only takes effect on index renders.
func (c *Controller) SetNsfw(nsfw bool) error {
	st := c.State()
	href := query.Href(c.loc.Location().RawQuery, st.Path, &nsfw)
	return c.bus.Push(nil, c.documentTitle(st.Title), href)
}

// Download asks for the archive of the current folder and, once it is
// ready, hands the download link to the opener.
func (c *Controller) Download(ctx context.Context) error {
	st := c.State()
	if st.IsIndex() {
		return ErrNotInFolder
	}
	done := c.region.Busy()
	defer done()

	path := st.Folder()
	log := c.log.With().Str("op", "zip").Str("path", path).Logger()
	ok, err := c.gw.RequestArchive(ctx, path)
	if err != nil {
		log.Error().Err(err).Msg("archive request failed")
		return err
	}
	if !ok {
		log.Warn().Msg("archive not ready")
		return ErrArchiveNotReady
	}

	link := c.gw.DownloadURL(path)
	if err := c.opener.Open(ctx, link, st.Title+".zip"); err != nil {
		log.Error().Err(err).Str("link", link).Msg("download failed")
		return err
	}
	log.Info().Str("link", link).Msg("download started")
	return nil
}

func (c *Controller) documentTitle(title string) string {
	if c.opts.AppTitle == "" {
		return title
	}
	return title + " | " + c.opts.AppTitle
}

// onNavigate runs on the goroutine that triggered the navigation. The
// frame is opened here so passes start in event order; fetching happens
// in the background.
func (c *Controller) onNavigate(e navbus.Event) {
	st := c.State()
	if c.opts.OnNavigate != nil {
		c.opts.OnNavigate(st, c.loc.Location().String())
	}
	frame := c.region.Begin(st.Title)

	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.render(ctx, frame, st)
	}()
}

func (c *Controller) reportNewSources(ctx context.Context) {
	entries, err := c.gw.ListNewSources(ctx)
	if err != nil {
		c.log.Warn().Err(err).Str("op", "new").Msg("new sources unavailable")
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	c.log.Debug().Int("count", len(entries)).Strs("names", names).Msg("new sources")
}
