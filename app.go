package main

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"gposes/internal/bookmarks"
	"gposes/internal/controller"
	"gposes/internal/gateway"
	"gposes/internal/history"
	"gposes/internal/navbus"
	"gposes/internal/query"
	"gposes/internal/view"
)

// sessionOrigin is the origin of every location the browser visits
const sessionOrigin = "gposes://xplorer/"

// app ties the browsing session, the bus and the controller together
type app struct {
	cfg     Config
	buckets query.Buckets
	session *history.Session
	bus     *navbus.Bus
	gw      *gateway.Client
	region  *view.Region
	ctrl    *controller.Controller
	store   *bookmarks.Store // nil when bookmarks are unavailable
	log     zerolog.Logger

	// baseURL of the control server, empty when not serving
	baseURL string
}

type appOptions struct {
	start    string
	onChange func()
	store    *bookmarks.Store
	opener   controller.Opener
}

// startLocation builds the first location from the --folder and --nsfw flags
func startLocation(folder string, nsfw *bool) string {
	path := query.SplitPath(folder)
	q := query.Encode("", path, nsfw)
	if q == "" {
		return sessionOrigin
	}
	return sessionOrigin + "?" + q
}

// sameOrigin reports whether raw is a location of this browser
func sameOrigin(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme+"://"+u.Host+"/" == sessionOrigin
}

func newApp(cfg Config, opts appOptions, log zerolog.Logger) (*app, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	gw, err := gateway.NewClient(gateway.Options{
		Host:       cfg.Host,
		APIPath:    cfg.APIPath,
		Extension:  cfg.Extension,
		FolderIcon: cfg.FolderIcon,
		UserAgent:  appName + "/" + version,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	var sessionOpts []history.Option
	if cfg.Navigation == navNative {
		sessionOpts = append(sessionOpts, history.WithNavigation())
	}
	start := opts.start
	if start == "" {
		start = sessionOrigin
	}
	session, err := history.New(start, sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	host := navbus.SessionHost(session)
	if cfg.Navigation == navNone {
		// no event source at all: history still moves, nothing re-renders
		host = navbus.Host{History: session, Document: session}
	}

	a := &app{
		cfg:     cfg,
		buckets: query.Buckets{Safe: cfg.SafeBucket, Unsafe: cfg.UnsafeBucket},
		session: session,
		bus:     navbus.New(host, log),
		gw:      gw,
		region:  view.NewRegion(opts.onChange),
		store:   opts.store,
		log:     log,
	}

	opener := opts.opener
	if opener == nil {
		opener = a.archiveOpener()
	}

	copts := controller.DefaultOptions()
	copts.AppName = appName
	copts.Buckets = a.buckets
	copts.RecentLimit = cfg.RecentLimit
	copts.RecentFoldersOnly = cfg.RecentFoldersOnly
	copts.OnNavigate = a.recordVisit
	a.ctrl = controller.New(a.bus, session, gw, a.region, opener, log, copts)
	return a, nil
}

func (a *app) archiveOpener() controller.Opener {
	if a.cfg.OpenInBrowser {
		return browserOpener{log: a.log}
	}
	return fileSaver{dir: expandHome(a.cfg.DownloadDir), log: a.log}
}

func (a *app) recordVisit(st query.State, location string) {
	if a.store == nil {
		return
	}
	err := a.store.RecordVisit(context.Background(), bookmarks.Visit{
		Location: location,
		Folder:   st.Folder(),
		Title:    st.Title,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("visit not recorded")
	}
}

// shareLink is the control server link that reopens the current location
func (a *app) shareLink() string {
	if a.baseURL == "" {
		return ""
	}
	return a.baseURL + "/go?" + a.session.Location().RawQuery
}

// documentTitle is the title shown in the header
func (a *app) documentTitle() string {
	return a.ctrl.Title()
}

// breadcrumb renders the current path as Home › a › b
func (a *app) breadcrumb() string {
	parts := append([]string{"Home"}, a.ctrl.State().Path...)
	return strings.Join(parts, " › ")
}

// addBookmark stores the current location under name; an empty name uses the title
func (a *app) addBookmark(ctx context.Context, name string) (bookmarks.Bookmark, error) {
	if a.store == nil {
		return bookmarks.Bookmark{}, fmt.Errorf("bookmarks unavailable")
	}
	st := a.ctrl.State()
	if name == "" {
		name = st.Title
	}
	b := bookmarks.Bookmark{Name: name, Folder: st.Folder(), Nsfw: st.Nsfw}
	return b, a.store.Add(ctx, b)
}

// jump navigates to the bookmark called name
func (a *app) jump(ctx context.Context, name string) error {
	if a.store == nil {
		return fmt.Errorf("bookmarks unavailable")
	}
	b, err := a.store.Get(ctx, name)
	if err != nil {
		return err
	}
	nsfw := b.Nsfw
	return a.ctrl.Go(query.Encode("", query.SplitPath(b.Folder), &nsfw))
}

// lastLocation returns the last visited location, if any
func lastLocation(ctx context.Context, store *bookmarks.Store) string {
	if store == nil {
		return ""
	}
	v, ok, err := store.LastVisit(ctx)
	if err != nil || !ok || !sameOrigin(v.Location) {
		return ""
	}
	return v.Location
}

func openStore(cfg Config) (*bookmarks.Store, error) {
	dir := expandHome(cfg.DataDir)
	if dir == "" {
		return nil, fmt.Errorf("no data directory")
	}
	return bookmarks.Open(filepath.Join(dir, appName+".db"))
}
