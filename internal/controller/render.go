package controller

import (
	"context"

	"golang.org/x/sync/errgroup"

	"gposes/internal/gateway"
	"gposes/internal/query"
	"gposes/internal/view"
)

func (c *Controller) render(ctx context.Context, f *view.Frame, st query.State) {
	done := f.Busy()
	defer done()

	if st.IsIndex() {
		c.renderIndex(ctx, f, st)
		return
	}
	c.renderFolder(ctx, f, st)
}

// renderIndex fetches recent additions and sources together and shows the
// strip first, then the sources. A failed list is left out.
func (c *Controller) renderIndex(ctx context.Context, f *view.Frame, st query.State) {
	nsfw := st.Nsfw
	c.nsfw.Store(nsfw)
	c.region.SetFilter(nsfw)

	var (
		recent     []gateway.RecentEntry
		sources    []gateway.FolderEntry
		recentErr  error
		sourcesErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		recent, recentErr = c.gw.ListRecent(ctx, nsfw, c.opts.RecentFoldersOnly)
		return nil
	})
	g.Go(func() error {
		sources, sourcesErr = c.gw.ListSources(ctx, nsfw)
		return nil
	})
	_ = g.Wait()

	if recentErr != nil {
		c.failed("last", "", recentErr)
	} else if len(recent) > 0 {
		f.Append(c.recentNode(recent))
	}

	if sourcesErr != nil {
		c.failed("sources", "", sourcesErr)
		return
	}
	gateway.SortFolders(sources)
	nodes := make([]view.Node, 0, len(sources))
	for _, s := range sources {
		nodes = append(nodes, view.Node{
			Kind:        view.KindSource,
			Label:       s.Name,
			Target:      c.sourceTarget(s.Name, nsfw),
			Preview:     s.Preview,
			GenericIcon: s.GenericIcon,
		})
	}
	f.Append(nodes...)
}

func (c *Controller) recentNode(recent []gateway.RecentEntry) view.Node {
	if len(recent) > c.opts.RecentLimit {
		recent = recent[:c.opts.RecentLimit]
	}
	items := make([]view.Item, 0, len(recent))
	for _, r := range recent {
		target := query.SplitPath(r.Folder)
		label := r.Name
		if label == "" {
			label = query.TitleFor(target, c.opts.Buckets)
		}
		items = append(items, view.Item{Label: label, Target: target, Preview: r.Preview})
	}
	return view.Node{Kind: view.KindRecent, Label: "Recent", Items: items}
}

func (c *Controller) sourceTarget(name string, nsfw bool) []string {
	if !c.opts.EnterBucket {
		return []string{name}
	}
	bucket := c.opts.Buckets.Safe
	if nsfw {
		bucket = c.opts.Buckets.Unsafe
	}
	return []string{name, bucket}
}

// renderFolder fetches subfolders and pictures together, then shows
// folders, a separator when there are pictures, the pictures and finally
// the download affordance.
func (c *Controller) renderFolder(ctx context.Context, f *view.Frame, st query.State) {
	path := st.Folder()

	var (
		folders     []gateway.FolderEntry
		pictures    []gateway.PictureEntry
		foldersErr  error
		picturesErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		folders, foldersErr = c.gw.ListSubfolders(ctx, path)
		return nil
	})
	g.Go(func() error {
		pictures, picturesErr = c.gw.ListPictures(ctx, path)
		return nil
	})
	_ = g.Wait()

	if foldersErr != nil {
		c.failed("folders", path, foldersErr)
	} else {
		gateway.SortFolders(folders)
		nodes := make([]view.Node, 0, len(folders))
		for _, e := range folders {
			nodes = append(nodes, view.Node{
				Kind:        view.KindFolder,
				Label:       e.Name,
				Target:      st.Child(e.Name),
				Preview:     e.Preview,
				GenericIcon: e.GenericIcon,
			})
		}
		f.Append(nodes...)
	}

	if picturesErr != nil {
		c.failed("thumbnails", path, picturesErr)
	} else if len(pictures) > 0 {
		gateway.SortPictures(pictures)
		nodes := make([]view.Node, 0, len(pictures)+1)
		nodes = append(nodes, view.Node{Kind: view.KindSeparator})
		for _, p := range pictures {
			nodes = append(nodes, view.Node{
				Kind:    view.KindPicture,
				Label:   p.ID,
				Link:    p.FullLink,
				Preview: p.PreviewLink,
			})
		}
		f.Append(nodes...)
	}

	f.Append(view.Node{Kind: view.KindDownload, Label: "Download " + st.Title})
}

func (c *Controller) failed(op, path string, err error) {
	ev := c.log.Error().Err(err).Str("op", op)
	if path != "" {
		ev = ev.Str("path", path)
	}
	ev.Msg("list failed")
}
