package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// relativeMarker prefixes links the API returns relative to its own
// directory; it is replaced by the host URL.
const relativeMarker = "../"

// Options configures a Client.
type Options struct {
	// Host is the API base URL, e.g. https://example.org/_GposesAPI/.
	Host string
	// APIPath and Extension frame every endpoint: Host+APIPath+name+Extension.
	APIPath   string
	Extension string
	// FolderIcon is the preview value meaning "no thumbnail".
	FolderIcon string
	// HTTPClient defaults to a client without timeout.
	HTTPClient *http.Client
	UserAgent  string
}

// Client implements Gateway over HTTP.
type Client struct {
	host       string
	apiPath    string
	ext        string
	folderIcon string
	http       *http.Client
	userAgent  string
}

var _ Gateway = (*Client)(nil)

// NewClient validates the host and returns a ready client.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.Host)
	if err != nil {
		return nil, fmt.Errorf("parse host: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("host %q must be an absolute URL", opts.Host)
	}
	host := u.String()
	if !strings.HasSuffix(host, "/") {
		host += "/"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "gposes"
	}
	return &Client{
		host:       host,
		apiPath:    opts.APIPath,
		ext:        opts.Extension,
		folderIcon: opts.FolderIcon,
		http:       hc,
		userAgent:  ua,
	}, nil
}

// Host returns the normalized base URL, always ending in "/".
func (c *Client) Host() string { return c.host }

func (c *Client) endpoint(name string, params url.Values) string {
	u := c.host + c.apiPath + name + c.ext
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// ListSources returns the top-level sources for the given filter.
func (c *Client) ListSources(ctx context.Context, nsfw bool) ([]FolderEntry, error) {
	params := url.Values{"isNsfw": {strconv.FormatBool(nsfw)}}
	var raw json.RawMessage
	if err := c.get(ctx, c.endpoint("sources", params), &raw); err != nil {
		return nil, &Error{Op: "sources", Err: err}
	}
	pairs, err := decodePairs(raw)
	if err != nil {
		return nil, &Error{Op: "sources", Err: err}
	}
	entries := make([]FolderEntry, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, c.folderEntry(p.key, p.key, p.value))
	}
	return entries, nil
}

// ListSubfolders returns the folders directly below path.
func (c *Client) ListSubfolders(ctx context.Context, path string) ([]FolderEntry, error) {
	var raw json.RawMessage
	if err := c.postForm(ctx, c.endpoint("folders", nil), url.Values{"source": {path}}, &raw); err != nil {
		return nil, &Error{Op: "folders", Path: path, Err: err}
	}
	pairs, err := decodePairs(raw)
	if err != nil {
		return nil, &Error{Op: "folders", Path: path, Err: err}
	}
	entries := make([]FolderEntry, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, c.folderEntry(p.key, path+"/"+p.key, p.value))
	}
	return entries, nil
}

// ListPictures returns the pictures stored directly in path.
func (c *Client) ListPictures(ctx context.Context, path string) ([]PictureEntry, error) {
	var raw json.RawMessage
	if err := c.postForm(ctx, c.endpoint("thumbnails", nil), url.Values{"source": {path}}, &raw); err != nil {
		return nil, &Error{Op: "thumbnails", Path: path, Err: err}
	}
	pairs, err := decodePairs(raw)
	if err != nil {
		return nil, &Error{Op: "thumbnails", Path: path, Err: err}
	}
	entries := make([]PictureEntry, 0, len(pairs))
	for _, p := range pairs {
		var links []string
		if err := json.Unmarshal(p.value, &links); err != nil {
			return nil, &Error{Op: "thumbnails", Path: path, Err: fmt.Errorf("decode picture %s: %w", p.key, err)}
		}
		if len(links) == 0 {
			continue
		}
		full := links[0]
		preview := full
		if len(links) > 1 {
			preview = links[1]
		}
		entries = append(entries, PictureEntry{
			ID:          p.key,
			FullLink:    c.resolve(full),
			PreviewLink: c.resolve(preview),
		})
	}
	return entries, nil
}

// ListRecent returns the server-curated recent additions.
func (c *Client) ListRecent(ctx context.Context, nsfw, onlyFolders bool) ([]RecentEntry, error) {
	params := url.Values{
		"isNsfw": {strconv.FormatBool(nsfw)},
		"folder": {strconv.FormatBool(onlyFolders)},
	}
	var raw json.RawMessage
	if err := c.get(ctx, c.endpoint("last", params), &raw); err != nil {
		return nil, &Error{Op: "last", Err: err}
	}
	entries, err := decodeList[RecentEntry](raw)
	if err != nil {
		return nil, &Error{Op: "last", Err: err}
	}
	for i := range entries {
		entries[i].Preview = c.resolve(entries[i].Preview)
	}
	return entries, nil
}

// ListNewSources returns the newly added sources.
func (c *Client) ListNewSources(ctx context.Context) ([]NewSourceEntry, error) {
	var raw json.RawMessage
	if err := c.get(ctx, c.endpoint("new", nil), &raw); err != nil {
		return nil, &Error{Op: "new", Err: err}
	}
	entries, err := decodeNewSources(raw)
	if err != nil {
		return nil, &Error{Op: "new", Err: err}
	}
	return entries, nil
}

// RequestArchive asks the server to build the zip for path.
func (c *Client) RequestArchive(ctx context.Context, path string) (bool, error) {
	var res struct {
		Success bool `json:"success"`
	}
	if err := c.get(ctx, c.endpoint("zip", url.Values{"folder": {path}}), &res); err != nil {
		return false, &Error{Op: "zip", Path: path, Err: err}
	}
	return res.Success, nil
}

// DownloadURL returns the archive link for path.
func (c *Client) DownloadURL(path string) string {
	return c.endpoint("download", url.Values{"folder": {path}})
}

func (c *Client) folderEntry(name, link string, v json.RawMessage) FolderEntry {
	e := FolderEntry{Name: name, Link: link}
	var preview string
	if err := json.Unmarshal(v, &preview); err != nil || preview == "" || preview == c.folderIcon {
		// null, false and the sentinel string all mean "no thumbnail"
		e.GenericIcon = true
		return e
	}
	e.Preview = c.resolve(preview)
	return e
}

// resolve swaps the relative marker for the host URL.
func (c *Client) resolve(link string) string {
	if strings.HasPrefix(link, relativeMarker) {
		return c.host + strings.TrimPrefix(link, relativeMarker)
	}
	return link
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postForm(ctx context.Context, u string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

type pair struct {
	key   string
	value json.RawMessage
}

// decodePairs turns a key -> value object into pairs. PHP encodes arrays
// with sequential keys as JSON lists, so a list is accepted too and its
// indexes become the keys. Pairs are not ordered; callers sort.
func decodePairs(raw json.RawMessage) ([]pair, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		pairs := make([]pair, 0, len(list))
		for i, v := range list {
			pairs = append(pairs, pair{key: strconv.Itoa(i), value: v})
		}
		return pairs, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	pairs := make([]pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, pair{key: k, value: v})
	}
	return pairs, nil
}

// decodeList accepts either a JSON array of T or an object of key -> T.
// Object values are returned ordered by key.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []T
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return list, nil
	}
	var m map[string]T
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]T, 0, len(m))
	for _, k := range keys {
		list = append(list, m[k])
	}
	return list, nil
}

func decodeNewSources(raw json.RawMessage) ([]NewSourceEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode map: %w", err)
		}
		entries := make([]NewSourceEntry, 0, len(m))
		for name, v := range m {
			entries = append(entries, NewSourceEntry{Name: name, Detail: detail(v)})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		return entries, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	entries := make([]NewSourceEntry, 0, len(items))
	for _, item := range items {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			entries = append(entries, NewSourceEntry{Name: name})
			continue
		}
		var obj struct {
			Name   string `json:"name"`
			Folder string `json:"folder"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		entries = append(entries, NewSourceEntry{Name: obj.Name, Detail: obj.Folder})
	}
	return entries, nil
}

func detail(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(v))
}
