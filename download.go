package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
)

// browserOpener hands links to the system browser
type browserOpener struct {
	log zerolog.Logger
}

func (o browserOpener) Open(_ context.Context, link, _ string) error {
	if err := browser.OpenURL(link); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	o.log.Info().Str("link", link).Msg("opened in browser")
	return nil
}

// fileSaver streams archives into a directory
type fileSaver struct {
	dir    string
	client *http.Client
	log    zerolog.Logger
}

func (s fileSaver) Open(ctx context.Context, link, name string) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: status %d", resp.StatusCode)
	}

	dest := filepath.Join(s.dir, safeFileName(name))
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename file: %w", err)
	}

	s.log.Info().Str("file", dest).Str("size", humanize.Bytes(uint64(n))).Msg("archive saved")
	return nil
}

// safeFileName keeps a name inside the download directory
func safeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "archive.zip"
	}
	return name
}
