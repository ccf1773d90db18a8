// Package device downloads session logs from the kart datalogger over its
// Wi-Fi access point.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/kartbox/telemetry/internal/errs"
	"github.com/kartbox/telemetry/internal/fsutil"
	"github.com/kartbox/telemetry/internal/httputil"
	"github.com/kartbox/telemetry/internal/monitoring"
)

// DefaultBaseURL is the datalogger's address on its own access point.
const DefaultBaseURL = "http://192.168.4.1"

const filesPrefix = "/files/"

const (
	ErrNotFound    = errs.Error("file not found on device")
	ErrBadName     = errs.Error("invalid file name")
	ErrUnavailable = errs.Error("device unavailable")
)

// File is one entry of the device's file index.
type File struct {
	Name string
	URL  string
}

// Client talks to the datalogger's file server.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient returns a client for baseURL. An empty baseURL selects
// DefaultBaseURL; a nil c selects a standard client.
func NewClient(baseURL string, c httputil.HTTPClient) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if c == nil {
		c = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: c}
}

func (c *Client) get(ctx context.Context, p string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+p, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, nil
}

// List returns the files linked from the device index, sorted by name.
func (c *Client) List(ctx context.Context) ([]File, error) {
	resp, err := c.get(ctx, "/")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: index returned %s", ErrUnavailable, resp.Status)
	}

	names, err := parseIndex(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse device index: %w", err)
	}
	files := make([]File, 0, len(names))
	for _, n := range names {
		files = append(files, File{Name: n, URL: c.baseURL + filesPrefix + url.PathEscape(n)})
	}
	return files, nil
}

// parseIndex collects the distinct file names behind /files/ links.
func parseIndex(r io.Reader) ([]string, error) {
	seen := make(map[string]bool)
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			out := make([]string, 0, len(seen))
			for n := range seen {
				out = append(out, n)
			}
			sort.Strings(out)
			return out, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) != "href" {
					continue
				}
				if n, ok := fileFromHref(string(val)); ok {
					seen[n] = true
				}
			}
		}
	}
}

func fileFromHref(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	p := u.Path
	if !strings.HasPrefix(p, filesPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(p, filesPrefix)
	if !validName(name) {
		return "", false
	}
	return name, true
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && path.Base(name) == name && !strings.ContainsAny(name, `/\`)
}

// Download streams the named device file to dst. The file is written under a
// temporary name and renamed into place once complete.
func (c *Client) Download(ctx context.Context, name string, fs fsutil.FileSystem, dst string) (int64, error) {
	if !validName(name) {
		return 0, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	resp, err := c.get(ctx, filesPrefix+url.PathEscape(name))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("%w: download %s returned %s", ErrUnavailable, name, resp.Status)
	}

	if err := fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}
	part := dst + ".part"
	w, err := fs.Create(part)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, resp.Body)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := fs.Remove(part); rerr != nil {
			monitoring.Logf("device: could not remove %s: %v", part, rerr)
		}
		return n, fmt.Errorf("download %s: %w", name, err)
	}
	if err := fs.Rename(part, dst); err != nil {
		return n, err
	}
	return n, nil
}

// SyncResult reports what Sync did with each session file on the device.
type SyncResult struct {
	Downloaded []string
	Skipped    []string
	Bytes      int64
}

// IsSessionFile reports whether name is a datalogger session file.
func IsSessionFile(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".csv") {
		return false
	}
	return strings.HasPrefix(lower, "data_") || strings.HasPrefix(lower, "laps_")
}

// Sync copies every session file listed by the device into dir, stored under
// its lowercased name so discovery finds it. Files already present are
// skipped unless overwrite is set. A failed file does not stop the others;
// all failures are returned joined.
func (c *Client) Sync(ctx context.Context, fs fsutil.FileSystem, dir string, overwrite bool) (SyncResult, error) {
	var res SyncResult
	files, err := c.List(ctx)
	if err != nil {
		return res, err
	}

	var failures []error
	for _, f := range files {
		if !IsSessionFile(f.Name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		dst := filepath.Join(dir, strings.ToLower(f.Name))
		if !overwrite && fs.Exists(dst) {
			res.Skipped = append(res.Skipped, f.Name)
			continue
		}
		n, err := c.Download(ctx, f.Name, fs, dst)
		if err != nil {
			monitoring.Logf("device: %v", err)
			failures = append(failures, err)
			continue
		}
		monitoring.Logf("device: fetched %s (%d bytes)", f.Name, n)
		res.Downloaded = append(res.Downloaded, f.Name)
		res.Bytes += n
	}
	return res, errors.Join(failures...)
}
