// SPDX-License-Identifier: MPL-2.0

package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// fetchTimeout bounds one metadata request against a slow or stuck
	// remote endpoint.
	fetchTimeout = 10 * time.Second

	// maxJSONResponseBytes caps the decoded API response size (10 MB) so a
	// malformed or malicious response cannot exhaust memory.
	maxJSONResponseBytes = 10 << 20

	defaultUserAgent = "updraft/1.0"
)

// ErrUnexpectedStatus is returned (wrapped) when the release API answers
// with a status that is neither success nor 404.
var ErrUnexpectedStatus = errors.New("unexpected response status")

type (
	// Client queries the GitHub Releases API for the repositories that
	// managed artifacts are bound to. Successful lookups are written
	// through to the cache; lookups hit the network only on a cache miss.
	Client struct {
		httpClient *http.Client
		apiBase    string // API base URL (default "https://api.github.com")
		rawBase    string // raw-content base URL (default "https://raw.githubusercontent.com")
		userAgent  string
		cache      *Cache
		logger     *log.Logger
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)

	// wireRelease is the JSON wire format of a GitHub release.
	wireRelease struct {
		TagName     string      `json:"tag_name"`
		Name        string      `json:"name"`
		Prerelease  bool        `json:"prerelease"`
		Assets      []wireAsset `json:"assets"`
		PublishedAt time.Time   `json:"published_at"`
	}

	// wireAsset is the JSON wire format of a release asset.
	wireAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
	}
)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIBase overrides the release API base URL, primarily for test servers.
func WithAPIBase(base string) ClientOption {
	return func(cl *Client) {
		cl.apiBase = strings.TrimRight(base, "/")
	}
}

// WithRawBase overrides the raw-content base URL, primarily for test servers.
func WithRawBase(base string) ClientOption {
	return func(cl *Client) {
		cl.rawBase = strings.TrimRight(base, "/")
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithCache supplies a shared cache instance; without it the client
// creates its own.
func WithCache(c *Cache) ClientOption {
	return func(cl *Client) {
		cl.cache = c
	}
}

// WithLogger overrides the default package logger.
func WithLogger(l *log.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a Client with production defaults.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		apiBase:   "https://api.github.com",
		rawBase:   "https://raw.githubusercontent.com",
		userAgent: defaultUserAgent,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: fetchTimeout}
	}
	if c.cache == nil {
		c.cache = NewCache()
	}
	return c
}

// Cache exposes the client's cache for explicit invalidation.
func (c *Client) Cache() *Cache { return c.cache }

// LatestRelease returns the newest release for repo ("owner/name").
// When includePrerelease is false it queries the latest-stable endpoint;
// when true it lists all releases and takes the first (most recent).
//
// A 404 means the repository has no releases and yields (nil, nil) — not
// an error. Transport failures, unexpected statuses, and malformed bodies
// are logged and returned; callers treat them as per-artifact failures
// that must not abort checks for other artifacts.
func (c *Client) LatestRelease(ctx context.Context, repo string, includePrerelease bool) (*Release, error) {
	if cached := c.cache.Get(repo); cached != nil {
		return cached, nil
	}

	var endpoint string
	if includePrerelease {
		endpoint = fmt.Sprintf("%s/repos/%s/releases", c.apiBase, repo)
	} else {
		endpoint = fmt.Sprintf("%s/repos/%s/releases/latest", c.apiBase, repo)
	}

	r, err := c.fetchRelease(ctx, endpoint, includePrerelease)
	if err != nil {
		c.logger.Warn("release lookup failed", "repo", repo, "err", err)
		return nil, err
	}
	if r == nil {
		c.logger.Debug("no releases published", "repo", repo)
		return nil, nil
	}

	c.cache.Put(repo, *r)
	c.logger.Debug("fetched latest release", "repo", repo, "tag", r.TagName)
	return r, nil
}

// fetchRelease issues one API request and decodes the response. The list
// endpoint returns a JSON array; the latest endpoint a single object.
func (c *Client) fetchRelease(ctx context.Context, endpoint string, list bool) (*Release, error) {
	resp, err := c.doRequest(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, redactURL(endpoint))
	}

	body := io.LimitReader(resp.Body, maxJSONResponseBytes)

	if list {
		var all []wireRelease
		if err := json.NewDecoder(body).Decode(&all); err != nil {
			return nil, fmt.Errorf("decoding release list: %w", err)
		}
		if len(all) == 0 {
			return nil, nil
		}
		r := toRelease(all[0])
		return &r, nil
	}

	var wr wireRelease
	if err := json.NewDecoder(body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}
	r := toRelease(wr)
	return &r, nil
}

// FetchRawFile fetches one raw text file from a repository path on the
// given branch. This is the primitive the remote-configuration flow is
// built on. A cache-busting query parameter defeats CDN staleness.
// Returns ("", nil) when the file does not exist.
func (c *Client) FetchRawFile(ctx context.Context, repo, path, branch string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s?cb=%d",
		c.rawBase, repo, branch, strings.TrimPrefix(path, "/"), time.Now().UnixMilli())

	resp, err := c.doRequest(ctx, endpoint, "")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Warn("raw file not found", "repo", repo, "path", path, "branch", branch)
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d fetching %s from %s", ErrUnexpectedStatus, resp.StatusCode, path, repo)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading raw file %s: %w", path, err)
	}

	return string(data), nil
}

// doRequest creates and executes a GET with the client's common headers.
func (c *Client) doRequest(ctx context.Context, reqURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func toRelease(wr wireRelease) Release {
	assets := make([]Asset, 0, len(wr.Assets))
	for _, wa := range wr.Assets {
		assets = append(assets, Asset(wa))
	}
	return Release{
		TagName:     wr.TagName,
		Name:        wr.Name,
		Prerelease:  wr.Prerelease,
		Assets:      assets,
		PublishedAt: wr.PublishedAt,
	}
}

// redactURL strips query parameters and fragments from a URL for safe
// inclusion in error messages.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
