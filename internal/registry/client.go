package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/tagforge/plugman/internal/plugerr"
)

// DefaultTTL is how long a cached registry document stays fresh
const DefaultTTL = 24 * time.Hour

// cacheFile is the on-disk cache envelope recording when the document was fetched
type cacheFile struct {
	FetchedAt time.Time `json:"fetched_at"`
	Document  Document  `json:"document"`
}

// Client fetches and caches the plugin registry and answers blacklist,
// trust, redirect and ref-selection queries against it.
type Client struct {
	url       string
	cachePath string
	ttl       time.Duration
	http      *http.Client
	log       *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	doc       *Document
	blacklist *blacklistMatcher
}

// Option configures a Client
type Option func(*Client)

// WithTTL overrides the cache freshness window
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// WithHTTPClient overrides the HTTP client used for fetches
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock overrides the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a registry client fetching from url and caching at cachePath
func NewClient(url, cachePath string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		url:       url,
		cachePath: cachePath,
		ttl:       DefaultTTL,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the registry document, serving the cache while it is fresh
func (c *Client) Fetch(ctx context.Context) (*Document, error) {
	return c.fetch(ctx, false)
}

// Refresh bypasses the cache and fetches the registry anew
func (c *Client) Refresh(ctx context.Context) (*Document, error) {
	return c.fetch(ctx, true)
}

func (c *Client) fetch(ctx context.Context, force bool) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force {
		if c.doc != nil {
			return c.doc, nil
		}
		if cached, ok := c.loadCache(); ok {
			c.setDocument(&cached.Document)
			return c.doc, nil
		}
	}

	doc, err := c.download(ctx)
	if err != nil {
		// a stale cache beats no registry at all when the network is down
		if cached, ok := c.loadCacheAnyAge(); ok && !force {
			c.log.Warn("registry fetch failed, using stale cache", zap.Error(err))
			c.setDocument(&cached.Document)
			return c.doc, nil
		}
		return nil, err
	}

	if err := Validate(doc); err != nil {
		return nil, err
	}

	c.setDocument(doc)
	if err := c.storeCache(doc); err != nil {
		c.log.Warn("failed to write registry cache", zap.Error(err))
	}

	return c.doc, nil
}

func (c *Client) setDocument(doc *Document) {
	c.doc = doc
	c.blacklist = newBlacklistMatcher(doc.Blacklist, c.log)
}

func (c *Client) download(ctx context.Context) (*Document, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("unexpected status %s", resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, &plugerr.NetworkError{URL: c.url, Err: err}
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &plugerr.RegistryInvalidError{Reason: "not valid JSON: " + err.Error()}
	}

	c.log.Debug("registry fetched",
		zap.String("url", c.url),
		zap.Int("plugins", len(doc.Plugins)),
		zap.Int("blacklist", len(doc.Blacklist)),
	)
	return &doc, nil
}

func (c *Client) loadCache() (*cacheFile, bool) {
	cached, ok := c.loadCacheAnyAge()
	if !ok {
		return nil, false
	}
	if c.now().Sub(cached.FetchedAt) > c.ttl {
		return nil, false
	}
	return cached, true
}

func (c *Client) loadCacheAnyAge() (*cacheFile, bool) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil, false
	}

	var cached cacheFile
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}
	return &cached, true
}

// storeCache writes the cache via temp file and rename so concurrent
// readers never observe a partial document.
func (c *Client) storeCache(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cacheFile{FetchedAt: c.now(), Document: *doc}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.cachePath), ".registry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), c.cachePath)
}

// FindPlugin resolves a registry entry by id, UUID or git URL
func (c *Client) FindPlugin(ctx context.Context, key string) (*Entry, error) {
	doc, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	normalized := NormalizeURL(key)
	for i := range doc.Plugins {
		e := &doc.Plugins[i]
		if e.ID == key || e.UUID == key || NormalizeURL(e.GitURL) == normalized {
			return e, nil
		}
	}

	return nil, &plugerr.NotFoundError{Kind: "registry entry", Key: key}
}

// TrustLevel reports the trust tier for a git URL; plugins without a
// registry entry are "unregistered".
func (c *Client) TrustLevel(ctx context.Context, url string) (TrustLevel, error) {
	doc, err := c.Fetch(ctx)
	if err != nil {
		return "", err
	}

	normalized := NormalizeURL(url)
	for i := range doc.Plugins {
		if NormalizeURL(doc.Plugins[i].GitURL) == normalized {
			return doc.Plugins[i].TrustLevel, nil
		}
	}

	return TrustUnregistered, nil
}

// IsBlacklisted checks UUID, exact URL, then URL patterns, in that order
func (c *Client) IsBlacklisted(ctx context.Context, url, uuid string) (bool, string, error) {
	if _, err := c.Fetch(ctx); err != nil {
		return false, "", err
	}

	c.mu.Lock()
	matcher := c.blacklist
	c.mu.Unlock()

	blocked, reason := matcher.match(url, uuid)
	return blocked, reason, nil
}
