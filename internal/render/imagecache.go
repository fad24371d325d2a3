package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"forge/internal/models"
	"forge/internal/pkg/logger"
)

// CacheEntry holds the fetched bytes for one distinct image URL.
type CacheEntry struct {
	Data        []byte
	ContentType string
}

// prefetchParallelism bounds concurrent image fetches. It is independent of
// the render concurrency limit: prefetch happens before any render task
// starts.
const prefetchParallelism = 8

// maxImageBytes caps a single fetched image. Larger responses are treated
// as fetch failures.
const maxImageBytes = 32 << 20

// ImageCache deduplicates and pre-fetches the external image bytes needed by
// one batch. It is constructed fresh at batch start, populated once by
// Prefetch, read-only during task execution, and cleared at batch end.
// Cross-batch sharing is deliberately impossible: every batch gets its own
// instance.
type ImageCache struct {
	client *http.Client
	log    *logger.Logger

	mu      sync.Mutex
	entries map[string]CacheEntry
	fetches int // total fetch attempts, for the dedup property
}

// NewImageCache creates an empty cache. client may be nil, in which case a
// default client with a sane timeout is used.
func NewImageCache(client *http.Client, log *logger.Logger) *ImageCache {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &ImageCache{
		client:  client,
		log:     log.WithComponent("imagecache"),
		entries: make(map[string]CacheEntry),
	}
}

// CollectImageURLs computes the set of distinct image URLs referenced by the
// given templates across all rows: the fixed URL of static image elements,
// and the per-row resolved URL of dynamic image elements. The returned order
// is unspecified.
func CollectImageURLs(templates []*models.Template, rows []models.Row, mapping models.FieldMapping) []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, tpl := range templates {
		for i := range tpl.Elements {
			e := &tpl.Elements[i]
			if e.Type != models.ElementImage || e.Image == nil || e.Hidden {
				continue
			}
			if e.DynamicField == "" {
				add(e.Image.URL)
				continue
			}
			for _, row := range rows {
				if v, ok := mapping.Resolve(e.DynamicField, row); ok {
					add(v)
				} else {
					// Missing row value falls back to the static URL.
					add(e.Image.URL)
				}
			}
		}
	}
	return urls
}

// Prefetch fetches each URL exactly once, in parallel. A failed fetch is
// logged and omitted from the cache; it never aborts the prefetch of other
// URLs. Only context cancellation returns an error.
func (c *ImageCache) Prefetch(ctx context.Context, urls []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchParallelism)

	for _, u := range urls {
		g.Go(func() error {
			entry, err := c.fetch(gctx, u)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Warn("image prefetch failed",
					"url", u,
					"error", err.Error(),
				)
				return nil
			}
			c.mu.Lock()
			c.entries[u] = entry
			c.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// Get returns the cached entry for the original URL string.
func (c *ImageCache) Get(url string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	return e, ok
}

// Len reports the number of cached entries.
func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// FetchCount reports the total number of fetch attempts made. With N
// distinct URLs this is exactly N regardless of row or element count.
func (c *ImageCache) FetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// Clear drops all entries. Called unconditionally at batch end.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry)
}

// fetch downloads one image. Wrapped proxy URLs are resolved to their real
// target before the request; the cache key stays the original string.
func (c *ImageCache) fetch(ctx context.Context, rawURL string) (CacheEntry, error) {
	c.mu.Lock()
	c.fetches++
	c.mu.Unlock()

	target := ResolveTargetURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return CacheEntry{}, err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return CacheEntry{}, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return CacheEntry{}, fmt.Errorf("image fetch http %d", res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxImageBytes+1))
	if err != nil {
		return CacheEntry{}, err
	}
	if len(data) > maxImageBytes {
		return CacheEntry{}, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	return CacheEntry{
		Data:        data,
		ContentType: res.Header.Get("Content-Type"),
	}, nil
}
