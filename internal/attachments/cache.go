// Package attachments moves files embedded in GitLab markdown to the target.
// Every distinct upload locator is downloaded and uploaded at most once per
// run; later references reuse the recorded target URL.
package attachments

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LocatorPattern matches GitLab upload references such as
// /uploads/0123456789abcdef0123456789abcdef/screenshot.png.
var LocatorPattern = regexp.MustCompile(`/uploads/([a-f0-9]{32})/([^)\s]+)`)

// Downloader fetches raw attachment bytes from the source.
type Downloader interface {
	FetchAttachment(ctx context.Context, locator string) ([]byte, error)
}

// Uploader stores bytes on the target and returns a URL for them.
type Uploader interface {
	UploadAttachment(ctx context.Context, data []byte, name string) (string, error)
}

// Error is a failed relocation of one locator. It never aborts a run.
type Error struct {
	Locator string
	Op      string // "download" or "upload"
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("attachment %s failed for %s: %v", e.Op, e.Locator, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type record struct {
	url  string
	size int
	err  error
}

// Stats summarises cache activity.
type Stats struct {
	Uploaded int
	Failed   int
	Bytes    int64
}

// Cache maps source locators to target URLs. Concurrent misses on the same
// locator share a single download/upload. Failures are remembered too so a
// broken locator is attempted only once.
type Cache struct {
	src    Downloader
	dst    Uploader
	logger *zap.Logger

	group   singleflight.Group
	mu      sync.Mutex
	records map[string]record
}

// NewCache returns an empty cache.
func NewCache(src Downloader, dst Uploader, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{src: src, dst: dst, logger: logger, records: make(map[string]record)}
}

func (c *Cache) lookup(locator string) (record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[locator]
	return r, ok
}

// Resolve returns the target URL for locator, relocating it on first use.
func (c *Cache) Resolve(ctx context.Context, locator string) (string, error) {
	if r, ok := c.lookup(locator); ok {
		return r.url, r.err
	}

	v, _, _ := c.group.Do(locator, func() (interface{}, error) {
		if r, ok := c.lookup(locator); ok {
			return r, nil
		}
		r := c.relocate(ctx, locator)

		c.mu.Lock()
		c.records[locator] = r
		c.mu.Unlock()
		return r, nil
	})

	r := v.(record)
	return r.url, r.err
}

func (c *Cache) relocate(ctx context.Context, locator string) record {
	data, err := c.src.FetchAttachment(ctx, locator)
	if err != nil {
		c.logger.Warn("attachment download failed", zap.String("locator", locator), zap.Error(err))
		return record{err: &Error{Locator: locator, Op: "download", Err: err}}
	}

	name := AssetName(locator)
	url, err := c.dst.UploadAttachment(ctx, data, name)
	if err != nil {
		c.logger.Warn("attachment upload failed", zap.String("locator", locator), zap.Error(err))
		return record{err: &Error{Locator: locator, Op: "upload", Err: err}}
	}

	c.logger.Debug("attachment relocated", zap.String("locator", locator), zap.String("url", url), zap.Int("bytes", len(data)))
	return record{url: url, size: len(data)}
}

// Stats returns counts over all locators seen so far.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s Stats
	for _, r := range c.records {
		if r.err != nil {
			s.Failed++
			continue
		}
		s.Uploaded++
		s.Bytes += int64(r.size)
	}
	return s
}

// AssetName derives a collision-free file name from a locator:
// the first 8 characters of the upload secret, an underscore, the file name.
func AssetName(locator string) string {
	m := LocatorPattern.FindStringSubmatch(locator)
	if m == nil {
		return path.Base(locator)
	}
	return m[1][:8] + "_" + path.Base(m[2])
}
