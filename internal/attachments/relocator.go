package attachments

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel relocations within one text block.
const DefaultConcurrency = 4

// Relocator rewrites the upload locators of a text block through a Cache.
type Relocator struct {
	Cache       *Cache
	Concurrency int
}

// NewRelocator returns a relocator backed by cache.
func NewRelocator(cache *Cache, concurrency int) *Relocator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Relocator{Cache: cache, Concurrency: concurrency}
}

// Locators returns the distinct upload locators in text, in order of first appearance.
func Locators(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, loc := range LocatorPattern.FindAllString(text, -1) {
		if !seen[loc] {
			seen[loc] = true
			out = append(out, loc)
		}
	}
	return out
}

// Rewrite replaces every relocatable locator in text with its target URL.
// Locators that fail are left as they are and reported in the returned slice.
func (r *Relocator) Rewrite(ctx context.Context, text string) (string, []*Error) {
	locators := Locators(text)
	if len(locators) == 0 {
		return text, nil
	}

	var (
		mu       sync.Mutex
		resolved = make(map[string]string, len(locators))
		failures []*Error
	)

	var g errgroup.Group
	g.SetLimit(r.Concurrency)
	for _, loc := range locators {
		loc := loc
		g.Go(func() error {
			url, err := r.Cache.Resolve(ctx, loc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var aerr *Error
				if !errors.As(err, &aerr) {
					aerr = &Error{Locator: loc, Op: "upload", Err: err}
				}
				failures = append(failures, aerr)
				return nil
			}
			resolved[loc] = url
			return nil
		})
	}
	_ = g.Wait()

	out := LocatorPattern.ReplaceAllStringFunc(text, func(loc string) string {
		if url, ok := resolved[loc]; ok {
			return url
		}
		return loc
	})
	return out, sortErrors(locators, failures)
}

// sortErrors orders failures by the position of their locator in the text.
func sortErrors(order []string, failures []*Error) []*Error {
	if len(failures) < 2 {
		return failures
	}
	byLoc := make(map[string]*Error, len(failures))
	for _, f := range failures {
		byLoc[f.Locator] = f
	}
	out := make([]*Error, 0, len(failures))
	for _, loc := range order {
		if f, ok := byLoc[loc]; ok {
			out = append(out, f)
		}
	}
	return out
}
