// Package cover finds book cover images in public catalogs.
package cover

import (
	"context"
	"errors"
	"time"

	"langgrade/internal/util"
)

// Placeholder is the client-side image shown when no cover exists.
const Placeholder = "/images/placeholder-book.png"

const defaultAttempts = 3

var retryDelay = time.Second

// Finder performs one catalog lookup. ok is false when the catalog answered
// but had no cover.
type Finder interface {
	FindCover(ctx context.Context, title, author string) (url string, ok bool, err error)
}

// Resolver retries a Finder with a fixed delay. Both errors and empty answers
// are retried; after the last attempt the result is simply "no cover".
type Resolver struct {
	finder   Finder
	attempts int
	delay    time.Duration
}

func NewResolver(finder Finder) *Resolver {
	return &Resolver{finder: finder, attempts: defaultAttempts, delay: retryDelay}
}

// WithDelay returns a copy of r that waits d between attempts.
func (r *Resolver) WithDelay(d time.Duration) *Resolver {
	c := *r
	c.delay = d
	return &c
}

// Resolve returns a cover URL or nil.
func (r *Resolver) Resolve(ctx context.Context, title, author string) *string {
	logger := util.LoggerFromContext(ctx)
	for attempt := 1; attempt <= r.attempts; attempt++ {
		url, ok, err := r.finder.FindCover(ctx, title, author)
		switch {
		case err != nil:
			logger.Warn("cover lookup failed", "title", title, "attempt", attempt, "err", err)
		case ok:
			return &url
		default:
			logger.Info("cover not found", "title", title, "attempt", attempt)
		}
		if attempt == r.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.delay):
		}
	}
	return nil
}

// Chain asks each finder in order and returns the first cover found.
type Chain []Finder

func (c Chain) FindCover(ctx context.Context, title, author string) (string, bool, error) {
	var errs []error
	for _, f := range c {
		url, ok, err := f.FindCover(ctx, title, author)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return url, true, nil
		}
	}
	return "", false, errors.Join(errs...)
}
