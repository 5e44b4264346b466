// Package activity walks a character's paginated raid history.
package activity

import (
	"context"
	"fmt"
	"iter"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"example.com/raidsync/internal/domain"
)

const (
	// DefaultConcurrency bounds page requests in flight per walk.
	DefaultConcurrency = 3
	// DefaultMaxPages caps how deep a history walk may go.
	DefaultMaxPages = 50
	// DefaultPageSize matches the count requested from the upstream.
	DefaultPageSize = 250
)

// PageSource returns one page of activity history. A nil page with a nil
// error means the upstream has no more history.
type PageSource interface {
	GetActivityPage(ctx context.Context, membershipType int, membershipID, characterID string, page int) (*domain.ActivityPage, error)
}

// Fetcher issues page requests concurrently but yields records in page order.
type Fetcher struct {
	source      PageSource
	concurrency int
	maxPages    int
	pageSize    int
	logger      *log.Logger
}

// Option configures the Fetcher.
type Option func(*Fetcher)

// WithConcurrency bounds the number of page requests in flight.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithMaxPages caps the page index range to [0, n).
func WithMaxPages(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxPages = n
		}
	}
}

// WithPageSize sets the size of a full page. Shorter pages end the walk.
func WithPageSize(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// WithLogger overrides the fetcher logger.
func WithLogger(logger *log.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher constructs a Fetcher over source.
func NewFetcher(source PageSource, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:      source,
		concurrency: DefaultConcurrency,
		maxPages:    DefaultMaxPages,
		pageSize:    DefaultPageSize,
		logger:      log.New(log.Writer(), "[activity] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type target struct {
	membershipType int
	membershipID   string
	characterID    string
}

type pageResult struct {
	page int
	data *domain.ActivityPage
	err  error
}

// FetchAll yields every raid activity for the character until the history
// runs out. The walk stops after the first absent, empty or short page.
func (f *Fetcher) FetchAll(ctx context.Context, membershipType int, membershipID, characterID string) iter.Seq2[domain.ActivityRecord, error] {
	return f.walk(ctx, target{membershipType, membershipID, characterID}, nil)
}

// FetchUntil yields only activities that started after cutoff. Besides the
// FetchAll stop conditions, the walk ends after a page holding fewer than a
// full page of activities newer than cutoff.
func (f *Fetcher) FetchUntil(ctx context.Context, membershipType int, membershipID, characterID string, cutoff time.Time) iter.Seq2[domain.ActivityRecord, error] {
	return f.walk(ctx, target{membershipType, membershipID, characterID}, &cutoff)
}

func (f *Fetcher) walk(parent context.Context, t target, cutoff *time.Time) iter.Seq2[domain.ActivityRecord, error] {
	mode := "full"
	if cutoff != nil {
		mode = "incremental"
	}

	return func(yield func(domain.ActivityRecord, error) bool) {
		ctx, cancel := context.WithCancel(parent)

		// slots carries one result channel per requested page, in page order.
		slots := make(chan chan pageResult, f.concurrency)
		sem := semaphore.NewWeighted(int64(f.concurrency))
		var inflight sync.WaitGroup

		go func() {
			defer close(slots)
			for page := 0; page < f.maxPages; page++ {
				if ctx.Err() != nil {
					return
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				result := make(chan pageResult, 1)
				select {
				case slots <- result:
				case <-ctx.Done():
					sem.Release(1)
					return
				}
				inflight.Add(1)
				go func(page int) {
					defer inflight.Done()
					defer sem.Release(1)
					data, err := f.source.GetActivityPage(ctx, t.membershipType, t.membershipID, t.characterID, page)
					result <- pageResult{page: page, data: data, err: err}
				}(page)
			}
		}()

		defer func() {
			cancel()
			for range slots {
			}
			inflight.Wait()
		}()

		for slot := range slots {
			var res pageResult
			select {
			case res = <-slot:
			case <-parent.Done():
				yield(domain.ActivityRecord{}, parent.Err())
				return
			}
			if res.err != nil {
				f.logger.Printf("activity page %d for character %s failed: %v", res.page, t.characterID, res.err)
				yield(domain.ActivityRecord{}, fmt.Errorf("fetch activity page %d: %w", res.page, res.err))
				return
			}
			pagesFetched.WithLabelValues(mode).Inc()

			if res.data == nil {
				return
			}
			fresh := 0
			for _, record := range res.data.Activities {
				if cutoff != nil && !record.Period.After(*cutoff) {
					continue
				}
				fresh++
				recordsEmitted.WithLabelValues(mode).Inc()
				if !yield(record, nil) {
					return
				}
			}
			if len(res.data.Activities) < f.pageSize {
				return
			}
			if cutoff != nil && fresh < f.pageSize {
				return
			}
		}
	}
}
