package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lbx/internal/models"
)

// WalkerOptions configures a [Walker].
type WalkerOptions struct {
	Open         OpenFunc
	Extractor    *Extractor
	BaseURL      string
	MaxPages     int
	MinPageDelay time.Duration
	MaxPageDelay time.Duration
	Logger       *log.Logger
	Sleep        func(ctx context.Context, d time.Duration) error
}

// Walker drives one session across every page of a watchlist.
type Walker struct {
	open         OpenFunc
	extractor    *Extractor
	baseURL      string
	maxPages     int
	minPageDelay time.Duration
	maxPageDelay time.Duration
	logger       *log.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewWalker creates a [Walker], filling unset options with defaults.
func NewWalker(opts WalkerOptions) *Walker {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Extractor == nil {
		opts.Extractor = NewExtractor(ExtractorOptions{Logger: opts.Logger})
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://letterboxd.com"
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 50
	}
	if opts.MinPageDelay <= 0 {
		opts.MinPageDelay = time.Second
	}
	if opts.MaxPageDelay < opts.MinPageDelay {
		opts.MaxPageDelay = 2 * opts.MinPageDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	return &Walker{
		open:         opts.Open,
		extractor:    opts.Extractor,
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		maxPages:     opts.MaxPages,
		minPageDelay: opts.MinPageDelay,
		maxPageDelay: opts.MaxPageDelay,
		logger:       opts.Logger,
		sleep:        opts.Sleep,
	}
}

// PageURL builds the address of watchlist page n for username.
func (w *Walker) PageURL(username string, n int) string {
	base := fmt.Sprintf("%s/%s/watchlist/", w.baseURL, url.PathEscape(username))
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%spage/%d/", base, n)
}

// Acquire scrapes the whole watchlist of username.
//
// The walk stops at the first page that adds no new entry, past the last page advertised by the
// pagination control, at the page cap, or when a later page cannot be loaded. A session that cannot
// be opened or a first page that cannot be loaded yields an empty list.
func (w *Walker) Acquire(ctx context.Context, username string) []models.WatchlistEntry {
	logger := w.logger.With("username", username)
	entries := NewEntrySet()

	if w.open == nil {
		logger.Error("no session opener configured")
		return entries.Entries()
	}

	session, err := w.open(ctx)
	if err != nil {
		logger.Error("failed to open browser session", "error", err)
		return entries.Entries()
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close browser session", "error", err)
		}
	}()

	lastPage := w.maxPages
	for n := 1; n <= lastPage; n++ {
		if n > 1 {
			if err := w.sleep(ctx, jitter(w.minPageDelay, w.maxPageDelay)); err != nil {
				logger.Warn("walk interrupted", "page", n, "error", err)
				break
			}
		}

		pageURL := w.PageURL(username, n)
		if !session.Navigate(ctx, pageURL) {
			if n == 1 {
				logger.Warn("first page unavailable, returning empty watchlist", "url", pageURL)
				return NewEntrySet().Entries()
			}
			logger.Warn("page unavailable, keeping collected entries", "page", n, "url", pageURL)
			break
		}

		result := w.extractor.Inspect(ctx, session.Page())
		added := entries.Add(result.Entries...)
		logger.Info("page scraped", "page", n, "shape", result.Shape, "found", len(result.Entries), "new", added)

		if n == 1 && result.LastPage > 0 && result.LastPage < lastPage {
			lastPage = result.LastPage
		}
		if added == 0 {
			break
		}
	}

	logger.Info("watchlist acquired", "entries", entries.Len())
	return entries.Entries()
}

// EntrySet is an insertion-ordered set of watchlist entries keyed by title and year.
type EntrySet struct {
	seen    map[models.EntryKey]struct{}
	entries []models.WatchlistEntry
}

// NewEntrySet creates an empty [EntrySet].
func NewEntrySet() *EntrySet {
	return &EntrySet{seen: make(map[models.EntryKey]struct{})}
}

// Add merges raw entries, skipping blank titles and keys already present. It returns how many were new.
func (s *EntrySet) Add(raws ...models.RawEntry) int {
	added := 0
	for _, raw := range raws {
		entry := models.WatchlistEntry{Title: strings.TrimSpace(raw.Title), ReleaseYear: raw.ReleaseYear}
		if entry.Title == "" {
			continue
		}
		if _, ok := s.seen[entry.Key()]; ok {
			continue
		}
		s.seen[entry.Key()] = struct{}{}
		s.entries = append(s.entries, entry)
		added++
	}
	return added
}

// Len returns the number of entries.
func (s *EntrySet) Len() int { return len(s.entries) }

// Entries returns a copy of the entries in insertion order. Never nil.
func (s *EntrySet) Entries() []models.WatchlistEntry {
	out := make([]models.WatchlistEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// MergeEntries deduplicates raw entries from consecutive pages.
func MergeEntries(pages ...[]models.RawEntry) []models.WatchlistEntry {
	set := NewEntrySet()
	for _, page := range pages {
		set.Add(page...)
	}
	return set.Entries()
}
