package scraper

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/lbx/internal/models"
)

// ExtractorOptions configures an [Extractor].
type ExtractorOptions struct {
	Shapes          []PageShape
	SelectorTimeout time.Duration
	ScrollSteps     int
	ScrollStepPx    int
	MinPause        time.Duration
	MaxPause        time.Duration
	Logger          *log.Logger
	Sleep           func(ctx context.Context, d time.Duration) error
}

// Extractor turns a loaded list page into raw entries.
type Extractor struct {
	shapes          []PageShape
	selectorTimeout time.Duration
	scrollSteps     int
	scrollStepPx    int
	minPause        time.Duration
	maxPause        time.Duration
	logger          *log.Logger
	sleep           func(ctx context.Context, d time.Duration) error
}

// PageResult is what one page yielded.
type PageResult struct {
	Entries  []models.RawEntry
	Shape    string // name of the matched shape, empty when none matched
	Selector string
	Blocked  bool   // no shape matched and the page looks like a challenge
	Marker   string // block marker that was found
	LastPage int    // highest page number in the pagination control, 0 when absent
}

// NewExtractor creates an [Extractor], filling unset options with defaults.
func NewExtractor(opts ExtractorOptions) *Extractor {
	if len(opts.Shapes) == 0 {
		opts.Shapes = DefaultShapes()
	}
	if opts.SelectorTimeout <= 0 {
		opts.SelectorTimeout = 5 * time.Second
	}
	if opts.ScrollSteps < 2 {
		opts.ScrollSteps = 2
	}
	if opts.ScrollStepPx <= 0 {
		opts.ScrollStepPx = 500
	}
	if opts.MinPause <= 0 {
		opts.MinPause = 500 * time.Millisecond
	}
	if opts.MaxPause < opts.MinPause {
		opts.MaxPause = opts.MinPause
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	return &Extractor{
		shapes:          opts.Shapes,
		selectorTimeout: opts.SelectorTimeout,
		scrollSteps:     opts.ScrollSteps,
		scrollStepPx:    opts.ScrollStepPx,
		minPause:        opts.MinPause,
		maxPause:        opts.MaxPause,
		logger:          opts.Logger,
		sleep:           opts.Sleep,
	}
}

// Extract returns the entries of page.
func (e *Extractor) Extract(ctx context.Context, page Page) []models.RawEntry {
	return e.Inspect(ctx, page).Entries
}

// Inspect simulates a reader on page, then extracts entries with the first matching shape.
func (e *Extractor) Inspect(ctx context.Context, page Page) PageResult {
	e.simulateReader(ctx, page)

	for _, shape := range e.shapes {
		if !shape.Matches(ctx, page, e.selectorTimeout) {
			e.logger.Debug("selector missed", "shape", shape.Name(), "selector", shape.Selector())
			continue
		}

		doc, err := e.document(ctx, page)
		if err != nil {
			e.logger.Warn("failed to read page content", "selector", shape.Selector(), "error", err)
			return PageResult{Shape: shape.Name(), Selector: shape.Selector()}
		}

		result := PageResult{Shape: shape.Name(), Selector: shape.Selector(), LastPage: LastPageHint(doc)}
		skipped := 0
		doc.Find(shape.Selector()).Each(func(_ int, el *goquery.Selection) {
			entry, ok := shape.Extract(el)
			if !ok {
				skipped++
				return
			}
			result.Entries = append(result.Entries, entry)
		})

		e.logger.Debug("extracted page", "shape", shape.Name(), "selector", shape.Selector(),
			"entries", len(result.Entries), "skipped", skipped)
		return result
	}

	return e.diagnoseMiss(ctx, page)
}

// diagnoseMiss distinguishes block pages from genuinely empty pages in logs.
func (e *Extractor) diagnoseMiss(ctx context.Context, page Page) PageResult {
	doc, err := e.document(ctx, page)
	if err != nil {
		e.logger.Warn("no film containers matched", "reason", "unreadable", "error", err)
		return PageResult{}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	snippet := Snippet(doc.Find("body").Text(), 160)

	if marker, blocked := DetectBlock(doc); blocked {
		e.logger.Warn("no film containers matched", "reason", "blocked", "marker", marker, "title", title, "snippet", snippet)
		return PageResult{Blocked: true, Marker: marker}
	}

	e.logger.Info("no film containers matched", "reason", "empty", "title", title, "snippet", snippet)
	return PageResult{}
}

// simulateReader pauses and scrolls in steps to trigger lazy loading.
func (e *Extractor) simulateReader(ctx context.Context, page Page) {
	if err := e.sleep(ctx, e.pause()); err != nil {
		return
	}
	for i := 0; i < e.scrollSteps; i++ {
		if err := page.ScrollBy(ctx, e.scrollStepPx); err != nil {
			e.logger.Debug("scroll failed", "step", i+1, "error", err)
			return
		}
		if err := e.sleep(ctx, e.pause()/2); err != nil {
			return
		}
	}
}

func (e *Extractor) pause() time.Duration {
	return jitter(e.minPause, e.maxPause)
}

func (e *Extractor) document(ctx context.Context, page Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// LastPageHint reads the number of the last pagination link, or 0 when there is none.
func LastPageHint(doc *goquery.Document) int {
	text := strings.TrimSpace(doc.Find("li.paginate-page:last-child a").First().Text())
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// Snippet collapses whitespace in s and truncates it to n runes.
func Snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// jitter returns a random duration in [lo, hi].
func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
