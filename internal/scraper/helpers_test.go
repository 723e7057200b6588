package scraper

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
)

const emptyPage = `<html><head><title>Watchlist</title></head><body><p>No films yet.</p></body></html>`

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// fakePage serves static HTML through the [Page] interface.
type fakePage struct {
	html      string
	htmlErr   error
	scrolls   []int
	waitedFor []string
}

func (p *fakePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	p.waitedFor = append(p.waitedFor, selector)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	if p.htmlErr != nil {
		return "", p.htmlErr
	}
	return p.html, nil
}

func (p *fakePage) ScrollBy(ctx context.Context, px int) error {
	p.scrolls = append(p.scrolls, px)
	return nil
}

// fakeSession maps URLs to HTML. URLs in fail never load; unknown URLs load an empty page.
type fakeSession struct {
	pages   map[string]string
	fail    map[string]bool
	visited []string
	closed  int
	current *fakePage
}

func (s *fakeSession) Navigate(ctx context.Context, url string) bool {
	s.visited = append(s.visited, url)
	if s.fail[url] {
		return false
	}
	html, ok := s.pages[url]
	if !ok {
		html = emptyPage
	}
	s.current = &fakePage{html: html}
	return true
}

func (s *fakeSession) Page() Page {
	return s.current
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

func openerFor(s *fakeSession) OpenFunc {
	return func(ctx context.Context) (Session, error) { return s, nil }
}

func failingOpener(ctx context.Context) (Session, error) {
	return nil, errors.New("chromium not found")
}

func componentPage(names ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="grid">`)
	for _, n := range names {
		b.WriteString(`<li class="griditem"><div class="react-component" data-item-name="` + n + `"><img alt="poster"></div></li>`)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}
