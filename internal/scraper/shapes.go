package scraper

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/desertthunder/lbx/internal/models"
)

var (
	titleYearSuffix = regexp.MustCompile(`^(.*\S)\s*\((\d{4})\)\s*$`)
	slugYearSuffix  = regexp.MustCompile(`-(\d{4})$`)
	leadingYear     = regexp.MustCompile(`^(\d{4})(?:$|-)`)
)

// releaseDateAttrs are checked in order for a structured release date or year.
var releaseDateAttrs = []string{
	"data-film-release-date",
	"data-release-date",
	"data-film-release-year",
	"data-release-year",
}

// PageShape is one markup variant of a watchlist page.
type PageShape interface {
	// Name identifies the shape in logs.
	Name() string
	// Selector matches one film element.
	Selector() string
	// Matches reports whether the page currently uses this shape.
	Matches(ctx context.Context, page Page, timeout time.Duration) bool
	// Extract parses a single element. ok is false when the element has no title.
	Extract(el *goquery.Selection) (entry models.RawEntry, ok bool)
}

// DefaultShapes returns the shapes in priority order: component markup, modern posters, legacy posters.
func DefaultShapes() []PageShape {
	return []PageShape{
		componentShape{selector: "li.griditem div.react-component[data-item-name]"},
		componentShape{selector: "li.griditem div.react-component"},
		componentShape{selector: "div.react-component[data-item-name]"},
		componentShape{selector: "div.react-component[data-film-id]"},
		posterShape{selector: "li.griditem"},
		legacyPosterShape{selector: "ul.poster-list li.poster-container"},
		legacyPosterShape{selector: ".poster-container"},
	}
}

type selectorMatch string

func (s selectorMatch) matches(ctx context.Context, page Page, timeout time.Duration) bool {
	return page.WaitFor(ctx, string(s), timeout)
}

// componentShape reads the React component markup, whose data-item-name
// holds "Title (YYYY)".
type componentShape struct {
	selector string
}

func (s componentShape) Name() string     { return "component" }
func (s componentShape) Selector() string { return s.selector }
func (s componentShape) Matches(ctx context.Context, page Page, timeout time.Duration) bool {
	return selectorMatch(s.selector).matches(ctx, page, timeout)
}

func (s componentShape) Extract(el *goquery.Selection) (models.RawEntry, bool) {
	comp := el
	if _, ok := el.Attr("data-item-name"); !ok {
		comp = el.Find("div.react-component[data-item-name]").First()
		if comp.Length() == 0 {
			comp = el.Find("div.react-component").First()
		}
	}
	if comp.Length() == 0 {
		return models.RawEntry{}, false
	}

	name := attr(comp, "data-item-name")
	if name == "" {
		name = attr(comp, "data-film-name")
	}
	if name == "" {
		name = attr(comp.Find("img").First(), "alt")
	}

	title, year := SplitTitleYear(name)
	if title == "" {
		return models.RawEntry{}, false
	}
	if year == 0 {
		year = yearFromAttrs(comp)
	}
	return models.RawEntry{Title: title, ReleaseYear: year}, true
}

// posterShape reads the modern poster grid, where the film node carries
// its name and a structured release date.
type posterShape struct {
	selector string
}

func (s posterShape) Name() string     { return "poster" }
func (s posterShape) Selector() string { return s.selector }
func (s posterShape) Matches(ctx context.Context, page Page, timeout time.Duration) bool {
	return selectorMatch(s.selector).matches(ctx, page, timeout)
}

func (s posterShape) Extract(el *goquery.Selection) (models.RawEntry, bool) {
	node := el
	if _, ok := el.Attr("data-film-name"); !ok {
		if inner := el.Find("[data-film-name]").First(); inner.Length() > 0 {
			node = inner
		} else if inner := el.Find("[data-item-name]").First(); inner.Length() > 0 {
			return componentShape{}.Extract(inner)
		}
	}

	title := attr(node, "data-film-name")
	if title == "" {
		title = attr(node.Find("img").First(), "alt")
	}

	title, year := SplitTitleYear(title)
	if title == "" {
		return models.RawEntry{}, false
	}
	if year == 0 {
		year = yearFromAttrs(node)
	}
	return models.RawEntry{Title: title, ReleaseYear: year}, true
}

// legacyPosterShape reads the original poster-list markup: the title is the
// poster image alt text and the year comes from a date attribute or the film slug.
type legacyPosterShape struct {
	selector string
}

func (s legacyPosterShape) Name() string     { return "legacy_poster" }
func (s legacyPosterShape) Selector() string { return s.selector }
func (s legacyPosterShape) Matches(ctx context.Context, page Page, timeout time.Duration) bool {
	return selectorMatch(s.selector).matches(ctx, page, timeout)
}

func (s legacyPosterShape) Extract(el *goquery.Selection) (models.RawEntry, bool) {
	title := attr(el.Find("img").First(), "alt")
	if title == "" {
		title = attr(el.Find("[data-film-name]").First(), "data-film-name")
	}

	title, year := SplitTitleYear(title)
	if title == "" {
		return models.RawEntry{}, false
	}

	film := el.Find("[data-film-slug]").First()
	if film.Length() == 0 {
		film = el
	}
	if year == 0 {
		year = yearFromAttrs(film)
	}
	if year == 0 {
		year = yearFromSlug(attr(film, "data-film-slug"))
	}
	return models.RawEntry{Title: title, ReleaseYear: year}, true
}

// SplitTitleYear strips a trailing "(YYYY)" from s and returns it as the year.
//
// Titles without the suffix are returned trimmed with year 0.
func SplitTitleYear(s string) (string, int) {
	s = strings.TrimSpace(s)
	m := titleYearSuffix.FindStringSubmatch(s)
	if m == nil {
		return s, 0
	}
	year, _ := strconv.Atoi(m[2])
	return strings.TrimSpace(m[1]), year
}

// YearFromDate returns the year of a "YYYY" or "YYYY-MM-DD" value, or 0.
func YearFromDate(s string) int {
	m := leadingYear.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	return year
}

func yearFromAttrs(sel *goquery.Selection) int {
	for _, name := range releaseDateAttrs {
		if year := YearFromDate(attr(sel, name)); year != 0 {
			return year
		}
	}
	return 0
}

func yearFromSlug(slug string) int {
	m := slugYearSuffix.FindStringSubmatch(strings.TrimSuffix(slug, "/"))
	if m == nil {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	return year
}

func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.Attr(name)
	return strings.TrimSpace(v)
}
