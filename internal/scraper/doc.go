// Package scraper acquires a Letterboxd watchlist through a headless browser.
//
// # Sessions
//
// [OpenSession] launches a disposable Chromium through go-rod with a random desktop user agent,
// a 1920x1080 viewport and stealth init scripts that hide automation markers.
// [RodSession.Navigate] retries transient failures with exponential backoff and reports failure
// as false rather than an error. Every session owns its page, browser and launcher and releases all three on Close.
//
// # Extraction
//
// The site serves several markups for the same list. Each one is a [PageShape] with a CSS selector
// and an element parser. The [Extractor] scrolls the page like a reader, then tries shapes in priority order;
// the first shape whose selector appears within the selector timeout is used for the whole page.
// When nothing matches, the page is checked for challenge/verification markers so block pages and
// empty lists are logged differently.
//
// # Pagination
//
// The [Walker] visits /{user}/watchlist/page/{n}/ sequentially with a randomized pause between pages,
// merges entries keyed by title and year (first occurrence wins) and stops on a page with no new entries,
// on the pagination hint of the first page, or on the configured page cap.
package scraper
