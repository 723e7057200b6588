package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// textMarkers appear in the title or visible text of challenge pages.
var textMarkers = []string{
	"just a moment",
	"verify you are human",
	"verifying you are human",
	"checking your browser",
	"attention required",
	"access denied",
	"are you a robot",
	"captcha",
	"challenge",
	"cloudflare",
}

// elementMarkers select the widgets challenge pages render.
var elementMarkers = []string{
	"#cf-challenge",
	"#challenge-form",
	"#challenge-stage",
	"#challenge-running",
	".cf-turnstile",
	"iframe[src*='challenges.cloudflare.com']",
	".g-recaptcha",
	"iframe[src*='recaptcha']",
	".h-captcha",
	"iframe[src*='hcaptcha.com']",
}

// scriptMarkers appear only in the inline scripts of challenge pages.
var scriptMarkers = []string{
	"_cf_chl_opt",
}

// DetectBlock reports whether doc looks like an anti-bot page, with the marker found.
//
// Protected sites inject challenge-platform scripts into ordinary pages too, so script
// sources and CDN hosts never count as markers. Only challenge widgets, the challenge
// options object and visible text do.
func DetectBlock(doc *goquery.Document) (string, bool) {
	for _, sel := range elementMarkers {
		if doc.Find(sel).Length() > 0 {
			return sel, true
		}
	}

	scripts := strings.ToLower(doc.Find("script:not([src])").Text())
	for _, m := range scriptMarkers {
		if strings.Contains(scripts, m) {
			return m, true
		}
	}

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	text := strings.ToLower(doc.Find("title").Text() + " " + body.Text())
	for _, m := range textMarkers {
		if strings.Contains(text, m) {
			return m, true
		}
	}
	return "", false
}
