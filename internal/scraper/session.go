package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
)

// maskAutomationJS runs before any page script, on top of [stealth.JS].
const maskAutomationJS = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	for (const key of Object.keys(window)) {
		if (key.startsWith('cdc_')) {
			try { delete window[key]; } catch (e) {}
		}
	}
})();`

// Page is the part of a browser tab the extractor uses.
type Page interface {
	// WaitFor reports whether selector matches an element before timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) bool
	// HTML returns the current document.
	HTML(ctx context.Context) (string, error)
	// ScrollBy scrolls the viewport vertically by px pixels.
	ScrollBy(ctx context.Context, px int) error
}

// Session is a single-use browser session.
type Session interface {
	// Navigate loads url with retries. False means the page is unavailable.
	Navigate(ctx context.Context, url string) bool
	Page() Page
	Close() error
}

// OpenFunc opens a new [Session].
type OpenFunc func(ctx context.Context) (Session, error)

// SessionOptions configures [OpenSession].
type SessionOptions struct {
	BrowserBin     string
	Headless       bool
	NavAttempts    int
	NavTimeout     time.Duration
	InitialBackoff time.Duration
	UserAgent      string // random from the pool when empty
	Logger         *log.Logger
}

// RodSession is a [Session] backed by a dedicated Chromium process.
type RodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	opts     SessionOptions
	logger   *log.Logger
}

// OpenSession launches a browser and prepares a stealth page.
//
// On error everything started so far is torn down before returning.
func OpenSession(ctx context.Context, opts SessionOptions) (*RodSession, error) {
	if opts.NavAttempts <= 0 {
		opts.NavAttempts = 3
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = RandomUserAgent()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("disable-default-apps").
		Set("user-agent", opts.UserAgent)

	if opts.BrowserBin != "" {
		l = l.Bin(opts.BrowserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	s := &RodSession{launcher: l, opts: opts, logger: opts.Logger}

	s.browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := s.browser.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	if err := s.preparePage(); err != nil {
		s.Close()
		return nil, err
	}

	opts.Logger.Debug("browser session opened", "user_agent", opts.UserAgent)
	return s, nil
}

func (s *RodSession) preparePage() error {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	s.page = page

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return fmt.Errorf("failed to inject stealth script: %w", err)
	}
	if _, err := page.EvalOnNewDocument(maskAutomationJS); err != nil {
		return fmt.Errorf("failed to inject automation mask: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.opts.UserAgent,
		AcceptLanguage: "en-US,en;q=0.5",
	}); err != nil {
		return fmt.Errorf("failed to set user agent: %w", err)
	}

	if _, err := page.SetExtraHeaders([]string{
		"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"DNT", "1",
		"Upgrade-Insecure-Requests", "1",
	}); err != nil {
		return fmt.Errorf("failed to set headers: %w", err)
	}

	return nil
}

// Navigate loads url, retrying up to NavAttempts times with jittered exponential backoff.
func (s *RodSession) Navigate(ctx context.Context, url string) bool {
	policy := retryPolicy(s.opts.NavAttempts, s.opts.InitialBackoff)
	return navigateWithRetry(ctx, policy, s.logger.With("url", url), func(ctx context.Context) error {
		p := s.page.Context(ctx).Timeout(s.opts.NavTimeout)
		if err := p.Navigate(url); err != nil {
			return err
		}
		return p.WaitLoad()
	})
}

// Page returns the session's tab.
func (s *RodSession) Page() Page {
	return &rodPage{page: s.page}
}

// Close releases the page, the browser and the launcher. Safe to call on a partially opened session.
func (s *RodSession) Close() error {
	var errs []error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	return errors.Join(errs...)
}

// retryPolicy allows attempts tries in total with jittered exponential backoff between them.
func retryPolicy(attempts int, initial time.Duration) backoff.BackOff {
	if attempts < 1 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.RandomizationFactor = 0.5
	eb.Multiplier = 2
	eb.MaxInterval = 8 * initial
	eb.MaxElapsedTime = 0
	return backoff.WithMaxRetries(eb, uint64(attempts-1))
}

// navigateWithRetry runs load until it succeeds or the policy gives up.
func navigateWithRetry(ctx context.Context, policy backoff.BackOff, logger *log.Logger, load func(context.Context) error) bool {
	attempt := 0
	op := func() error {
		attempt++
		err := load(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("navigation failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		logger.Warn("page unavailable", "attempts", attempt, "error", err)
		return false
	}
	return true
}

// rodPage adapts [rod.Page] to [Page].
type rodPage struct {
	page *rod.Page
}

func (p *rodPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	return err == nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) ScrollBy(ctx context.Context, px int) error {
	_, err := p.page.Context(ctx).Eval(`(dy) => window.scrollBy(0, dy)`, px)
	return err
}
