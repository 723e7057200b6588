package scraper

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lbx/internal/shared"
)

// New wires a [Walker] that opens a fresh stealth browser session per acquisition.
func New(cfg shared.ScraperConfig, logger *log.Logger) *Walker {
	logger = shared.WithLogger(logger, "component", "scraper")

	extractor := NewExtractor(ExtractorOptions{
		SelectorTimeout: cfg.SelectorTimeout.Duration,
		ScrollSteps:     cfg.ScrollSteps,
		ScrollStepPx:    cfg.ScrollStepPx,
		Logger:          logger,
	})

	open := func(ctx context.Context) (Session, error) {
		s, err := OpenSession(ctx, SessionOptions{
			BrowserBin:  cfg.BrowserBin,
			Headless:    cfg.Headless,
			NavAttempts: cfg.NavAttempts,
			NavTimeout:  cfg.NavTimeout.Duration,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	return NewWalker(WalkerOptions{
		Open:         open,
		Extractor:    extractor,
		BaseURL:      cfg.BaseURL,
		MaxPages:     cfg.MaxPages,
		MinPageDelay: cfg.MinPageDelay.Duration,
		MaxPageDelay: cfg.MaxPageDelay.Duration,
		Logger:       logger,
	})
}
