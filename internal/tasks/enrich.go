package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/shared"
)

// Enrich resolves every entry against the catalog and attaches its providers in region.
//
// Entries without a catalog match or without a flat-rate provider are dropped. The result is sorted
// by descending rating; ties keep watchlist order.
//
// An outage ([shared.ErrCatalogUnavailable]) stops enrichment at once. A rejected request for a
// single entry drops that entry, but when every entry fails this way the whole pass is reported as
// an outage so that callers never mistake it for an empty watchlist.
func (e *WatchlistEngine) Enrich(ctx context.Context, entries []models.WatchlistEntry, region string) ([]models.EnrichedFilm, error) {
	return e.enrich(ctx, entries, region, nil)
}

func (e *WatchlistEngine) enrich(ctx context.Context, entries []models.WatchlistEntry, region string, progress chan<- ProgressUpdate) ([]models.EnrichedFilm, error) {
	logger := e.logger.With("region", region, "phase", Enrich)
	films := make([]models.EnrichedFilm, 0, len(entries))
	failed := 0
	var lastErr error

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sendProgress(progress, enrichUpdate(i+1, len(entries), entry))

		film, ok, err := e.enrichOne(ctx, entry, region)
		switch {
		case errors.Is(err, shared.ErrCatalogUnavailable):
			return nil, err
		case err != nil:
			failed++
			lastErr = err
			logger.Debug("dropping entry", "title", entry.Title, "reason", "request_failed", "error", err)
		case !ok:
		default:
			films = append(films, film)
		}
	}

	if len(entries) > 0 && failed == len(entries) {
		return nil, fmt.Errorf("%w: every catalog lookup failed, last error: %v", shared.ErrCatalogUnavailable, lastErr)
	}

	SortByRating(films)
	logger.Info("enriched watchlist", "entries", len(entries), "films", len(films), "failed", failed)
	return films, nil
}

func (e *WatchlistEngine) enrichOne(ctx context.Context, entry models.WatchlistEntry, region string) (models.EnrichedFilm, bool, error) {
	candidate, err := e.catalog.Resolve(ctx, entry.Title, entry.ReleaseYear)
	if err != nil {
		return models.EnrichedFilm{}, false, err
	}
	if candidate == nil {
		e.logger.Debug("dropping entry", "title", entry.Title, "year", entry.ReleaseYear, "reason", "no_match")
		return models.EnrichedFilm{}, false, nil
	}

	providers, err := e.catalog.ProvidersFor(ctx, candidate.ID, region)
	if err != nil {
		return models.EnrichedFilm{}, false, err
	}
	if len(providers) == 0 {
		e.logger.Debug("dropping entry", "title", entry.Title, "id", candidate.ID, "reason", "no_providers")
		return models.EnrichedFilm{}, false, nil
	}

	year := entry.ReleaseYear
	if year == 0 {
		year = candidate.ReleaseYear
	}

	return models.EnrichedFilm{
		Title:       entry.Title,
		ReleaseYear: year,
		ExternalID:  candidate.ID,
		Rating:      candidate.Rating,
		Genres:      slices.Clone(candidate.Genres),
		Providers:   slices.Clone(providers),
	}, true, nil
}

// SortByRating orders films by descending rating, keeping the relative order of equal ratings.
func SortByRating(films []models.EnrichedFilm) {
	slices.SortStableFunc(films, func(a, b models.EnrichedFilm) int {
		return cmp.Compare(b.Rating, a.Rating)
	})
}
