package tasks

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/desertthunder/lbx/internal/models"
)

// FilterByProviders keeps the films that stream on at least one selected provider.
//
// Each kept film's providers are reduced to the selected ones, in the film's own order. Input films
// are not modified.
func FilterByProviders(films []models.EnrichedFilm, selected []string) []models.EnrichedFilm {
	allowed := make(map[string]bool, len(selected))
	for _, name := range selected {
		allowed[name] = true
	}

	out := make([]models.EnrichedFilm, 0, len(films))
	for _, film := range films {
		var providers []string
		for _, name := range film.Providers {
			if allowed[name] && !slices.Contains(providers, name) {
				providers = append(providers, name)
			}
		}
		if len(providers) == 0 {
			continue
		}

		film.Providers = providers
		film.Genres = slices.Clone(film.Genres)
		out = append(out, film)
	}
	return out
}

// ShortenProviders collapses plan variants of a provider into its first word.
//
// "Netflix Standard with Ads" becomes "Netflix". A name is dropped when the same first word, the
// word minus its last character or the word plus "+" was already kept.
func ShortenProviders(films []models.EnrichedFilm) []models.EnrichedFilm {
	out := make([]models.EnrichedFilm, len(films))
	for i, film := range films {
		film.Providers = shortenNames(film.Providers)
		out[i] = film
	}
	return out
}

func shortenNames(providers []string) []string {
	known := make([]string, 0, len(providers))
	for _, provider := range providers {
		fields := strings.Fields(provider)
		if len(fields) == 0 {
			continue
		}

		main := fields[0]
		_, size := utf8.DecodeLastRuneInString(main)
		trimmed := main[:len(main)-size]

		if slices.Contains(known, main) || slices.Contains(known, trimmed) || slices.Contains(known, main+"+") {
			continue
		}
		known = append(known, main)
	}
	return known
}
