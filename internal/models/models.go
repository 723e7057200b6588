package models

import (
	"slices"
	"time"
)

// RawEntry is a film element extracted from a single list page.
type RawEntry struct {
	Title       string
	ReleaseYear int // 0 when the markup carried no year
}

// EntryKey identifies a watchlist entry within one scrape.
type EntryKey struct {
	Title       string
	ReleaseYear int
}

// WatchlistEntry is a deduplicated entry of a user's watchlist.
type WatchlistEntry struct {
	Title       string `json:"title"`
	ReleaseYear int    `json:"release_year,omitempty"`
}

// Key returns the deduplication key of the entry.
func (e WatchlistEntry) Key() EntryKey {
	return EntryKey{Title: e.Title, ReleaseYear: e.ReleaseYear}
}

// Candidate is the catalog's best match for a title.
type Candidate struct {
	ID          int
	Title       string
	Rating      float64
	ReleaseYear int
	Genres      []string
}

// EnrichedFilm is a watchlist entry resolved against the catalog with its streaming providers.
type EnrichedFilm struct {
	Title       string   `json:"title"`
	ReleaseYear int      `json:"release_year,omitempty"`
	ExternalID  int      `json:"external_id"`
	Rating      float64  `json:"rating"`
	Genres      []string `json:"genres,omitempty"`
	Providers   []string `json:"providers"`
}

// PersistedFilmRecord is one row of a user's stored snapshot for a region.
type PersistedFilmRecord struct {
	UserID      string   `json:"user_id"`
	RegionCode  string   `json:"region_code"`
	Title       string   `json:"title"`
	ExternalID  int      `json:"external_id"`
	Rating      float64  `json:"rating"`
	ReleaseYear int      `json:"release_year,omitempty"`
	Providers   []string `json:"providers"`
	Genres      []string `json:"genres,omitempty"`
}

// Film converts the stored record back into the in-memory representation.
func (r PersistedFilmRecord) Film() EnrichedFilm {
	return EnrichedFilm{
		Title:       r.Title,
		ReleaseYear: r.ReleaseYear,
		ExternalID:  r.ExternalID,
		Rating:      r.Rating,
		Genres:      slices.Clone(r.Genres),
		Providers:   slices.Clone(r.Providers),
	}
}

// Films converts a stored snapshot into in-memory films, preserving order.
func Films(records []PersistedFilmRecord) []EnrichedFilm {
	films := make([]EnrichedFilm, 0, len(records))
	for _, r := range records {
		films = append(films, r.Film())
	}
	return films
}

// UserProfile is a looked-up Letterboxd user.
type UserProfile struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	CreatedAt      time.Time  `json:"created_at"`
	LastResearchAt *time.Time `json:"last_research_at,omitempty"`
}

// ProviderPreference is one streaming service a user has access to in a region.
type ProviderPreference struct {
	UserID       string `json:"user_id"`
	RegionCode   string `json:"region_code"`
	ProviderName string `json:"provider_name"`
}

// Region is a region the catalog reports streaming availability for.
type Region struct {
	Code        string `json:"code"`
	EnglishName string `json:"english_name"`
}

// LookupOutcome enumerates the results of resolving a username.
type LookupOutcome int

const (
	LookupNotFound LookupOutcome = iota
	LookupCreated
	LookupFound
	LookupFailed
)

func (o LookupOutcome) String() string {
	switch o {
	case LookupNotFound:
		return "not_found"
	case LookupCreated:
		return "created"
	case LookupFound:
		return "found"
	case LookupFailed:
		return "failed"
	default:
		return ""
	}
}

// LookupResult carries a user lookup outcome. User is set for Created and Found, Err for Failed.
type LookupResult struct {
	Outcome LookupOutcome
	User    *UserProfile
	Err     error
}

// OK reports whether the lookup produced a usable profile.
func (r LookupResult) OK() bool {
	return (r.Outcome == LookupCreated || r.Outcome == LookupFound) && r.User != nil
}
