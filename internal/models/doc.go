// Package models defines the domain types shared by the scraper, the catalog client, the engine and the repositories.
//
// The types follow the life of a watchlist entry through one request:
//
//  1. [RawEntry] : one film element parsed from one list page
//  2. [WatchlistEntry] : the deduplicated union of raw entries across pages, keyed by [EntryKey]
//  3. [Candidate] : the best catalog match for a watchlist entry
//  4. [EnrichedFilm] : an entry with catalog id, rating, genres and streaming providers attached
//  5. [PersistedFilmRecord] : the stored snapshot row for (user, region, title)
//
// [UserProfile] and [ProviderPreference] describe the requesting user.
// [LookupResult] reports the outcome of resolving a username to a profile without sentinel ids.
package models
