// Package services defines the [Catalog] interface for film metadata and streaming availability and implements it for TMDB.
//
// # Catalog Interface
//
// The engine depends only on [Catalog], so enrichment can run against a test double or another metadata source.
//
// # TMDB Implementation
//
// [TMDBClient] talks to the TMDB v3 API with a v4 read access token:
//   - Requests go through a resty client whose transport is an [oauth2] client with a static bearer token
//   - A [rate.Limiter] paces requests below the API's rate limit
//   - A gobreaker circuit breaker stops calling TMDB after consecutive transport failures or 5xx/429 responses
//
// Endpoints used:
//   - /search/movie : title search with primary_release_year when the year is known
//   - /movie/{id}/watch/providers : flat-rate providers per region
//   - /watch/providers/regions : regions with availability data
//   - /watch/providers/movie : providers per region, filtered by display_priorities
//   - /genre/movie/list : genre id to name mapping, fetched once per client
//
// # Error Handling
//
// Errors wrap sentinels from the shared package:
//   - [shared.ErrCatalogUnavailable] : transport failure, malformed payload, 5xx/429, or breaker open
//   - [shared.ErrCatalogRequest] : any other non-2xx response (bad token, unknown id)
//   - [shared.ErrMissingCredentials] : no token configured
package services
