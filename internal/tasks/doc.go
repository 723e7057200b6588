// Package tasks serves watchlist results requests with real-time progress reporting.
//
// # Core Operations
//
// [WatchlistEngine.Results] handles one request end to end:
//
//  1. Validates username and region, and checks the region against the catalog
//  2. Resolves the user profile, creating it on first use
//  3. Saves the provider selection when one is supplied (set difference only)
//  4. Applies the freshness gate ([NeedsResearch]):
//     - stale or missing snapshot: scrape, [WatchlistEngine.Enrich], reconcile, record research time
//     - fresh snapshot: reuse it as is
//  5. Filters films down to the selected providers ([FilterByProviders])
//
// # Progress Reporting
//
// Requests may carry a progress channel. The [ProgressUpdate] struct contains phase, step counters,
// messages, and optional data. Updates use select with default to prevent blocking.
//
// # Failure Modes
//
// Invalid input fails with [shared.ErrInvalidInput] before any network work. A catalog outage fails
// with [shared.ErrCatalogUnavailable], which is distinct from an empty result. A failed save still
// returns the fresh films alongside a [shared.ErrPersistence] error.
package tasks
