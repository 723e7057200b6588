// package tasks turns a results request into a filtered, persisted watchlist.
//
// The core abstraction is WatchlistEngine, which decides between a fresh scrape and the saved
// snapshot, enriches and reconciles fresh data, and filters films down to the user's services.
package tasks

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/repositories"
	"github.com/desertthunder/lbx/internal/services"
	"github.com/desertthunder/lbx/internal/shared"
)

// DefaultFreshnessWindow is how long a snapshot is reused before the watchlist is scraped again.
const DefaultFreshnessWindow = 7 * 24 * time.Hour

// Acquirer scrapes the entries of a user's watchlist.
type Acquirer interface {
	Acquire(ctx context.Context, username string) []models.WatchlistEntry
}

// UserStore resolves and updates user profiles.
type UserStore interface {
	Resolve(ctx context.Context, username string) models.LookupResult
	TouchResearch(ctx context.Context, id string) (time.Time, error)
}

// ProviderStore holds the streaming services a user selected per region.
type ProviderStore interface {
	List(ctx context.Context, userID, region string) ([]string, error)
	Replace(ctx context.Context, userID, region string, names []string) (repositories.ProviderChanges, error)
}

// FilmStore holds the reconciled film snapshot per user and region.
type FilmStore interface {
	List(ctx context.Context, userID, region string) ([]models.PersistedFilmRecord, error)
	Reconcile(ctx context.Context, userID, region string, films []models.EnrichedFilm) (repositories.ReconcileStats, error)
}

// EngineOptions holds the collaborators of a [WatchlistEngine].
type EngineOptions struct {
	Acquirer         Acquirer
	Catalog          services.Catalog
	Users            UserStore
	Providers        ProviderStore
	Films            FilmStore
	FreshnessWindow  time.Duration
	ShortenProviders bool
	Logger           *log.Logger
	Now              func() time.Time
}

// WatchlistEngine serves results requests for one user at a time.
type WatchlistEngine struct {
	acquirer  Acquirer
	catalog   services.Catalog
	users     UserStore
	providers ProviderStore
	films     FilmStore
	window    time.Duration
	shorten   bool
	logger    *log.Logger
	now       func() time.Time
}

// Request is a results request.
//
// A nil Providers keeps the selection saved for the region. A non-nil slice, even an empty one,
// replaces it.
type Request struct {
	Username  string
	Region    string
	Providers []string
	Refresh   bool
	Progress  chan<- ProgressUpdate
}

// Result is the outcome of [WatchlistEngine.Results].
type Result struct {
	User      *models.UserProfile         `json:"user"`
	Region    string                      `json:"region"`
	Providers []string                    `json:"providers"`
	Films     []models.EnrichedFilm       `json:"films"`
	Refreshed bool                        `json:"refreshed"`
	Stats     repositories.ReconcileStats `json:"stats"`

	// PersistErr is set when the fresh films could not be saved. Films is still valid.
	PersistErr error `json:"-"`
}

// NewWatchlistEngine creates a new WatchlistEngine with the provided collaborators.
func NewWatchlistEngine(opts EngineOptions) *WatchlistEngine {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = DefaultFreshnessWindow
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &WatchlistEngine{
		acquirer:  opts.Acquirer,
		catalog:   opts.Catalog,
		users:     opts.Users,
		providers: opts.Providers,
		films:     opts.Films,
		window:    opts.FreshnessWindow,
		shorten:   opts.ShortenProviders,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Results returns the films of a user's watchlist that stream on the selected services in a region.
//
// The watchlist is scraped, enriched and reconciled only when [NeedsResearch] says so; otherwise the
// saved snapshot is filtered again. Input is validated before any lookup or scrape.
//
// When the fresh films could not be saved, Results returns the Result together with an error
// wrapping [shared.ErrPersistence].
func (e *WatchlistEngine) Results(ctx context.Context, req Request) (*Result, error) {
	in, err := shared.ValidateRequest(req.Username, req.Region)
	if err != nil {
		return nil, err
	}
	logger := e.logger.With("username", in.Username, "region", in.Region)

	if err := e.checkRegion(ctx, in.Region); err != nil {
		return nil, err
	}

	sendProgress(req.Progress, lookupUpdate(in.Username))
	lookup := e.users.Resolve(ctx, in.Username)
	if !lookup.OK() {
		if lookup.Err == nil {
			lookup.Err = fmt.Errorf("%w: no profile for %s", shared.ErrPersistence, in.Username)
		}
		return nil, fmt.Errorf("failed to resolve user: %w", lookup.Err)
	}
	user := lookup.User
	logger.Debug("user resolved", "phase", Lookup, "outcome", lookup.Outcome, "user_id", user.ID)

	selected, err := e.selection(ctx, user.ID, in.Region, req.Providers)
	if err != nil {
		return nil, err
	}

	snapshot, err := e.films.List(ctx, user.ID, in.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	result := &Result{User: user, Region: in.Region, Providers: selected}
	base := models.Films(snapshot)

	if NeedsResearch(user, len(snapshot) > 0, req.Refresh, e.now(), e.window) {
		fresh, ok, err := e.research(ctx, logger, user, in, req.Progress, result)
		if err != nil {
			return nil, err
		}
		if ok {
			base = fresh
		}
	}

	if !result.Refreshed {
		sendProgress(req.Progress, cachedUpdate(len(base)))
	}

	result.Films = FilterByProviders(base, selected)
	if e.shorten {
		result.Films = ShortenProviders(result.Films)
	}
	sendProgress(req.Progress, filterUpdate(len(result.Films), len(base)))

	if result.PersistErr != nil {
		return result, result.PersistErr
	}
	return result, nil
}

// research scrapes, enriches and reconciles. ok is false when the scrape produced nothing, in which
// case the saved snapshot stays untouched.
func (e *WatchlistEngine) research(ctx context.Context, logger *log.Logger, user *models.UserProfile, in shared.RequestInput, progress chan<- ProgressUpdate, result *Result) ([]models.EnrichedFilm, bool, error) {
	sendProgress(progress, acquiringUpdate(in.Username))
	entries := e.acquirer.Acquire(ctx, in.Username)
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	sendProgress(progress, acquiredUpdate(entries))

	if len(entries) == 0 {
		logger.Warn("watchlist scrape returned no entries, keeping saved snapshot", "phase", Acquire)
		return nil, false, nil
	}

	fresh, err := e.enrich(ctx, entries, in.Region, progress)
	if err != nil {
		return nil, false, err
	}

	result.Refreshed = true
	stats, err := e.films.Reconcile(ctx, user.ID, in.Region, fresh)
	if err != nil {
		logger.Error("failed to save snapshot", "phase", Reconcile, "error", err)
		result.PersistErr = err
		sendProgress(progress, reconcileUpdate("Could not save results", err))
		return fresh, true, nil
	}
	result.Stats = stats
	sendProgress(progress, reconcileUpdate(
		fmt.Sprintf("Saved snapshot: %d added, %d updated, %d removed", stats.Inserted, stats.Updated, stats.Deleted), stats))

	at, err := e.users.TouchResearch(ctx, user.ID)
	if err != nil {
		logger.Error("failed to record research time", "phase", Reconcile, "error", err)
		result.PersistErr = err
		return fresh, true, nil
	}
	user.LastResearchAt = &at

	return fresh, true, nil
}

func (e *WatchlistEngine) checkRegion(ctx context.Context, region string) error {
	regions, err := e.catalog.AllRegions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list regions: %w", err)
	}
	if !slices.ContainsFunc(regions, func(r models.Region) bool { return r.Code == region }) {
		return fmt.Errorf("%w: %s", shared.ErrUnknownRegion, region)
	}
	return nil
}

// selection replaces the saved providers when requested is non-nil and returns the active selection.
func (e *WatchlistEngine) selection(ctx context.Context, userID, region string, requested []string) ([]string, error) {
	if requested == nil {
		selected, err := e.providers.List(ctx, userID, region)
		if err != nil {
			return nil, fmt.Errorf("failed to load providers: %w", err)
		}
		return selected, nil
	}

	changes, err := e.providers.Replace(ctx, userID, region, requested)
	if err != nil {
		return nil, fmt.Errorf("failed to save providers: %w", err)
	}
	e.logger.Debug("provider selection saved", "region", region, "added", changes.Added, "removed", changes.Removed)

	selected := slices.Clone(requested)
	slices.Sort(selected)
	return slices.Compact(selected), nil
}

// NeedsResearch reports whether a request must scrape the watchlist again.
//
// A scrape happens when forced, when no snapshot exists, when the user never completed one, or when
// the last one is older than window.
func NeedsResearch(user *models.UserProfile, hasSnapshot, refresh bool, now time.Time, window time.Duration) bool {
	switch {
	case refresh, !hasSnapshot:
		return true
	case user == nil || user.LastResearchAt == nil:
		return true
	default:
		return now.Sub(*user.LastResearchAt) > window
	}
}

