package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/repositories"
	"github.com/desertthunder/lbx/internal/services"
	"github.com/desertthunder/lbx/internal/shared"
	"github.com/desertthunder/lbx/internal/tasks"
)

const maxBodyBytes = 1 << 20

// ResultsEngine serves results requests. [tasks.WatchlistEngine] implements it.
type ResultsEngine interface {
	Results(ctx context.Context, req tasks.Request) (*tasks.Result, error)
}

// UserFinder looks up a user without creating one.
type UserFinder interface {
	Lookup(ctx context.Context, username string) models.LookupResult
}

// ProviderLister reads a saved provider selection.
type ProviderLister interface {
	List(ctx context.Context, userID, region string) ([]string, error)
}

// FilmLister reads a saved film snapshot.
type FilmLister interface {
	List(ctx context.Context, userID, region string) ([]models.PersistedFilmRecord, error)
}

// APIOptions holds the collaborators of a [WatchlistAPI].
type APIOptions struct {
	Engine    ResultsEngine
	Catalog   services.Catalog
	Users     UserFinder
	Providers ProviderLister
	Films     FilmLister
	Logger    *log.Logger
}

// WatchlistAPI is the JSON API over the watchlist engine.
//
// Results requests run one at a time.
type WatchlistAPI struct {
	engine    ResultsEngine
	catalog   services.Catalog
	users     UserFinder
	providers ProviderLister
	films     FilmLister
	logger    *log.Logger

	mu sync.Mutex
}

var _ Handler = (*WatchlistAPI)(nil)

// ResultsBody is the payload of POST /results.
//
// An absent or null providers field keeps the saved selection; an array, even an empty one,
// replaces it.
type ResultsBody struct {
	Username  string   `json:"username"`
	Region    string   `json:"region"`
	Providers []string `json:"providers"`
	Refresh   bool     `json:"refresh"`
}

// ResultsResponse is the reply to POST /results.
type ResultsResponse struct {
	*tasks.Result
	Saved   bool   `json:"saved"`
	Warning string `json:"warning,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewWatchlistAPI creates a new WatchlistAPI with the provided collaborators.
func NewWatchlistAPI(opts APIOptions) *WatchlistAPI {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &WatchlistAPI{
		engine:    opts.Engine,
		catalog:   opts.Catalog,
		users:     opts.Users,
		providers: opts.Providers,
		films:     opts.Films,
		logger:    opts.Logger,
	}
}

var (
	routeStatus          = Route{Method: http.MethodGet, Path: "/{$}"}
	routeRegions         = Route{Method: http.MethodGet, Path: "/regions"}
	routeRegionProviders = Route{Method: http.MethodGet, Path: "/regions/{code}/providers"}
	routeUserProviders   = Route{Method: http.MethodGet, Path: "/users/{username}/providers"}
	routeUserFilms       = Route{Method: http.MethodGet, Path: "/users/{username}/films"}
	routeResults         = Route{Method: http.MethodPost, Path: "/results"}
)

// Routes returns the HTTP routes this handler serves.
func (a *WatchlistAPI) Routes() []Route {
	return []Route{routeStatus, routeRegions, routeRegionProviders, routeUserProviders, routeUserFilms, routeResults}
}

// ServeHTTP dispatches on the matched mux pattern.
func (a *WatchlistAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Pattern {
	case routeStatus.Pattern():
		writeJSON(w, http.StatusOK, map[string]string{"message": "lbx is running"})
	case routeRegions.Pattern():
		a.regions(w, r)
	case routeRegionProviders.Pattern():
		a.regionProviders(w, r)
	case routeUserProviders.Pattern():
		a.userProviders(w, r)
	case routeUserFilms.Pattern():
		a.userFilms(w, r)
	case routeResults.Pattern():
		a.results(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (a *WatchlistAPI) regions(w http.ResponseWriter, r *http.Request) {
	regions, err := a.catalog.AllRegions(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": regions})
}

func (a *WatchlistAPI) regionProviders(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(r.PathValue("code")))

	regions, err := a.catalog.AllRegions(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !slices.ContainsFunc(regions, func(reg models.Region) bool { return reg.Code == code }) {
		a.fail(w, r, fmt.Errorf("%w: %s", shared.ErrUnknownRegion, code))
		return
	}

	providers, err := a.catalog.ProvidersForRegion(r.Context(), code)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"region": code, "providers": providers})
}

// userProviders returns the saved selection. An unknown user has none.
func (a *WatchlistAPI) userProviders(w http.ResponseWriter, r *http.Request) {
	in, user, ok := a.lookup(w, r)
	if !ok {
		return
	}

	providers := []string{}
	if user != nil {
		saved, err := a.providers.List(r.Context(), user.ID, in.Region)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		providers = saved
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": in.Username, "region": in.Region, "providers": providers})
}

// userFilms filters the saved snapshot without scraping. It never triggers a refresh.
func (a *WatchlistAPI) userFilms(w http.ResponseWriter, r *http.Request) {
	in, user, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if user == nil {
		a.fail(w, r, fmt.Errorf("%w: no saved data for %s", shared.ErrNotFound, in.Username))
		return
	}

	selected, err := a.providers.List(r.Context(), user.ID, in.Region)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if q := r.URL.Query()["provider"]; len(q) > 0 {
		selected = q
	}

	records, err := a.films.List(r.Context(), user.ID, in.Region)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"username":  in.Username,
		"region":    in.Region,
		"providers": selected,
		"films":     tasks.FilterByProviders(models.Films(records), selected),
	})
}

func (a *WatchlistAPI) results(w http.ResponseWriter, r *http.Request) {
	var body ResultsBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		a.fail(w, r, fmt.Errorf("%w: malformed body: %v", shared.ErrInvalidInput, err))
		return
	}

	in, err := shared.ValidateRequest(body.Username, body.Region)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	result, err := a.engine.Results(r.Context(), tasks.Request{
		Username:  in.Username,
		Region:    in.Region,
		Providers: body.Providers,
		Refresh:   body.Refresh,
	})

	resp := ResultsResponse{Result: result, Saved: err == nil}
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrPersistence) && result != nil:
		a.logger.Warn("results not saved", "username", body.Username, "error", err)
		resp.Warning = "results could not be saved"
	default:
		a.fail(w, r, err)
		return
	}

	if result.Films == nil {
		result.Films = []models.EnrichedFilm{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// lookup validates the {username} path value and ?region= query and finds the user.
// A nil user with ok set means the user is unknown.
func (a *WatchlistAPI) lookup(w http.ResponseWriter, r *http.Request) (shared.RequestInput, *models.UserProfile, bool) {
	in, err := shared.ValidateRequest(r.PathValue("username"), r.URL.Query().Get("region"))
	if err != nil {
		a.fail(w, r, err)
		return in, nil, false
	}

	lookup := a.users.Lookup(r.Context(), in.Username)
	switch lookup.Outcome {
	case models.LookupNotFound:
		return in, nil, true
	case models.LookupFailed:
		a.fail(w, r, lookup.Err)
		return in, nil, false
	}
	return in, lookup.User, true
}

func (a *WatchlistAPI) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		a.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrUnknownRegion):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrCatalogUnavailable), errors.Is(err, shared.ErrCatalogRequest):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

var (
	_ UserFinder     = (*repositories.UserRepository)(nil)
	_ ProviderLister = (*repositories.ProviderRepository)(nil)
	_ FilmLister     = (*repositories.FilmRepository)(nil)
)
