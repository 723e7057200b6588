package services

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/shared"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const defaultTMDBBaseURL = "https://api.themoviedb.org/3"

// TMDBOptions configures a [TMDBClient].
type TMDBOptions struct {
	BaseURL           string
	Token             string
	Language          string
	RequestsPerSecond float64
	Timeout           time.Duration
	BreakerFailures   uint32
	HTTPClient        *http.Client // base transport, wrapped with the bearer token
	Logger            *log.Logger
}

// TMDBClient implements [Catalog] against the TMDB API.
type TMDBClient struct {
	http     *resty.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[*resty.Response]
	language string
	logger   *log.Logger

	genresMu sync.Mutex
	genres   map[int]string
}

var _ Catalog = (*TMDBClient)(nil)

type tmdbSearchResponse struct {
	Results []tmdbMovie `json:"results"`
}

type tmdbMovie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	VoteAverage float64 `json:"vote_average"`
	ReleaseDate string  `json:"release_date"`
	GenreIDs    []int   `json:"genre_ids"`
}

type tmdbWatchProvidersResponse struct {
	ID      int                         `json:"id"`
	Results map[string]tmdbRegionOffers `json:"results"`
}

type tmdbRegionOffers struct {
	Link     string         `json:"link"`
	Flatrate []tmdbProvider `json:"flatrate"`
}

type tmdbProvider struct {
	ProviderID        int            `json:"provider_id"`
	ProviderName      string         `json:"provider_name"`
	DisplayPriority   int            `json:"display_priority"`
	DisplayPriorities map[string]int `json:"display_priorities"`
}

type tmdbProviderListResponse struct {
	Results []tmdbProvider `json:"results"`
}

type tmdbRegionsResponse struct {
	Results []struct {
		ISO3166     string `json:"iso_3166_1"`
		EnglishName string `json:"english_name"`
	} `json:"results"`
}

type tmdbGenresResponse struct {
	Genres []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
}

// NewTMDBClient creates a [TMDBClient]. The token is sent as a bearer token on every request.
func NewTMDBClient(ctx context.Context, opts TMDBOptions) (*TMDBClient, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("%w: TMDB token is required (set catalog.token or TMDB_TOKEN)", shared.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultTMDBBaseURL
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: opts.Token,
		TokenType:   "Bearer",
	}))

	client := resty.NewWithClient(authed).
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	logger := opts.Logger
	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "tmdb",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &TMDBClient{
		http:     client,
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		breaker:  breaker,
		language: opts.Language,
		logger:   logger,
	}, nil
}

// Resolve searches for title and returns the first result.
func (c *TMDBClient) Resolve(ctx context.Context, title string, year int) (*models.Candidate, error) {
	params := map[string]string{
		"query":         title,
		"language":      c.language,
		"include_adult": "false",
	}
	if year > 0 {
		params["primary_release_year"] = strconv.Itoa(year)
	}

	var res tmdbSearchResponse
	if err := c.get(ctx, "/search/movie", params, &res); err != nil {
		return nil, err
	}
	if len(res.Results) == 0 {
		return nil, nil
	}

	movie := res.Results[0]
	candidate := &models.Candidate{
		ID:          movie.ID,
		Title:       movie.Title,
		Rating:      RoundRating(movie.VoteAverage),
		ReleaseYear: ParseYear(movie.ReleaseDate),
	}

	genres, err := c.genreNames(ctx)
	if err != nil {
		c.logger.Debug("genre list unavailable", "error", err)
	}
	for _, id := range movie.GenreIDs {
		if name, ok := genres[id]; ok {
			candidate.Genres = append(candidate.Genres, name)
		}
	}

	return candidate, nil
}

// ProvidersFor returns the flat-rate provider names of a film in region, in TMDB display order.
func (c *TMDBClient) ProvidersFor(ctx context.Context, id int, region string) ([]string, error) {
	var res tmdbWatchProvidersResponse
	if err := c.get(ctx, fmt.Sprintf("/movie/%d/watch/providers", id), nil, &res); err != nil {
		return nil, err
	}

	offers, ok := res.Results[strings.ToUpper(region)]
	if !ok {
		return []string{}, nil
	}

	flatrate := slices.Clone(offers.Flatrate)
	slices.SortStableFunc(flatrate, func(a, b tmdbProvider) int {
		return a.DisplayPriority - b.DisplayPriority
	})

	names := make([]string, 0, len(flatrate))
	for _, p := range flatrate {
		if p.ProviderName != "" && !slices.Contains(names, p.ProviderName) {
			names = append(names, p.ProviderName)
		}
	}
	return names, nil
}

// AllRegions lists the regions TMDB has availability data for, sorted by name.
func (c *TMDBClient) AllRegions(ctx context.Context) ([]models.Region, error) {
	var res tmdbRegionsResponse
	if err := c.get(ctx, "/watch/providers/regions", map[string]string{"language": c.language}, &res); err != nil {
		return nil, err
	}

	regions := make([]models.Region, 0, len(res.Results))
	for _, r := range res.Results {
		regions = append(regions, models.Region{Code: r.ISO3166, EnglishName: r.EnglishName})
	}
	slices.SortFunc(regions, func(a, b models.Region) int {
		return strings.Compare(a.EnglishName, b.EnglishName)
	})
	return regions, nil
}

// ProvidersForRegion lists providers whose display priorities include region, most prominent first.
func (c *TMDBClient) ProvidersForRegion(ctx context.Context, region string) ([]string, error) {
	region = strings.ToUpper(region)

	var res tmdbProviderListResponse
	params := map[string]string{"watch_region": region, "language": c.language}
	if err := c.get(ctx, "/watch/providers/movie", params, &res); err != nil {
		return nil, err
	}

	var available []tmdbProvider
	for _, p := range res.Results {
		if _, ok := p.DisplayPriorities[region]; ok {
			available = append(available, p)
		}
	}
	slices.SortStableFunc(available, func(a, b tmdbProvider) int {
		if d := a.DisplayPriorities[region] - b.DisplayPriorities[region]; d != 0 {
			return d
		}
		return strings.Compare(a.ProviderName, b.ProviderName)
	})

	names := make([]string, 0, len(available))
	for _, p := range available {
		if !slices.Contains(names, p.ProviderName) {
			names = append(names, p.ProviderName)
		}
	}
	return names, nil
}

// genreNames loads the genre map once. A failed load is retried on the next call.
func (c *TMDBClient) genreNames(ctx context.Context) (map[int]string, error) {
	c.genresMu.Lock()
	defer c.genresMu.Unlock()

	if c.genres != nil {
		return c.genres, nil
	}

	var res tmdbGenresResponse
	if err := c.get(ctx, "/genre/movie/list", map[string]string{"language": c.language}, &res); err != nil {
		return nil, err
	}

	genres := make(map[int]string, len(res.Genres))
	for _, g := range res.Genres {
		genres[g.ID] = g.Name
	}
	c.genres = genres
	return genres, nil
}

// get performs a rate-limited, breaker-guarded GET and decodes the JSON body into out.
func (c *TMDBClient) get(ctx context.Context, path string, params map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCatalogUnavailable, err)
	}

	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(out).
			Get(path)
		if err != nil {
			return nil, err
		}
		if code := resp.StatusCode(); code >= 500 || code == http.StatusTooManyRequests {
			return resp, fmt.Errorf("status %d", code)
		}
		return resp, nil
	})

	switch {
	case err != nil:
		return fmt.Errorf("%w: %s: %v", shared.ErrCatalogUnavailable, path, err)
	case resp.IsError():
		return fmt.Errorf("%w: %s returned %d", shared.ErrCatalogRequest, path, resp.StatusCode())
	}

	return nil
}

// RoundRating rounds a vote average to one decimal.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}

// ParseYear extracts the year of a TMDB "YYYY-MM-DD" date, or 0.
func ParseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
