package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/repositories"
	"github.com/desertthunder/lbx/internal/shared"
	tu "github.com/desertthunder/lbx/internal/testing"
	"github.com/google/go-cmp/cmp"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db        *shared.DB
	catalog   *tu.MockCatalog
	acquirer  *tu.MockAcquirer
	users     *repositories.UserRepository
	providers *repositories.ProviderRepository
	films     *repositories.FilmRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(shared.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	logger := log.New(io.Discard)
	return &fixture{
		db: db,
		catalog: &tu.MockCatalog{
			Regions: []models.Region{{Code: "FR", EnglishName: "France"}, {Code: "US", EnglishName: "United States"}},
			Candidates: map[string]*models.Candidate{
				"Dune":         {ID: 1, Title: "Dune", Rating: 7.8, ReleaseYear: 2021, Genres: []string{"Science Fiction"}},
				"Perfect Days": {ID: 2, Title: "Perfect Days", Rating: 7.9, ReleaseYear: 2023},
				"Solaris":      {ID: 3, Title: "Solaris", Rating: 7.7, ReleaseYear: 1972},
			},
			Providers: map[int][]string{
				1: {"Max", "Netflix"},
				2: {"MUBI"},
				3: {"Netflix"},
			},
		},
		acquirer: &tu.MockAcquirer{Entries: []models.WatchlistEntry{
			{Title: "Dune", ReleaseYear: 2021},
			{Title: "Perfect Days"},
			{Title: "Solaris", ReleaseYear: 1972},
		}},
		users:     repositories.NewUserRepository(db),
		providers: repositories.NewProviderRepository(db),
		films:     repositories.NewFilmRepository(db, logger),
	}
}

func (f *fixture) engine(films FilmStore) *WatchlistEngine {
	if films == nil {
		films = f.films
	}
	return NewWatchlistEngine(EngineOptions{
		Acquirer:  f.acquirer,
		Catalog:   f.catalog,
		Users:     f.users,
		Providers: f.providers,
		Films:     films,
		Logger:    log.New(io.Discard),
		Now:       func() time.Time { return testNow },
	})
}

// setResearched backdates the user's last research.
func (f *fixture) setResearched(t *testing.T, userID string, at time.Time) {
	t.Helper()
	if _, err := f.db.Exec(`UPDATE users SET last_research_at = ? WHERE id = ?`, at, userID); err != nil {
		t.Fatalf("failed to backdate research: %v", err)
	}
}

func titles(films []models.EnrichedFilm) []string {
	out := make([]string, 0, len(films))
	for _, f := range films {
		out = append(out, f.Title)
	}
	return out
}

type failingFilms struct {
	FilmStore
}

func (f failingFilms) Reconcile(ctx context.Context, userID, region string, films []models.EnrichedFilm) (repositories.ReconcileStats, error) {
	return repositories.ReconcileStats{}, fmt.Errorf("%w: disk full", shared.ErrPersistence)
}

func TestEnrich(t *testing.T) {
	ctx := context.Background()

	t.Run("Drops Unmatched And Unstreamable Entries", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Providers[3] = nil
		entries := append(f.acquirer.Entries, models.WatchlistEntry{Title: "Obscure Short"})

		films, err := f.engine(nil).Enrich(ctx, entries, "FR")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []models.EnrichedFilm{
			{Title: "Perfect Days", ReleaseYear: 2023, ExternalID: 2, Rating: 7.9, Providers: []string{"MUBI"}},
			{Title: "Dune", ReleaseYear: 2021, ExternalID: 1, Rating: 7.8, Genres: []string{"Science Fiction"}, Providers: []string{"Max", "Netflix"}},
		}
		if diff := cmp.Diff(want, films); diff != "" {
			t.Errorf("films mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Passes Year As A Hint", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.engine(nil).Enrich(ctx, f.acquirer.Entries, "FR"); err != nil {
			t.Fatal(err)
		}

		want := []tu.ResolveCall{{Title: "Dune", Year: 2021}, {Title: "Perfect Days"}, {Title: "Solaris", Year: 1972}}
		if diff := cmp.Diff(want, f.catalog.ResolveCalls()); diff != "" {
			t.Errorf("resolve calls mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Stable Order For Equal Ratings", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Candidates["Perfect Days"].Rating = 7.8
		f.catalog.Candidates["Solaris"].Rating = 7.8

		films, err := f.engine(nil).Enrich(ctx, f.acquirer.Entries, "FR")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"Dune", "Perfect Days", "Solaris"}, titles(films)); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Outage Aborts", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.ResolveErrs = map[string]error{"Perfect Days": fmt.Errorf("%w: breaker open", shared.ErrCatalogUnavailable)}

		films, err := f.engine(nil).Enrich(ctx, f.acquirer.Entries, "FR")
		if !errors.Is(err, shared.ErrCatalogUnavailable) {
			t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
		}
		if films != nil {
			t.Errorf("expected no films on outage, got %v", films)
		}
		if n := len(f.catalog.ResolveCalls()); n != 2 {
			t.Errorf("expected enrichment to stop after 2 lookups, got %d", n)
		}
	})

	t.Run("Single Request Failure Drops Entry", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.ResolveErrs = map[string]error{"Dune": fmt.Errorf("%w: 404", shared.ErrCatalogRequest)}

		films, err := f.engine(nil).Enrich(ctx, f.acquirer.Entries, "FR")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"Perfect Days", "Solaris"}, titles(films)); diff != "" {
			t.Errorf("films mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Every Request Failing Is An Outage", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.ProvidersErr = fmt.Errorf("%w: 401", shared.ErrCatalogRequest)

		_, err := f.engine(nil).Enrich(ctx, f.acquirer.Entries, "FR")
		if !errors.Is(err, shared.ErrCatalogUnavailable) {
			t.Errorf("expected ErrCatalogUnavailable, got %v", err)
		}
	})

	t.Run("Empty Watchlist", func(t *testing.T) {
		f := newFixture(t)
		films, err := f.engine(nil).Enrich(ctx, nil, "FR")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if films == nil || len(films) != 0 {
			t.Errorf("expected empty non-nil list, got %#v", films)
		}
	})
}

func TestFilterByProviders(t *testing.T) {
	films := []models.EnrichedFilm{
		{Title: "A", Rating: 8, Providers: []string{"Netflix", "Max"}},
		{Title: "B", Rating: 7, Providers: []string{"Hulu"}},
		{Title: "C", Rating: 6, Providers: []string{"Max", "Disney+", "Netflix"}},
		{Title: "D", Rating: 5},
	}

	tc := []struct {
		name     string
		selected []string
		want     []models.EnrichedFilm
	}{
		{
			name:     "intersection keeps film order",
			selected: []string{"Netflix", "Disney+"},
			want: []models.EnrichedFilm{
				{Title: "A", Rating: 8, Providers: []string{"Netflix"}},
				{Title: "C", Rating: 6, Providers: []string{"Disney+", "Netflix"}},
			},
		},
		{name: "no selection", selected: nil, want: []models.EnrichedFilm{}},
		{name: "unknown provider", selected: []string{"Canal+"}, want: []models.EnrichedFilm{}},
		{
			name:     "everything",
			selected: []string{"Netflix", "Max", "Hulu", "Disney+"},
			want:     films[:3],
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterByProviders(films, tt.selected)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FilterByProviders mismatch (-want +got):\n%s", diff)
			}

			allowed := map[string]bool{}
			for _, s := range tt.selected {
				allowed[s] = true
			}
			for _, film := range got {
				if len(film.Providers) == 0 {
					t.Errorf("%s kept with no providers", film.Title)
				}
				for _, p := range film.Providers {
					if !allowed[p] {
						t.Errorf("%s kept unselected provider %s", film.Title, p)
					}
				}
			}
		})
	}

	t.Run("input is not modified", func(t *testing.T) {
		FilterByProviders(films, []string{"Max"})
		if diff := cmp.Diff([]string{"Netflix", "Max"}, films[0].Providers); diff != "" {
			t.Errorf("input providers changed (-want +got):\n%s", diff)
		}
	})
}

func TestShortenProviders(t *testing.T) {
	tc := []struct {
		in   []string
		want []string
	}{
		{in: []string{"Netflix", "Netflix Standard with Ads"}, want: []string{"Netflix"}},
		{in: []string{"Canal+", "Canal+ Séries"}, want: []string{"Canal+"}},
		{in: []string{"Canal", "Canal+ Cinéma"}, want: []string{"Canal"}},
		{in: []string{"Amazon Prime Video", "Max"}, want: []string{"Amazon", "Max"}},
		{in: []string{}, want: []string{}},
	}

	for _, tt := range tc {
		got := ShortenProviders([]models.EnrichedFilm{{Title: "X", Providers: tt.in}})
		if diff := cmp.Diff(tt.want, got[0].Providers); diff != "" {
			t.Errorf("ShortenProviders(%v) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestNeedsResearch(t *testing.T) {
	ago := func(d time.Duration) *models.UserProfile {
		at := testNow.Add(-d)
		return &models.UserProfile{ID: "u", LastResearchAt: &at}
	}

	tc := []struct {
		name        string
		user        *models.UserProfile
		hasSnapshot bool
		refresh     bool
		want        bool
	}{
		{name: "eight days old", user: ago(8 * 24 * time.Hour), hasSnapshot: true, want: true},
		{name: "one day old", user: ago(24 * time.Hour), hasSnapshot: true, want: false},
		{name: "exactly the window", user: ago(DefaultFreshnessWindow), hasSnapshot: true, want: false},
		{name: "forced refresh", user: ago(time.Hour), hasSnapshot: true, refresh: true, want: true},
		{name: "no snapshot", user: ago(time.Hour), hasSnapshot: false, want: true},
		{name: "never researched", user: &models.UserProfile{ID: "u"}, hasSnapshot: true, want: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsResearch(tt.user, tt.hasSnapshot, tt.refresh, testNow, DefaultFreshnessWindow); got != tt.want {
				t.Errorf("NeedsResearch() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResults(t *testing.T) {
	ctx := context.Background()

	t.Run("First Request Scrapes And Saves", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.engine(nil).Results(ctx, Request{Username: "dave", Region: "fr", Providers: []string{"Netflix"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !res.Refreshed || f.acquirer.Calls() != 1 {
			t.Errorf("expected a scrape, refreshed=%v calls=%d", res.Refreshed, f.acquirer.Calls())
		}
		if diff := cmp.Diff([]string{"Dune", "Solaris"}, titles(res.Films)); diff != "" {
			t.Errorf("films mismatch (-want +got):\n%s", diff)
		}
		if res.Stats.Inserted != 3 {
			t.Errorf("expected the unfiltered snapshot of 3 films saved, got %+v", res.Stats)
		}
		if res.User.LastResearchAt == nil {
			t.Error("expected research time recorded")
		}

		saved, _ := f.providers.List(ctx, res.User.ID, "FR")
		if diff := cmp.Diff([]string{"Netflix"}, saved); diff != "" {
			t.Errorf("saved providers mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Fresh Snapshot Is Refiltered Without Scraping", func(t *testing.T) {
		f := newFixture(t)
		engine := f.engine(nil)

		first, err := engine.Results(ctx, Request{Username: "dave", Region: "FR", Providers: []string{"Netflix"}})
		if err != nil {
			t.Fatal(err)
		}
		f.setResearched(t, first.User.ID, testNow.Add(-24*time.Hour))

		res, err := engine.Results(ctx, Request{Username: "dave", Region: "FR", Providers: []string{"MUBI"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if res.Refreshed || f.acquirer.Calls() != 1 {
			t.Errorf("expected cached snapshot, refreshed=%v calls=%d", res.Refreshed, f.acquirer.Calls())
		}
		if diff := cmp.Diff([]string{"Perfect Days"}, titles(res.Films)); diff != "" {
			t.Errorf("films mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Stale Snapshot Is Scraped Again", func(t *testing.T) {
		f := newFixture(t)
		engine := f.engine(nil)

		first, err := engine.Results(ctx, Request{Username: "dave", Region: "FR", Providers: []string{"Netflix"}})
		if err != nil {
			t.Fatal(err)
		}
		f.setResearched(t, first.User.ID, testNow.Add(-8*24*time.Hour))
		f.acquirer.Entries = f.acquirer.Entries[:1]

		res, err := engine.Results(ctx, Request{Username: "dave", Region: "FR"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !res.Refreshed || f.acquirer.Calls() != 2 {
			t.Errorf("expected a second scrape, refreshed=%v calls=%d", res.Refreshed, f.acquirer.Calls())
		}
		if res.Stats.Deleted != 2 || res.Stats.Unchanged != 1 {
			t.Errorf("expected 2 deletes and 1 unchanged, got %+v", res.Stats)
		}
		if diff := cmp.Diff([]string{"Netflix"}, res.Providers); diff != "" {
			t.Errorf("expected saved selection reused (-want +got):\n%s", diff)
		}
	})

	t.Run("Invalid Input Fails Before Any Work", func(t *testing.T) {
		f := newFixture(t)

		for _, req := range []Request{{Username: "dave"}, {Region: "FR"}, {Username: "da/ve", Region: "FR"}} {
			_, err := f.engine(nil).Results(ctx, req)
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("%+v: expected ErrInvalidInput, got %v", req, err)
			}
		}
		if f.acquirer.Calls() != 0 || len(f.catalog.ResolveCalls()) != 0 {
			t.Error("expected no scrape or catalog work")
		}
		if res := f.users.Lookup(ctx, "dave"); res.Outcome != models.LookupNotFound {
			t.Errorf("expected no user created, got %s", res.Outcome)
		}
	})

	t.Run("Unknown Region", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine(nil).Results(ctx, Request{Username: "dave", Region: "DE"})
		if !errors.Is(err, shared.ErrUnknownRegion) {
			t.Errorf("expected ErrUnknownRegion, got %v", err)
		}
	})

	t.Run("Catalog Outage Is Not An Empty Result", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.ProvidersErr = fmt.Errorf("%w: connection refused", shared.ErrCatalogUnavailable)

		res, err := f.engine(nil).Results(ctx, Request{Username: "dave", Region: "FR", Providers: []string{"Netflix"}})
		if !errors.Is(err, shared.ErrCatalogUnavailable) {
			t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
		}
		if res != nil {
			t.Errorf("expected no result, got %+v", res)
		}
	})

	t.Run("Empty Scrape Keeps Snapshot", func(t *testing.T) {
		f := newFixture(t)
		engine := f.engine(nil)

		if _, err := engine.Results(ctx, Request{Username: "dave", Region: "FR", Providers: []string{"Netflix"}}); err != nil {
			t.Fatal(err)
		}
		f.acquirer.Entries = nil

		res, err := engine.Results(ctx, Request{Username: "dave", Region: "FR", Refresh: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Refreshed {
			t.Error("empty scrape should not count as a refresh")
		}
		if diff := cmp.Diff([]string{"Dune", "Solaris"}, titles(res.Films)); diff != "" {
			t.Errorf("expected saved films, mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Persistence Failure Still Returns Films", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.engine(failingFilms{f.films}).Results(ctx, Request{Username: "dave", Region: "FR", Providers: []string{"MUBI"}})
		if !errors.Is(err, shared.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if res == nil || res.PersistErr == nil {
			t.Fatalf("expected result carrying the persistence error, got %+v", res)
		}
		if diff := cmp.Diff([]string{"Perfect Days"}, titles(res.Films)); diff != "" {
			t.Errorf("films mismatch (-want +got):\n%s", diff)
		}
		if res.User.LastResearchAt != nil {
			t.Error("research time must not be recorded when the save failed")
		}
	})

	t.Run("Reports Progress", func(t *testing.T) {
		f := newFixture(t)
		progress := make(chan ProgressUpdate, 32)

		if _, err := f.engine(nil).Results(ctx, Request{Username: "dave", Region: "FR", Providers: []string{"Netflix"}, Progress: progress}); err != nil {
			t.Fatal(err)
		}
		close(progress)

		phases := map[Phase]int{}
		for u := range progress {
			phases[u.Phase]++
		}
		for _, p := range []Phase{Lookup, Acquire, Enrich, Reconcile, Filter} {
			if phases[p] == 0 {
				t.Errorf("expected %s updates", p)
			}
		}
		if phases[Enrich] != 3 {
			t.Errorf("expected one enrich update per entry, got %d", phases[Enrich])
		}
	})

	t.Run("Shortened Providers", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.Providers[3] = []string{"Netflix Standard with Ads", "Netflix"}
		engine := f.engine(nil)
		engine.shorten = true

		res, err := engine.Results(ctx, Request{Username: "dave", Region: "FR", Providers: []string{"Netflix", "Netflix Standard with Ads"}})
		if err != nil {
			t.Fatal(err)
		}
		for _, film := range res.Films {
			if diff := cmp.Diff([]string{"Netflix"}, film.Providers); diff != "" {
				t.Errorf("%s providers mismatch (-want +got):\n%s", film.Title, diff)
			}
		}
	})
}
