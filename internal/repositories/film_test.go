package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/shared"
	"github.com/google/go-cmp/cmp"
)

func film(title string, rating float64, year int, providers ...string) models.EnrichedFilm {
	return models.EnrichedFilm{
		Title:       title,
		ReleaseYear: year,
		ExternalID:  len(title) * 100,
		Rating:      rating,
		Genres:      []string{"Drama"},
		Providers:   providers,
	}
}

func snapshot(t *testing.T, repo *FilmRepository, userID, region string) map[string]models.EnrichedFilm {
	t.Helper()
	records, err := repo.List(context.Background(), userID, region)
	if err != nil {
		t.Fatalf("failed to list films: %v", err)
	}
	out := make(map[string]models.EnrichedFilm, len(records))
	for _, rec := range records {
		out[rec.Title] = rec.Film()
	}
	return out
}

func TestFilmRepositoryReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("Update Delete Insert", func(t *testing.T) {
		db := setupTestDB(t)
		user := createUser(t, db, "dave")
		repo := newFilmRepo(db)

		initial := []models.EnrichedFilm{
			film("A", 7.5, 2001, "Netflix"),
			film("B", 6.0, 2002, "Hulu"),
		}
		if _, err := repo.Reconcile(ctx, user.ID, "US", initial); err != nil {
			t.Fatalf("failed to seed snapshot: %v", err)
		}

		fresh := []models.EnrichedFilm{
			film("A", 7.5, 2001, "Netflix", "Disney+"),
			film("C", 8.1, 2003, "Hulu"),
		}
		stats, err := repo.Reconcile(ctx, user.ID, "US", fresh)
		if err != nil {
			t.Fatalf("failed to reconcile: %v", err)
		}

		want := ReconcileStats{Inserted: 1, Updated: 1, Deleted: 1}
		if diff := cmp.Diff(want, stats); diff != "" {
			t.Errorf("stats mismatch (-want +got):\n%s", diff)
		}

		got := snapshot(t, repo, user.ID, "US")
		wantSnap := map[string]models.EnrichedFilm{"A": fresh[0], "C": fresh[1]}
		if diff := cmp.Diff(wantSnap, got); diff != "" {
			t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Provider Order Is Not A Change", func(t *testing.T) {
		db := setupTestDB(t)
		user := createUser(t, db, "dave")
		repo := newFilmRepo(db)

		if _, err := repo.Reconcile(ctx, user.ID, "US", []models.EnrichedFilm{film("A", 7, 2001, "Netflix", "Hulu")}); err != nil {
			t.Fatal(err)
		}

		stats, err := repo.Reconcile(ctx, user.ID, "US", []models.EnrichedFilm{film("A", 7, 2001, "Hulu", "Netflix")})
		if err != nil {
			t.Fatal(err)
		}
		if stats.Writes() != 0 || stats.Unchanged != 1 {
			t.Errorf("expected no writes, got %+v", stats)
		}
	})

	t.Run("Convergence And Minimal Writes", func(t *testing.T) {
		tc := []struct {
			name      string
			persisted []models.EnrichedFilm
			fresh     []models.EnrichedFilm
		}{
			{
				name:  "empty to full",
				fresh: []models.EnrichedFilm{film("A", 7, 2000, "Netflix"), film("B", 6, 0, "Max")},
			},
			{
				name:      "full to empty",
				persisted: []models.EnrichedFilm{film("A", 7, 2000, "Netflix"), film("B", 6, 0, "Max")},
			},
			{
				name:      "identical",
				persisted: []models.EnrichedFilm{film("A", 7, 2000, "Netflix")},
				fresh:     []models.EnrichedFilm{film("A", 7, 2000, "Netflix")},
			},
			{
				name:      "rating and year changes",
				persisted: []models.EnrichedFilm{film("A", 7, 2000, "Netflix"), film("B", 6, 2010, "Max"), film("C", 5, 2020, "Hulu")},
				fresh:     []models.EnrichedFilm{film("A", 7.1, 2000, "Netflix"), film("B", 6, 2011, "Max"), film("C", 5, 2020, "Hulu"), film("D", 9, 1999, "Hulu")},
			},
			{
				name:      "disjoint",
				persisted: []models.EnrichedFilm{film("A", 7, 2000, "Netflix"), film("B", 6, 2010, "Max")},
				fresh:     []models.EnrichedFilm{film("C", 5, 2020, "Hulu"), film("D", 9, 1999, "Hulu")},
			},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				db := setupTestDB(t)
				user := createUser(t, db, "dave")
				repo := newFilmRepo(db)

				if _, err := repo.Reconcile(ctx, user.ID, "FR", tt.persisted); err != nil {
					t.Fatalf("failed to seed: %v", err)
				}

				before := snapshot(t, repo, user.ID, "FR")
				freshByTitle := make(map[string]models.EnrichedFilm, len(tt.fresh))
				for _, f := range tt.fresh {
					freshByTitle[f.Title] = f
				}

				var inserts, deletes, updates int
				for title, f := range freshByTitle {
					p, ok := before[title]
					switch {
					case !ok:
						inserts++
					case p.Rating != f.Rating || p.ReleaseYear != f.ReleaseYear || !sameSet(p.Providers, f.Providers):
						updates++
					}
				}
				for title := range before {
					if _, ok := freshByTitle[title]; !ok {
						deletes++
					}
				}

				stats, err := repo.Reconcile(ctx, user.ID, "FR", tt.fresh)
				if err != nil {
					t.Fatalf("failed to reconcile: %v", err)
				}

				if stats.Writes() != inserts+deletes+updates {
					t.Errorf("expected %d writes, got %+v", inserts+deletes+updates, stats)
				}
				if stats.Inserted != inserts || stats.Deleted != deletes || stats.Updated != updates {
					t.Errorf("expected %d/%d/%d, got %+v", inserts, updates, deletes, stats)
				}

				if diff := cmp.Diff(freshByTitle, snapshot(t, repo, user.ID, "FR")); diff != "" {
					t.Errorf("snapshot did not converge (-want +got):\n%s", diff)
				}
			})
		}
	})

	t.Run("Failure Before Commit Rolls Back", func(t *testing.T) {
		db := setupTestDB(t)
		user := createUser(t, db, "dave")
		repo := newFilmRepo(db)

		if _, err := repo.Reconcile(ctx, user.ID, "US", []models.EnrichedFilm{film("A", 7, 2001, "Netflix"), film("B", 6, 2002, "Hulu")}); err != nil {
			t.Fatal(err)
		}
		before := snapshot(t, repo, user.ID, "US")

		repo.beforeCommit = func() error { return fmt.Errorf("simulated crash") }
		_, err := repo.Reconcile(ctx, user.ID, "US", []models.EnrichedFilm{film("A", 9, 2001, "Max"), film("C", 8, 2003, "Hulu")})
		if !errors.Is(err, shared.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}

		repo.beforeCommit = nil
		if diff := cmp.Diff(before, snapshot(t, repo, user.ID, "US")); diff != "" {
			t.Errorf("snapshot changed after rollback (-want +got):\n%s", diff)
		}
	})

	t.Run("Snapshots Are Scoped To User And Region", func(t *testing.T) {
		db := setupTestDB(t)
		dave := createUser(t, db, "dave")
		erin := createUser(t, db, "erin")
		repo := newFilmRepo(db)

		if _, err := repo.Reconcile(ctx, dave.ID, "US", []models.EnrichedFilm{film("A", 7, 2001, "Netflix")}); err != nil {
			t.Fatal(err)
		}
		if _, err := repo.Reconcile(ctx, dave.ID, "FR", []models.EnrichedFilm{film("B", 7, 2001, "Canal+")}); err != nil {
			t.Fatal(err)
		}
		if _, err := repo.Reconcile(ctx, erin.ID, "US", nil); err != nil {
			t.Fatal(err)
		}

		if got := snapshot(t, repo, dave.ID, "US"); len(got) != 1 {
			t.Errorf("expected dave's US snapshot untouched, got %v", got)
		}
		ok, err := repo.Exists(ctx, dave.ID, "FR")
		if err != nil || !ok {
			t.Errorf("expected FR snapshot to exist, got %v %v", ok, err)
		}
		ok, err = repo.Exists(ctx, erin.ID, "US")
		if err != nil || ok {
			t.Errorf("expected no snapshot for erin, got %v %v", ok, err)
		}
	})

	t.Run("Duplicate Titles Keep First", func(t *testing.T) {
		db := setupTestDB(t)
		user := createUser(t, db, "dave")
		repo := newFilmRepo(db)

		stats, err := repo.Reconcile(ctx, user.ID, "US", []models.EnrichedFilm{
			film("Solaris", 8.0, 1972, "Max"),
			film("Solaris", 6.2, 2002, "Hulu"),
		})
		if err != nil {
			t.Fatal(err)
		}
		if stats.Inserted != 1 {
			t.Errorf("expected one insert, got %+v", stats)
		}
		if got := snapshot(t, repo, user.ID, "US")["Solaris"]; got.ReleaseYear != 1972 {
			t.Errorf("expected the 1972 film to win, got %+v", got)
		}
	})

	t.Run("List Orders By Rating", func(t *testing.T) {
		db := setupTestDB(t)
		user := createUser(t, db, "dave")
		repo := newFilmRepo(db)

		if _, err := repo.Reconcile(ctx, user.ID, "US", []models.EnrichedFilm{
			film("Low", 5, 2000, "Netflix"),
			film("High", 9, 2000, "Netflix"),
			film("Mid", 7, 0, "Netflix"),
		}); err != nil {
			t.Fatal(err)
		}

		records, err := repo.List(ctx, user.ID, "US")
		if err != nil {
			t.Fatal(err)
		}
		var titles []string
		for _, r := range records {
			titles = append(titles, r.Title)
		}
		if diff := cmp.Diff([]string{"High", "Mid", "Low"}, titles); diff != "" {
			t.Errorf("order mismatch (-want +got):\n%s", diff)
		}
		if records[1].ReleaseYear != 0 {
			t.Errorf("expected NULL year to round-trip as 0, got %d", records[1].ReleaseYear)
		}
	})
}
