package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/shared"
)

// FilmRepository owns the persisted (user, region) film snapshot.
type FilmRepository struct {
	db     *shared.DB
	logger *log.Logger

	// beforeCommit runs after every write of a reconciliation and before commit.
	beforeCommit func() error
}

// NewFilmRepository creates a new [FilmRepository] with the given database handle
func NewFilmRepository(db *shared.DB, logger *log.Logger) *FilmRepository {
	if logger == nil {
		logger = log.Default()
	}
	return &FilmRepository{db: db, logger: logger}
}

// ReconcileStats counts the writes a reconciliation performed.
type ReconcileStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// Writes is the total number of rows written.
func (s ReconcileStats) Writes() int {
	return s.Inserted + s.Updated + s.Deleted
}

// List returns the snapshot for (userID, region), highest rated first.
func (r *FilmRepository) List(ctx context.Context, userID, region string) ([]models.PersistedFilmRecord, error) {
	records, err := r.load(ctx, r.db.DB, userID, region)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPersistence, err)
	}
	return records, nil
}

// Exists reports whether any snapshot rows are stored for (userID, region).
func (r *FilmRepository) Exists(ctx context.Context, userID, region string) (bool, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM films WHERE user_id = ? AND region_code = ?`)

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, region).Scan(&count); err != nil {
		return false, fmt.Errorf("%w: failed to count films: %v", shared.ErrPersistence, err)
	}
	return count > 0, nil
}

// Reconcile makes the stored snapshot for (userID, region) equal films with the fewest writes.
//
// Records are matched by title. A matched record is rewritten only when its rating, release year or
// provider set changed; provider sets compare without regard to order. Titles missing from films are
// deleted, new titles inserted. All writes share one transaction and any failure rolls back all of them.
//
// When films holds the same title more than once, the first occurrence wins.
func (r *FilmRepository) Reconcile(ctx context.Context, userID, region string, films []models.EnrichedFilm) (ReconcileStats, error) {
	fresh := make([]models.EnrichedFilm, 0, len(films))
	seen := make(map[string]bool, len(films))
	for _, f := range films {
		if seen[f.Title] {
			r.logger.Debug("duplicate title in reconciliation input", "title", f.Title, "release_year", f.ReleaseYear)
			continue
		}
		seen[f.Title] = true
		fresh = append(fresh, f)
	}

	var stats ReconcileStats
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stats = ReconcileStats{}

		current, err := r.load(ctx, tx, userID, region)
		if err != nil {
			return err
		}

		persisted := make(map[string]models.PersistedFilmRecord, len(current))
		for _, rec := range current {
			persisted[rec.Title] = rec
		}

		for _, rec := range current {
			if seen[rec.Title] {
				continue
			}
			if err := r.delete(ctx, tx, userID, region, rec.Title); err != nil {
				return err
			}
			stats.Deleted++
		}

		for _, film := range fresh {
			rec, ok := persisted[film.Title]
			switch {
			case !ok:
				if err := r.insert(ctx, tx, userID, region, film); err != nil {
					return err
				}
				stats.Inserted++
			case changed(rec, film):
				if err := r.update(ctx, tx, userID, region, film); err != nil {
					return err
				}
				stats.Updated++
			default:
				stats.Unchanged++
			}
		}

		if r.beforeCommit != nil {
			return r.beforeCommit()
		}
		return nil
	})
	if err != nil {
		return ReconcileStats{}, fmt.Errorf("%w: reconcile %s/%s: %v", shared.ErrPersistence, userID, region, err)
	}

	r.logger.Info("reconciled snapshot",
		"user_id", userID, "region", region,
		"inserted", stats.Inserted, "updated", stats.Updated, "deleted", stats.Deleted, "unchanged", stats.Unchanged)

	return stats, nil
}

func changed(rec models.PersistedFilmRecord, film models.EnrichedFilm) bool {
	if rec.Rating != film.Rating || rec.ReleaseYear != film.ReleaseYear {
		return true
	}
	return !sameSet(rec.Providers, film.Providers)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

func (r *FilmRepository) insert(ctx context.Context, tx *sql.Tx, userID, region string, film models.EnrichedFilm) error {
	providers, genres, err := encodeFilmLists(film)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		INSERT INTO films (user_id, region_code, title, external_id, rating, release_year, providers, genres)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = tx.ExecContext(ctx, query, userID, region, film.Title, film.ExternalID, film.Rating, nullYear(film.ReleaseYear), providers, genres)
	if err != nil {
		return fmt.Errorf("failed to insert film %q: %w", film.Title, err)
	}
	return nil
}

func (r *FilmRepository) update(ctx context.Context, tx *sql.Tx, userID, region string, film models.EnrichedFilm) error {
	providers, genres, err := encodeFilmLists(film)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		UPDATE films
		SET external_id = ?, rating = ?, release_year = ?, providers = ?, genres = ?
		WHERE user_id = ? AND region_code = ? AND title = ?
	`)

	_, err = tx.ExecContext(ctx, query, film.ExternalID, film.Rating, nullYear(film.ReleaseYear), providers, genres, userID, region, film.Title)
	if err != nil {
		return fmt.Errorf("failed to update film %q: %w", film.Title, err)
	}
	return nil
}

func (r *FilmRepository) delete(ctx context.Context, tx *sql.Tx, userID, region, title string) error {
	query := r.db.Rebind(`DELETE FROM films WHERE user_id = ? AND region_code = ? AND title = ?`)
	if _, err := tx.ExecContext(ctx, query, userID, region, title); err != nil {
		return fmt.Errorf("failed to delete film %q: %w", title, err)
	}
	return nil
}

func (r *FilmRepository) load(ctx context.Context, q queryer, userID, region string) ([]models.PersistedFilmRecord, error) {
	query := r.db.Rebind(`
		SELECT user_id, region_code, title, external_id, rating, release_year, providers, genres
		FROM films
		WHERE user_id = ? AND region_code = ?
		ORDER BY rating DESC, title ASC
	`)

	rows, err := q.QueryContext(ctx, query, userID, region)
	if err != nil {
		return nil, fmt.Errorf("failed to query films: %w", err)
	}
	defer rows.Close()

	records := []models.PersistedFilmRecord{}
	for rows.Next() {
		var (
			rec       models.PersistedFilmRecord
			year      sql.NullInt64
			providers string
			genres    string
		)

		if err := rows.Scan(&rec.UserID, &rec.RegionCode, &rec.Title, &rec.ExternalID, &rec.Rating, &year, &providers, &genres); err != nil {
			return nil, fmt.Errorf("failed to scan film: %w", err)
		}

		if year.Valid {
			rec.ReleaseYear = int(year.Int64)
		}
		if rec.Providers, err = decodeList(providers); err != nil {
			return nil, err
		}
		if rec.Genres, err = decodeList(genres); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

func encodeFilmLists(film models.EnrichedFilm) (string, string, error) {
	providers, err := encodeList(film.Providers)
	if err != nil {
		return "", "", err
	}
	genres, err := encodeList(film.Genres)
	if err != nil {
		return "", "", err
	}
	return providers, genres, nil
}
