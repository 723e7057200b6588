package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/shared"
)

// UserRepository persists [models.UserProfile] rows keyed by Letterboxd username.
type UserRepository struct {
	db  *shared.DB
	now func() time.Time
}

// NewUserRepository creates a new [UserRepository] with the given database handle
func NewUserRepository(db *shared.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// Lookup finds a user by username without creating one.
func (r *UserRepository) Lookup(ctx context.Context, username string) models.LookupResult {
	user, err := r.getBy(ctx, "username", username)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return models.LookupResult{Outcome: models.LookupNotFound}
	case err != nil:
		return models.LookupResult{Outcome: models.LookupFailed, Err: err}
	}
	return models.LookupResult{Outcome: models.LookupFound, User: user}
}

// Resolve finds a user by username, creating the profile on first lookup.
//
// Creation is idempotent: concurrent callers racing on the same username all end up with the same row.
func (r *UserRepository) Resolve(ctx context.Context, username string) models.LookupResult {
	query := r.db.Rebind(`
		INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)
		ON CONFLICT (username) DO NOTHING
	`)

	result, err := r.db.ExecContext(ctx, query, shared.GenerateID(), username, r.now().UTC())
	if err != nil {
		return models.LookupResult{
			Outcome: models.LookupFailed,
			Err:     fmt.Errorf("%w: failed to insert user: %v", shared.ErrPersistence, err),
		}
	}

	outcome := models.LookupFound
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		outcome = models.LookupCreated
	}

	user, err := r.getBy(ctx, "username", username)
	if err != nil {
		return models.LookupResult{Outcome: models.LookupFailed, Err: err}
	}
	return models.LookupResult{Outcome: outcome, User: user}
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, id string) (*models.UserProfile, error) {
	return r.getBy(ctx, "id", id)
}

// TouchResearch records a completed full re-scrape for the user.
func (r *UserRepository) TouchResearch(ctx context.Context, id string) (time.Time, error) {
	now := r.now().UTC()

	query := r.db.Rebind(`UPDATE users SET last_research_at = ? WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: failed to update research time: %v", shared.ErrPersistence, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return time.Time{}, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}

	return now, nil
}

// getBy loads one user where column equals value. column is never user input.
func (r *UserRepository) getBy(ctx context.Context, column, value string) (*models.UserProfile, error) {
	query := r.db.Rebind(fmt.Sprintf(`
		SELECT id, username, created_at, last_research_at
		FROM users
		WHERE %s = ?
	`, column))

	var (
		user       models.UserProfile
		researched sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, value).Scan(&user.ID, &user.Username, &user.CreatedAt, &researched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query user: %v", shared.ErrPersistence, err)
	}

	if researched.Valid {
		t := researched.Time
		user.LastResearchAt = &t
	}

	return &user, nil
}
