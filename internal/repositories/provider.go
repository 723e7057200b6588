package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/shared"
)

// ProviderRepository persists the streaming services a user selected, per region.
type ProviderRepository struct {
	db *shared.DB
}

// NewProviderRepository creates a new [ProviderRepository] with the given database handle
func NewProviderRepository(db *shared.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// ProviderChanges reports the rows touched by [ProviderRepository.Replace].
type ProviderChanges struct {
	Added   []string
	Removed []string
}

// List returns the selected providers of a user in region, sorted by name.
func (r *ProviderRepository) List(ctx context.Context, userID, region string) ([]string, error) {
	return listProviders(ctx, r.db, r.db.DB, userID, region)
}

// Preferences returns every saved selection of a user, ordered by region then name.
func (r *ProviderRepository) Preferences(ctx context.Context, userID string) ([]models.ProviderPreference, error) {
	query := r.db.Rebind(`
		SELECT user_id, region_code, provider_name
		FROM provider_preferences
		WHERE user_id = ?
		ORDER BY region_code ASC, provider_name ASC
	`)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	prefs := []models.ProviderPreference{}
	for rows.Next() {
		var p models.ProviderPreference
		if err := rows.Scan(&p.UserID, &p.RegionCode, &p.ProviderName); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return prefs, nil
}

// Replace makes the stored selection for (userID, region) equal names.
//
// Only the set difference is written: removed names are deleted, new names inserted and unchanged
// names left alone. Both happen in one transaction.
func (r *ProviderRepository) Replace(ctx context.Context, userID, region string, names []string) (ProviderChanges, error) {
	var changes ProviderChanges

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if name != "" {
			wanted[name] = true
		}
	}

	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := listProviders(ctx, r.db, tx, userID, region)
		if err != nil {
			return err
		}

		have := make(map[string]bool, len(current))
		for _, name := range current {
			have[name] = true
			if !wanted[name] {
				changes.Removed = append(changes.Removed, name)
			}
		}
		for name := range wanted {
			if !have[name] {
				changes.Added = append(changes.Added, name)
			}
		}
		slices.Sort(changes.Added)

		del := r.db.Rebind(`DELETE FROM provider_preferences WHERE user_id = ? AND region_code = ? AND provider_name = ?`)
		for _, name := range changes.Removed {
			if _, err := tx.ExecContext(ctx, del, userID, region, name); err != nil {
				return fmt.Errorf("failed to delete provider %s: %w", name, err)
			}
		}

		ins := r.db.Rebind(`INSERT INTO provider_preferences (user_id, region_code, provider_name) VALUES (?, ?, ?)`)
		for _, name := range changes.Added {
			if _, err := tx.ExecContext(ctx, ins, userID, region, name); err != nil {
				return fmt.Errorf("failed to insert provider %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return ProviderChanges{}, fmt.Errorf("%w: %v", shared.ErrPersistence, err)
	}

	return changes, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listProviders(ctx context.Context, db *shared.DB, q queryer, userID, region string) ([]string, error) {
	query := db.Rebind(`
		SELECT provider_name
		FROM provider_preferences
		WHERE user_id = ? AND region_code = ?
		ORDER BY provider_name ASC
	`)

	rows, err := q.QueryContext(ctx, query, userID, region)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return names, nil
}
