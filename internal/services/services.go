// package services defines the Catalog interface for the external metadata and availability service
//
// TMDB
package services

import (
	"context"

	"github.com/desertthunder/lbx/internal/models"
)

// Catalog resolves films and their streaming availability.
type Catalog interface {
	// Resolve returns the best match for title. year narrows the search when non-zero.
	// A nil candidate with a nil error means the catalog has no such film.
	Resolve(ctx context.Context, title string, year int) (*models.Candidate, error)

	// ProvidersFor lists the flat-rate streaming providers of a film in region.
	ProvidersFor(ctx context.Context, id int, region string) ([]string, error)

	// AllRegions lists every region with availability data.
	AllRegions(ctx context.Context) ([]models.Region, error)

	// ProvidersForRegion lists the providers that operate in region.
	ProvidersForRegion(ctx context.Context, region string) ([]string, error)
}
