package tasks

import (
	"fmt"

	"github.com/desertthunder/lbx/internal/models"
)

// ProgressUpdate represents a progress event during a results request.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Lookup Phase = iota
	Acquire
	Enrich
	Filter
	Reconcile
	Cached
)

func (p Phase) String() string {
	switch p {
	case Lookup:
		return "lookup"
	case Acquire:
		return "acquire"
	case Enrich:
		return "enrich"
	case Filter:
		return "filter"
	case Reconcile:
		return "reconcile"
	case Cached:
		return "cached"
	default:
		return ""
	}
}

func lookupUpdate(username string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Lookup,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Looking up %s...", username),
	}
}

func acquiringUpdate(username string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Acquire,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Scraping watchlist of %s...", username),
	}
}

func acquiredUpdate(entries []models.WatchlistEntry) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Acquire,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d films on the watchlist", len(entries)),
		Data:    entries,
	}
}

func enrichUpdate(step, total int, entry models.WatchlistEntry) ProgressUpdate {
	label := entry.Title
	if entry.ReleaseYear > 0 {
		label = fmt.Sprintf("%s (%d)", entry.Title, entry.ReleaseYear)
	}
	return ProgressUpdate{
		Phase:   Enrich,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, label),
	}
}

func filterUpdate(kept, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Filter,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%d of %d films stream on your services", kept, total),
	}
}

func reconcileUpdate(message string, data any) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Reconcile,
		Step:    1,
		Total:   1,
		Message: message,
		Data:    data,
	}
}

func cachedUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Cached,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Using saved snapshot (%d films)", count),
	}
}
