package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/lbx/internal/formatter"
	"github.com/desertthunder/lbx/internal/models"
	"github.com/desertthunder/lbx/internal/repositories"
	"github.com/desertthunder/lbx/internal/shared"
	"github.com/desertthunder/lbx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Watchlist scrapes a watchlist and prints the raw entries.
func (r *Runner) Watchlist(ctx context.Context, cmd *cli.Command) error {
	username := strings.TrimSpace(cmd.StringArg("username"))
	if username == "" {
		return fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}

	r.logger.Info("scraping watchlist", "username", username)
	entries := r.scraper().Acquire(ctx, username)
	if err := ctx.Err(); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Watchlist of %s (%d films)", username, len(entries)))
	for i, entry := range entries {
		if entry.ReleaseYear > 0 {
			r.writePlain("%d. %s (%d)\n", i+1, entry.Title, entry.ReleaseYear)
		} else {
			r.writePlain("%d. %s\n", i+1, entry.Title)
		}
	}
	if len(entries) == 0 {
		r.writePlain("No entries found. The profile may be private, empty, or the site blocked the browser.\n")
	}
	return nil
}

// Results runs a results request and renders the films in the chosen format.
//
// A failed save is reported as a warning; the fresh films are still printed.
func (r *Runner) Results(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.Normalize(cmd.String("format"))
	if err != nil {
		return err
	}

	var providers []string
	if cmd.IsSet("provider") {
		providers = cmd.StringSlice("provider")
	}

	engine, err := r.engine(ctx)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			if update.Phase == tasks.Enrich {
				r.logger.Debug(update.Message, "phase", update.Phase)
				continue
			}
			r.logger.Info(update.Message, "phase", update.Phase)
		}
	}()

	result, err := engine.Results(ctx, tasks.Request{
		Username:  cmd.String("username"),
		Region:    cmd.String("region"),
		Providers: providers,
		Refresh:   cmd.Bool("refresh"),
		Progress:  progress,
	})
	close(progress)
	wg.Wait()

	switch {
	case err == nil:
	case errors.Is(err, shared.ErrPersistence) && result != nil:
		r.logger.Warn("results could not be saved, showing them anyway", "error", err)
	default:
		return err
	}

	if len(result.Providers) == 0 {
		r.logger.Warn("no streaming services selected, run 'lbx providers select' or pass --provider")
	}

	export := &formatter.Export{
		Username:  result.User.Username,
		Region:    result.Region,
		Providers: result.Providers,
		Films:     result.Films,
	}

	if path := cmd.String("output"); path != "" || cmd.Bool("save") {
		written, err := formatter.WriteExport(export, format, path)
		if err != nil {
			return err
		}
		r.logger.Info("results written", "path", written, "films", len(result.Films))
		return r.writePlain("✓ Saved %d films to %s\n", len(result.Films), written)
	}

	data, err := formatter.Render(export, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		return r.writePlain("\n")
	}
	return nil
}

// Films prints the saved snapshot of a user and region, unfiltered.
func (r *Runner) Films(ctx context.Context, cmd *cli.Command) error {
	in, err := shared.ValidateRequest(cmd.String("username"), cmd.String("region"))
	if err != nil {
		return err
	}

	user, err := r.lookupUser(ctx, in.Username)
	if err != nil {
		return err
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	records, err := repositories.NewFilmRepository(db, r.logger).List(ctx, user.ID, in.Region)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, cmd.Bool("pretty"))
	}

	if user.LastResearchAt != nil {
		r.writePlain("Last scraped: %s\n", user.LastResearchAt.Local().Format("2006-01-02 15:04"))
	}
	data, err := formatter.ExportToText(&formatter.Export{
		Username: user.Username,
		Region:   in.Region,
		Films:    models.Films(records),
	})
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// lookupUser finds a known user without creating one.
func (r *Runner) lookupUser(ctx context.Context, username string) (*models.UserProfile, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}

	lookup := repositories.NewUserRepository(db).Lookup(ctx, username)
	switch lookup.Outcome {
	case models.LookupNotFound:
		return nil, fmt.Errorf("%w: no saved data for %s, run 'lbx results' first", shared.ErrNotFound, username)
	case models.LookupFailed:
		return nil, lookup.Err
	default:
		return lookup.User, nil
	}
}
