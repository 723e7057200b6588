package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/lbx/internal/repositories"
	"github.com/desertthunder/lbx/internal/shared"
	"github.com/desertthunder/lbx/internal/ui"
	"github.com/urfave/cli/v3"
)

// Regions lists the regions the catalog has availability data for.
func (r *Runner) Regions(ctx context.Context, cmd *cli.Command) error {
	catalog, err := r.catalogClient(ctx)
	if err != nil {
		return err
	}

	regions, err := catalog.AllRegions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list regions: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(regions, cmd.Bool("pretty"))
	}

	for _, region := range regions {
		r.writePlain("%s  %s\n", region.Code, region.EnglishName)
	}
	return nil
}

// ProvidersList lists the streaming services operating in a region.
func (r *Runner) ProvidersList(ctx context.Context, cmd *cli.Command) error {
	region := strings.ToUpper(strings.TrimSpace(cmd.String("region")))

	catalog, err := r.catalogClient(ctx)
	if err != nil {
		return err
	}

	providers, err := catalog.ProvidersForRegion(ctx, region)
	if err != nil {
		return fmt.Errorf("failed to list providers: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(providers, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Streaming services in %s (%d)", region, len(providers)))
	for _, name := range providers {
		r.writePlain("%s\n", name)
	}
	return nil
}

// ProvidersMine prints the saved selection of a user in a region, or in every region when
// --region is omitted.
func (r *Runner) ProvidersMine(ctx context.Context, cmd *cli.Command) error {
	if cmd.String("region") == "" {
		return r.providersEverywhere(ctx, cmd)
	}

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
	providers, err := repositories.NewProviderRepository(db).List(ctx, user.ID, in.Region)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(providers, cmd.Bool("pretty"))
	}

	if len(providers) == 0 {
		return r.writePlain("No services saved for %s in %s.\n", in.Username, in.Region)
	}
	for _, name := range providers {
		r.writePlain("%s\n", name)
	}
	return nil
}

func (r *Runner) providersEverywhere(ctx context.Context, cmd *cli.Command) error {
	username, err := shared.ValidateUsername(cmd.String("username"))
	if err != nil {
		return err
	}

	user, err := r.lookupUser(ctx, username)
	if err != nil {
		return err
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	prefs, err := repositories.NewProviderRepository(db).Preferences(ctx, user.ID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(prefs, cmd.Bool("pretty"))
	}

	if len(prefs) == 0 {
		return r.writePlain("No services saved for %s.\n", username)
	}
	for _, p := range prefs {
		r.writePlain("%s  %s\n", p.RegionCode, p.ProviderName)
	}
	return nil
}

// ProvidersSelect opens the provider picker and saves the confirmed selection.
func (r *Runner) ProvidersSelect(ctx context.Context, cmd *cli.Command) error {
	in, err := shared.ValidateRequest(cmd.String("username"), cmd.String("region"))
	if err != nil {
		return err
	}

	catalog, err := r.catalogClient(ctx)
	if err != nil {
		return err
	}
	db, err := r.database()
	if err != nil {
		return err
	}

	lookup := repositories.NewUserRepository(db).Resolve(ctx, in.Username)
	if !lookup.OK() {
		return fmt.Errorf("failed to resolve user: %w", lookup.Err)
	}

	store := repositories.NewProviderRepository(db)
	saved, err := store.List(ctx, lookup.User.ID, in.Region)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, ui.Options{
		Username: in.Username,
		Region:   in.Region,
		Saved:    saved,
		Catalog:  catalog,
	})
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running provider picker: %w", err)
	}
	if _, err := model.Result(); err != nil {
		return err
	}
	if !model.Confirmed() {
		r.logger.Info("selection cancelled")
		return nil
	}

	changes, err := store.Replace(ctx, lookup.User.ID, in.Region, model.Selection())
	if err != nil {
		return err
	}

	r.writePlain("✓ Saved %d services for %s in %s\n", len(model.Selection()), in.Username, in.Region)
	if len(changes.Added) > 0 {
		r.writePlain("  added:   %s\n", strings.Join(changes.Added, ", "))
	}
	if len(changes.Removed) > 0 {
		r.writePlain("  removed: %s\n", strings.Join(changes.Removed, ", "))
	}
	return nil
}
