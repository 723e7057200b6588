package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/lbx/internal/repositories"
	"github.com/desertthunder/lbx/internal/shared"
	"github.com/desertthunder/lbx/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/lbx-tui.log"

// TUI launches the interactive provider picker followed by the results view.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	in, err := shared.ValidateRequest(cmd.String("username"), cmd.String("region"))
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, logFile, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())

	previous := r.logger
	r.SetLogger(fileLogger)
	defer func() {
		r.SetLogger(previous)
		logFile.Close()
	}()

	engine, err := r.engine(ctx)
	if err != nil {
		return err
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	var saved []string
	if lookup := repositories.NewUserRepository(db).Lookup(ctx, in.Username); lookup.OK() {
		if saved, err = repositories.NewProviderRepository(db).List(ctx, lookup.User.ID, in.Region); err != nil {
			return err
		}
	}

	model := ui.NewModel(ctx, ui.Options{
		Username: in.Username,
		Region:   in.Region,
		Saved:    saved,
		Refresh:  cmd.Bool("refresh"),
		Catalog:  r.catalog,
		Engine:   engine,
	})

	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	if _, err := model.Result(); err != nil && !errors.Is(err, shared.ErrPersistence) {
		return err
	}
	return nil
}
