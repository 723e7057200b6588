// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/lbx/internal/formatter"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func usernameFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "username",
		Aliases:  []string{"u"},
		Usage:    "Letterboxd username",
		Required: true,
	}
}

func regionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "region",
		Aliases:  []string{"r"},
		Usage:    "Two-letter region code, e.g. FR",
		Required: true,
	}
}

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

// setupCommand handles configuration and database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
		},
	}
}

// watchlistCommand scrapes a watchlist without enrichment.
func watchlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watchlist",
		Usage: "Scrape a Letterboxd watchlist and print its entries",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "username"},
		},
		Flags:  jsonFlags(),
		Action: r.Watchlist,
	}
}

// resultsCommand runs a full results request.
func resultsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "results",
		Usage: "List watchlist films streaming on your services",
		Flags: []cli.Flag{
			usernameFlag(),
			regionFlag(),
			&cli.StringSliceFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Streaming service to keep (repeatable); replaces the saved selection",
			},
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Scrape the watchlist again even if the saved snapshot is fresh",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: " + strings.Join(formatter.Formats, ", "),
				Value:   formatter.FormatText,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the results to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Write the results to {username}_{region}_watchlist.{format}",
			},
		},
		Action: r.Results,
	}
}

// filmsCommand prints the saved snapshot.
func filmsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "films",
		Usage:  "Show the saved watchlist snapshot without scraping",
		Flags:  append([]cli.Flag{usernameFlag(), regionFlag()}, jsonFlags()...),
		Action: r.Films,
	}
}

// regionsCommand lists catalog regions.
func regionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "regions",
		Usage:  "List regions with streaming availability data",
		Flags:  jsonFlags(),
		Action: r.Regions,
	}
}

// providersCommand handles streaming provider operations
func providersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "Streaming provider operations",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the streaming services available in a region",
				Flags:  append([]cli.Flag{regionFlag()}, jsonFlags()...),
				Action: r.ProvidersList,
			},
			{
				Name:  "mine",
				Usage: "Show your saved services, for one region or all of them",
				Flags: append([]cli.Flag{
					usernameFlag(),
					&cli.StringFlag{
						Name:    "region",
						Aliases: []string{"r"},
						Usage:   "Two-letter region code; omit to list every region",
					},
				}, jsonFlags()...),
				Action: r.ProvidersMine,
			},
			{
				Name:   "select",
				Usage:  "Pick your services for a region interactively",
				Flags:  []cli.Flag{usernameFlag(), regionFlag()},
				Action: r.ProvidersSelect,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Pick services and browse results interactively",
		Flags: []cli.Flag{
			usernameFlag(),
			regionFlag(),
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Scrape the watchlist again even if the saved snapshot is fresh",
			},
		},
		Action: r.TUI,
	}
}

// serveCommand starts the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the watchlist engine as a JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides server.addr",
			},
		},
		Action: r.Serve,
	}
}
