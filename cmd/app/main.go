package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/crosslink/internal"
	pkgconfig "github.com/starford/crosslink/pkg/config"
)

var version = "dev"

type entrypoint func(ctx context.Context, opts ...internal.Option) error

// loadConfig reads the config file, falling back to defaults when the
// default path is absent, then applies command-line overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	read, err := pkgconfig.LoadWithDefaults(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !read && cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	if cmd.IsSet("root") {
		cfg.Corpus.Root = cmd.String("root")
	}
	if cmd.IsSet("max-distance") {
		cfg.Linking.MaxDistance = int(cmd.Int("max-distance"))
	}
	if cmd.IsSet("workers") {
		cfg.Linking.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("dry-run") {
		cfg.Linking.DryRun = cmd.Bool("dry-run")
	}
	if cmd.IsSet("inspect") {
		cfg.Inspect.Enabled = cmd.Bool("inspect")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func action(run entrypoint) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithVersion(version),
		}

		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "crosslink",
		Usage:   "Insert wiki links between related Markdown documents",
		Version: version,
		Description: heredoc.Doc(`
			crosslink scans a vault of Markdown documents, finds mentions of other
			documents by name or alias and rewrites them as [[target|text]] links.
			A mention is linked only when the two documents are close in the label
			graph: documents sharing a tag are one hop apart.

			Without a subcommand the vault is linked once.
		`),
		Action: action(internal.Run),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Vault root directory",
				Sources: cli.EnvVars("CROSSLINK_ROOT"),
			},
			&cli.IntFlag{
				Name:  "max-distance",
				Usage: "Largest label-graph distance at which a link is inserted",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Parallel document workers (0 uses GOMAXPROCS)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Compute links without writing documents",
			},
			&cli.BoolFlag{
				Name:  "inspect",
				Usage: "Record runs in the SQLite inspection store",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "link",
				Usage:  "Link the vault once and exit",
				Action: action(internal.Run),
			},
			{
				Name:   "watch",
				Usage:  "Link the vault, then re-link on every change",
				Action: action(internal.Watch),
			},
			{
				Name:   "serve",
				Usage:  "Watch the vault and serve the HTTP API, events and metrics",
				Action: action(internal.Serve),
			},
			{
				Name:   "mcp",
				Usage:  "Serve linking tools over MCP on stdio",
				Action: action(internal.ServeMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
