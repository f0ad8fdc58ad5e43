package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/gleaner/internal"
	pkgconfig "github.com/starford/gleaner/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func stats(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := internal.LoadStats(cfg.Store.Path)
	if err != nil {
		return err
	}
	fmt.Println(renderStats(st))
	return nil
}

func render(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: gleaner render <record-id>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rec, err := internal.Rerender(ctx, id, internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("rendered %s -> %s\n", rec.ID, rec.RenderedPath)
	return nil
}

func reindex(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rep, err := internal.Reindex(ctx, internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	fmt.Println(rep)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "gleaner",
		Usage:   "Chat-driven capture of notes, articles and papers into a Markdown vault",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, vault watcher and chat bot (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:   "stats",
				Usage:  "Print record counts by kind and channel",
				Action: stats,
			},
			{
				Name:      "render",
				Usage:     "Rewrite the vault document of one record",
				ArgsUsage: "<record-id>",
				Action:    render,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the search index from the vault",
				Action: reindex,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
