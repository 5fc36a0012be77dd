package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notegraph/internal"
	pkgconfig "github.com/starford/notegraph/pkg/config"
)

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func importDir(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	dir := cmd.Args().First()
	if dir == "" {
		return fmt.Errorf("import: directory argument is required")
	}
	results, err := internal.Import(ctx, dir, cmd.Bool("archive"), opts...)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(os.Stderr, "failed  %s: %v\n", r.Path, r.Err)
		case r.Created:
			fmt.Printf("created %s -> %s\n", r.Path, r.Title)
		default:
			fmt.Printf("updated %s -> %s\n", r.Path, r.Title)
		}
	}
	if failed > 0 {
		return fmt.Errorf("import: %d of %d files failed", failed, len(results))
	}
	return nil
}

func exportDir(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	written, err := internal.Export(ctx, cmd.Args().First(), opts...)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	for _, e := range written {
		fmt.Println(e.Path)
	}
	return nil
}

func doctor(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	report, err := internal.Doctor(ctx, cmd.Bool("repair"), opts...)
	if err != nil {
		return fmt.Errorf("doctor: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "notegraph",
		Usage:  "Block-structured notes with typed links, backlinks and block references",
		Action: serve,
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
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:      "import",
				Usage:     "Import markdown files from a directory",
				ArgsUsage: "<dir>",
				Action:    importDir,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "archive",
						Usage: "Move imported files into <dir>/.imported",
					},
				},
			},
			{
				Name:      "export",
				Usage:     "Export every note as markdown",
				ArgsUsage: "[dir]",
				Action:    exportDir,
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio",
				Action: serveMCP,
			},
			{
				Name:  "doctor",
				Usage: "Check stored notes for duplicate node ids",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "repair",
						Usage: "Reassign duplicate ids and save the repaired notes",
					},
				},
				Action: doctor,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
