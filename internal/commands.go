package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/notegraph/internal/importer"
	"github.com/starford/notegraph/internal/mcpserver"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/storage"
)

// withCore opens the note engine, runs fn and closes the store.
func withCore(ctx context.Context, opts []Option, fn func(*core, *Config, *slog.Logger) error) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := openCore(ctx, app.config, logger, nil, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c, app.config, logger)
}

// Import reads every markdown file under dir into the note store. With
// archive set, imported files are moved into dir/.imported.
func Import(ctx context.Context, dir string, archive bool, opts ...Option) ([]noteservice.Imported, error) {
	var out []noteservice.Imported
	err := withCore(ctx, opts, func(c *core, _ *Config, logger *slog.Logger) error {
		files, err := storage.NewFS(dir)
		if err != nil {
			return fmt.Errorf("open import dir: %w", err)
		}
		iopts := []importer.Option{importer.WithLogger(logger)}
		if !archive {
			iopts = append(iopts, importer.KeepFiles())
		}
		out, err = importer.New(c.svc, files, iopts...).Scan(ctx)
		return err
	})
	return out, err
}

// Export writes every note to dir as markdown. An empty dir means the
// configured export directory.
func Export(ctx context.Context, dir string, opts ...Option) ([]noteservice.Exported, error) {
	var out []noteservice.Exported
	err := withCore(ctx, opts, func(c *core, cfg *Config, _ *slog.Logger) error {
		if dir == "" {
			dir = cfg.Export.Dir
		}
		files, err := storage.NewFS(dir)
		if err != nil {
			return fmt.Errorf("open export dir: %w", err)
		}
		out, err = c.svc.Export(ctx, files)
		return err
	})
	return out, err
}

// Doctor checks the stored notes for duplicate node ids and optionally
// repairs them.
func Doctor(ctx context.Context, repair bool, opts ...Option) (*noteservice.DoctorReport, error) {
	var report *noteservice.DoctorReport
	err := withCore(ctx, opts, func(c *core, _ *Config, _ *slog.Logger) error {
		var err error
		report, err = c.svc.Doctor(ctx, repair)
		return err
	})
	return report, err
}

// ServeMCP runs the MCP server over stdio. Logs go to stderr.
func ServeMCP(ctx context.Context, opts ...Option) error {
	opts = append(opts, WithLogOutput(os.Stderr))
	return withCore(ctx, opts, func(c *core, cfg *Config, logger *slog.Logger) error {
		attachments, err := storage.NewFS(cfg.Attachments.Dir)
		if err != nil {
			return fmt.Errorf("init attachments: %w", err)
		}
		exports, err := storage.NewFS(cfg.Export.Dir)
		if err != nil {
			return fmt.Errorf("init exports: %w", err)
		}

		idxCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := c.index.Run(idxCtx); err != nil {
				logger.Error("index loop stopped", slog.String("error", err.Error()))
			}
		}()

		srv := mcpserver.New(c.svc, mcpserver.WithAttachments(attachments), mcpserver.WithExports(exports))
		logger.Info("MCP server starting on stdio")
		if err := srv.ServeStdio(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})
}
