// Package importer turns markdown files dropped into an inbox directory into
// notes. Imported files are moved to an archive directory so they are read
// once.
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/storage"
)

// ArchiveDir is where imported files are moved, relative to the inbox. It
// is hidden, so listing the inbox skips it.
const ArchiveDir = ".imported"

// Target imports a batch of markdown files, returning one entry per source
// in order.
type Target interface {
	ImportFiles(ctx context.Context, srcs []noteservice.Source) []noteservice.Imported
}

// Callback is called after every file the importer processed.
type Callback func(res noteservice.Imported)

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) { i.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is imported.
func WithDebounce(d time.Duration) Option {
	return func(i *Importer) {
		if d > 0 {
			i.debounce = d
		}
	}
}

// WithCallback registers cb for processed files.
func WithCallback(cb Callback) Option {
	return func(i *Importer) { i.cb = cb }
}

// KeepFiles leaves imported files in place instead of archiving them.
func KeepFiles() Option {
	return func(i *Importer) { i.keep = true }
}

// Importer reads the inbox and hands each file to a Target.
type Importer struct {
	target   Target
	inbox    *storage.FS
	logger   *slog.Logger
	debounce time.Duration
	cb       Callback
	keep     bool
}

// New returns an importer over inbox.
func New(target Target, inbox *storage.FS, opts ...Option) *Importer {
	i := &Importer{
		target:   target,
		inbox:    inbox,
		logger:   slog.Default(),
		debounce: time.Second,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Scan imports every markdown file currently in the inbox as one batch. A
// failing file stays in the inbox and is reported in its entry.
func (i *Importer) Scan(ctx context.Context) ([]noteservice.Imported, error) {
	files, err := i.inbox.List("")
	if err != nil {
		return nil, fmt.Errorf("importer: scan: %w", err)
	}
	rels := make([]string, 0, len(files))
	for _, f := range files {
		rels = append(rels, f.Path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return i.importBatch(ctx, rels), nil
}

// importBatch reads rels and imports the readable ones together, so links
// between them resolve.
func (i *Importer) importBatch(ctx context.Context, rels []string) []noteservice.Imported {
	out := make([]noteservice.Imported, 0, len(rels))
	srcs := make([]noteservice.Source, 0, len(rels))
	for _, rel := range rels {
		data, err := i.inbox.Read(rel)
		if err != nil {
			res := noteservice.Imported{Path: rel, Err: err}
			i.report(res)
			out = append(out, res)
			continue
		}
		srcs = append(srcs, noteservice.Source{Path: rel, Data: data})
	}
	if len(srcs) == 0 {
		return out
	}

	for _, res := range i.target.ImportFiles(ctx, srcs) {
		if res.Err == nil && !i.keep {
			if err := i.inbox.Move(res.Path, path.Join(ArchiveDir, res.Path)); err != nil {
				i.logger.Warn("importer: archive failed", slog.String("path", res.Path), slog.String("error", err.Error()))
			}
		}
		i.report(res)
		out = append(out, res)
	}
	return out
}

func (i *Importer) report(res noteservice.Imported) {
	if res.Err != nil {
		i.logger.Warn("importer: import failed", slog.String("path", res.Path), slog.String("error", res.Err.Error()))
	} else {
		i.logger.Info("importer: imported",
			slog.String("path", res.Path), slog.String("note", res.NoteID), slog.Bool("created", res.Created))
	}
	if i.cb != nil {
		i.cb(res)
	}
}

// Watch imports the inbox once and then every markdown file created or
// written under it, after the file has been quiet for the debounce
// interval. It returns when ctx is cancelled.
func (i *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := i.inbox.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	i.logger.Info("importer: watching", slog.String("inbox", root), slog.Duration("debounce", i.debounce))

	if _, err := i.Scan(ctx); err != nil && ctx.Err() == nil {
		i.logger.Warn("importer: initial scan failed", slog.String("error", err.Error()))
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(i.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			i.logger.Info("importer: stopped")
			return nil

		case <-timer.C:
			batch := make([]string, 0, len(pending))
			for rel := range pending {
				delete(pending, rel)
				if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
					continue
				}
				batch = append(batch, rel)
			}
			sort.Strings(batch)
			i.importBatch(ctx, batch)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || hidden(root, ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						i.logger.Warn("importer: add new dir failed",
							slog.String("path", ev.Name), slog.String("error", addErr.Error()))
					}
					// Files may have landed before the directory was watched.
					i.queueDir(ev.Name, pending)
					timer.Reset(i.debounce)
					continue
				}
			}

			if !storage.IsMarkdown(filepath.Base(ev.Name)) {
				continue
			}
			rel, relErr := i.inbox.Rel(ev.Name)
			if relErr != nil {
				continue
			}
			pending[rel] = struct{}{}
			timer.Reset(i.debounce)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			i.logger.Error("importer: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

func (i *Importer) queueDir(dir string, pending map[string]struct{}) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsMarkdown(d.Name()) {
			return nil
		}
		if rel, relErr := i.inbox.Rel(p); relErr == nil {
			pending[rel] = struct{}{}
		}
		return nil
	})
}

// hidden reports whether p lies in a dot directory under root, such as the
// archive.
func hidden(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its visible subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
