package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gosimple/slug"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/markdown"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/storage"
)

// Exported is one file written by Export.
type Exported struct {
	NoteID string `json:"note_id"`
	Path   string `json:"path"`
}

// Imported is the outcome of importing one file.
type Imported struct {
	Path    string `json:"path"`
	NoteID  string `json:"note_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Created bool   `json:"created"`
	Err     error  `json:"-"`
}

// ExportNote renders one note as markdown. Block references are flattened
// into the content they point to unless keepRefs is set.
func (s *Service) ExportNote(ctx context.Context, id string, keepRefs bool) (string, error) {
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return "", err
	}
	return s.render(n, keepRefs)
}

// Export writes every note to files as <slug>.md with a title frontmatter.
// Titles that slug alike get -2, -3 suffixes in title order.
func (s *Service) Export(ctx context.Context, files storage.Provider) ([]Exported, error) {
	notes, err := s.store.AllNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: export: %w", err)
	}
	ordered := make([]*models.Note, 0, len(notes))
	for _, n := range notes {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Title != ordered[j].Title {
			return ordered[i].Title < ordered[j].Title
		}
		return ordered[i].ID < ordered[j].ID
	})

	taken := make(map[string]bool, len(ordered))
	out := make([]Exported, 0, len(ordered))
	for _, n := range ordered {
		text, err := s.render(n, false)
		if err != nil {
			return out, err
		}
		path := fileName(n.Title, taken)
		if err := files.Write(path, []byte(text)); err != nil {
			return out, fmt.Errorf("noteservice: export %s: %w", n.ID, err)
		}
		out = append(out, Exported{NoteID: n.ID, Path: path})
	}
	s.logger.Info("noteservice: exported", slog.Int("notes", len(out)))
	return out, nil
}

func (s *Service) render(n *models.Note, keepRefs bool) (string, error) {
	opts := []markdown.Option{markdown.WithBlockResolver(s.index)}
	if keepRefs {
		opts = append(opts, markdown.KeepBlockReferences())
	}
	body := markdown.Serialize(n.Content, opts...)
	text, err := markdown.WithFrontmatter(n.Title, body)
	if err != nil {
		return "", fmt.Errorf("noteservice: render %s: %w", n.ID, err)
	}
	return text, nil
}

// fileName returns a free <slug>.md name for title.
func fileName(title string, taken map[string]bool) string {
	base := slug.Make(title)
	if base == "" {
		base = "untitled"
	}
	name := base
	for i := 2; taken[name]; i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	taken[name] = true
	return name + ".md"
}

// Import reads every markdown file under dir. A failing file does not stop
// the others; its error is reported in its entry.
func (s *Service) Import(ctx context.Context, files storage.Provider, dir string) ([]Imported, error) {
	list, err := files.List(dir)
	if err != nil {
		return nil, fmt.Errorf("noteservice: import: %w", err)
	}
	out := make([]Imported, 0, len(list))
	srcs := make([]Source, 0, len(list))
	for _, f := range list {
		data, err := files.Read(f.Path)
		if err != nil {
			out = append(out, Imported{Path: f.Path, Err: err})
			continue
		}
		srcs = append(srcs, Source{Path: f.Path, Data: data})
	}
	out = append(out, s.ImportFiles(ctx, srcs)...)

	failed := 0
	for _, res := range out {
		if res.Err != nil {
			failed++
		}
	}
	s.logger.Info("noteservice: imported",
		slog.String("dir", dir), slog.Int("files", len(list)), slog.Int("failed", failed))
	return out, nil
}

// Source is one markdown file handed to ImportFiles.
type Source struct {
	Path string
	Data []byte
}

// ImportFile creates a note from a markdown file, or replaces the content of
// the note that already has the file's title.
func (s *Service) ImportFile(ctx context.Context, path string, data []byte) Imported {
	return s.ImportFiles(ctx, []Source{{Path: path, Data: data}})[0]
}

// ImportFiles imports srcs as one batch. Every title is claimed before any
// body is parsed, so links between files of the batch resolve whatever
// their order. A note created for a file whose content then fails to save
// stays behind empty, as other files may already link to it.
func (s *Service) ImportFiles(ctx context.Context, srcs []Source) []Imported {
	out := make([]Imported, len(srcs))
	claimed := make(map[string]bool, len(srcs))
	for i, src := range srcs {
		fm, body := markdown.SplitFrontmatter(src.Data)
		out[i] = Imported{Path: src.Path, Title: markdown.DeriveTitle(fm, body, src.Path)}

		id, created, err := s.claimTitle(ctx, out[i].Title)
		if err != nil {
			out[i].Err = s.importFailed(src.Path, err)
			continue
		}
		out[i].NoteID = id
		out[i].Created = created && !claimed[id]
		claimed[id] = true
	}

	resolve := markdown.WithTitleResolver(titleResolver{ctx: ctx, s: s})
	for i, src := range srcs {
		if out[i].Err != nil {
			continue
		}
		f := markdown.ParseFile(src.Path, src.Data, resolve, markdown.WithBlockResolver(s.index))
		if _, err := s.ReplaceContent(ctx, out[i].NoteID, f.Content, ""); err != nil {
			out[i].Err = s.importFailed(src.Path, err)
		}
	}
	return out
}

// claimTitle returns the note carrying title, creating an empty one when
// there is none.
func (s *Service) claimTitle(ctx context.Context, title string) (string, bool, error) {
	n, err := s.store.FindByTitle(ctx, title)
	if err == nil {
		return n.ID, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return "", false, err
	}
	created, err := s.CreateNote(ctx, title, nil)
	if err != nil {
		return "", false, err
	}
	return created.ID, true, nil
}

func (s *Service) importFailed(path string, err error) error {
	s.logger.Warn("noteservice: import failed",
		slog.String("path", path), slog.String("error", err.Error()))
	return fmt.Errorf("noteservice: import %s: %w", path, err)
}
