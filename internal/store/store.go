// Package store persists notes. The reference engine consumes it through the
// Store interface; Memory backs tests and SQLite backs the server.
package store

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/models"
)

// Store is the note persistence contract.
type Store interface {
	// AllNotes returns every note keyed by id. Notes are copies.
	AllNotes(ctx context.Context) (map[string]*models.Note, error)
	GetNote(ctx context.Context, id string) (*models.Note, error)
	// FindByTitle matches titles case-insensitively.
	FindByTitle(ctx context.Context, title string) (*models.Note, error)
	ListNotes(ctx context.Context) ([]models.NoteMetadata, error)
	Count(ctx context.Context) (int, error)
	CreateNote(ctx context.Context, n *models.Note) error
	ApplyContentChange(ctx context.Context, id string, content *doc.Document) error
	// ApplyTitleChange fails with apperr.ErrDuplicateTitle when another note
	// already holds the title.
	ApplyTitleChange(ctx context.Context, id, title string) error
	DeleteNote(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// TitleKey normalises a title for case-insensitive uniqueness. A Caser is
// stateful, so one is built per call.
func TitleKey(title string) string {
	return cases.Fold().String(strings.TrimSpace(title))
}

// OutgoingLinks lists the note links and block references in d.
func OutgoingLinks(source string, d *doc.Document) []models.Link {
	var out []models.Link
	seen := make(map[models.Link]bool)
	d.Walk(func(n *doc.Node, _ doc.Path) bool {
		var l models.Link
		switch {
		case n.Type == doc.KindNoteLink && n.NoteID != "":
			l = models.Link{Source: source, Target: n.NoteID, Type: string(doc.KindNoteLink)}
		case n.Type == doc.KindBlockReference && n.BlockID != "":
			l = models.Link{Source: source, Target: n.BlockID, Type: string(doc.KindBlockReference)}
		default:
			return n.IsElement()
		}
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
		return false
	})
	return out
}
