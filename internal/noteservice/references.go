package noteservice

import (
	"context"
	"strings"

	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/markdown"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/refindex"
	"github.com/starford/notegraph/internal/store"
)

// Backlinks is the reference panel of one note.
type Backlinks struct {
	Linked        []refindex.Backlink `json:"linked"`
	Unlinked      []refindex.Backlink `json:"unlinked"`
	LinkedCount   int                 `json:"linked_count"`
	UnlinkedCount int                 `json:"unlinked_count"`
}

// Backlinks returns the linked and unlinked references to a note as of the
// last index rebuild.
func (s *Service) Backlinks(ctx context.Context, id string) (*Backlinks, error) {
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	linked := s.index.Linked(id)
	unlinked := s.index.Unlinked(n.Title)
	return &Backlinks{
		Linked:        nonNilSlice(linked),
		Unlinked:      nonNilSlice(unlinked),
		LinkedCount:   refindex.Count(linked),
		UnlinkedCount: refindex.Count(unlinked),
	}, nil
}

// BlockBacklinks returns the notes embedding a block.
func (s *Service) BlockBacklinks(blockID string) []refindex.Backlink {
	return nonNilSlice(s.index.BlockRefs(blockID))
}

// ResolveBlock returns the live node behind a block reference.
func (s *Service) ResolveBlock(ctx context.Context, blockID string) (refindex.Resolution, error) {
	return s.index.ResolveBlock(ctx, blockID)
}

// fragmentParser parses pasted markdown with links resolved against the
// corpus.
type fragmentParser struct {
	s *Service
}

func (p fragmentParser) ParseFragment(text string) []*doc.Node {
	d := markdown.Parse(text,
		markdown.WithTitleResolver(titleResolver{ctx: context.Background(), s: p.s}),
		markdown.WithBlockResolver(p.s.index))
	return d.Children
}

type titleResolver struct {
	ctx context.Context
	s   *Service
}

func (r titleResolver) ResolveTitle(title string) (string, bool) {
	if strings.TrimSpace(title) == "" {
		return "", false
	}
	n, err := r.s.store.FindByTitle(r.ctx, title)
	if err != nil {
		return "", false
	}
	return n.ID, true
}

// linkLister is implemented by stores that keep a link table.
type linkLister interface {
	Links(ctx context.Context) ([]models.Link, error)
}

// Graph returns every note and the note-to-note edges between them. Block
// references are drawn as an edge to the note owning the block.
func (s *Service) Graph(ctx context.Context) ([]models.NoteMetadata, []models.Link, error) {
	nodes, err := s.store.ListNotes(ctx)
	if err != nil {
		return nil, nil, err
	}
	var raw []models.Link
	if ll, ok := s.store.(linkLister); ok {
		if raw, err = ll.Links(ctx); err != nil {
			return nil, nil, err
		}
	} else {
		notes, err := s.store.AllNotes(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, id := range sortedKeys(notes) {
			raw = append(raw, store.OutgoingLinks(id, notes[id].Content)...)
		}
	}

	links := make([]models.Link, 0, len(raw))
	for _, l := range raw {
		if l.Type == string(doc.KindBlockReference) {
			owner, ok := s.ids.Owner(l.Target)
			if !ok {
				continue
			}
			l.Target = owner
		}
		links = append(links, l)
	}
	return nonNilSlice(nodes), links, nil
}
