// Package refindex computes the references between notes: linked backlinks,
// unlinked title mentions and block references. It also produces the
// operations that keep references intact when a note is renamed or deleted.
package refindex

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/models"
)

// Match is one reference inside a source note.
type Match struct {
	// BlockPath addresses the block holding the reference.
	BlockPath doc.Path `json:"block_path"`
	// Path addresses the link element or text leaf itself.
	Path doc.Path `json:"path"`
}

// Backlink groups every match found in one source note.
type Backlink struct {
	SourceID    string  `json:"source_id"`
	SourceTitle string  `json:"source_title"`
	Matches     []Match `json:"matches"`
}

// Display returns the matches with one entry per containing block.
func (b Backlink) Display() []Match {
	seen := make(map[string]bool, len(b.Matches))
	out := make([]Match, 0, len(b.Matches))
	for _, m := range b.Matches {
		key := m.BlockPath.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

// Count returns the total number of matches, duplicates included.
func Count(backlinks []Backlink) int {
	n := 0
	for _, b := range backlinks {
		n += len(b.Matches)
	}
	return n
}

// Linked returns the notes linking to targetID through note links with
// visible text.
func Linked(notes map[string]*models.Note, targetID string) []Backlink {
	return collect(notes, func(n *models.Note) []Match {
		return linkedIn(n.Content, targetID)
	})
}

// Unlinked returns the plain text mentions of title. Every occurrence counts,
// so a leaf mentioning the title twice yields two matches on the same block.
// Text inside note links and the notes titled title are skipped.
func Unlinked(notes map[string]*models.Note, title string) []Backlink {
	needle := fold(title)
	if strings.TrimSpace(needle) == "" {
		return nil
	}
	return collect(notes, func(n *models.Note) []Match {
		if fold(n.Title) == needle {
			return nil
		}
		return unlinkedIn(n.Content, needle)
	})
}

// BlockRefs returns the notes embedding blockID.
func BlockRefs(notes map[string]*models.Note, blockID string) []Backlink {
	return collect(notes, func(n *models.Note) []Match {
		return blockRefsIn(n.Content, blockID)
	})
}

func collect(notes map[string]*models.Note, scan func(*models.Note) []Match) []Backlink {
	var out []Backlink
	for _, n := range notes {
		if n.Content == nil {
			continue
		}
		if ms := scan(n); len(ms) > 0 {
			out = append(out, Backlink{SourceID: n.ID, SourceTitle: n.Title, Matches: ms})
		}
	}
	sortBacklinks(out)
	return out
}

func sortBacklinks(bls []Backlink) {
	sort.Slice(bls, func(i, j int) bool {
		if bls[i].SourceTitle != bls[j].SourceTitle {
			return bls[i].SourceTitle < bls[j].SourceTitle
		}
		return bls[i].SourceID < bls[j].SourceID
	})
}

func linkedIn(d *doc.Document, targetID string) []Match {
	var out []Match
	d.Walk(func(n *doc.Node, p doc.Path) bool {
		if n.Type != doc.KindNoteLink {
			return n.IsElement()
		}
		if n.NoteID == targetID && n.PlainText() != "" {
			out = append(out, matchAt(d, p))
		}
		return false
	})
	return out
}

func unlinkedIn(d *doc.Document, needle string) []Match {
	var out []Match
	d.Walk(func(n *doc.Node, p doc.Path) bool {
		switch {
		case n.Type == doc.KindNoteLink:
			return false
		case n.IsText():
			for range strings.Count(fold(n.Text), needle) {
				out = append(out, matchAt(d, p))
			}
			return false
		}
		return true
	})
	return out
}

func blockRefsIn(d *doc.Document, blockID string) []Match {
	var out []Match
	d.Walk(func(n *doc.Node, p doc.Path) bool {
		if n.Type == doc.KindBlockReference && n.BlockID == blockID {
			out = append(out, matchAt(d, p))
			return false
		}
		return n.IsElement()
	})
	return out
}

func matchAt(d *doc.Document, p doc.Path) Match {
	m := Match{Path: p.Copy()}
	if _, bp, err := d.Block(p); err == nil {
		m.BlockPath = bp
	} else {
		m.BlockPath = doc.Path{p[0]}
	}
	return m
}

// fold case-folds s for comparisons. A Caser keeps state, so each call
// builds its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
