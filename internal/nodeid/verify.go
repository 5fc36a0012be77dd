package nodeid

import (
	"sort"

	"github.com/starford/notegraph/internal/doc"
)

// Duplicate is an id held by more than one node.
type Duplicate struct {
	ID    string
	Notes []string
}

// Verify scans the corpus and reports every id used more than once. It is
// the slow counterpart of the registry and does not change anything.
func Verify(docs map[string]*doc.Document) []Duplicate {
	seen := make(map[string][]string)
	for noteID, d := range docs {
		d.Walk(func(n *doc.Node, _ doc.Path) bool {
			if n.IsText() {
				return false
			}
			if n.ID != "" {
				seen[n.ID] = append(seen[n.ID], noteID)
			}
			return true
		})
	}
	var out []Duplicate
	for id, notes := range seen {
		if len(notes) > 1 {
			sort.Strings(notes)
			out = append(out, Duplicate{ID: id, Notes: notes})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
