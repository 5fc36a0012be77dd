// Package nodeid keeps node ids unique across every note of the corpus.
package nodeid

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/notegraph/internal/doc"
)

// Registry maps every referenceable node id in the corpus to the note that
// owns it. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	owners map[string]string
	gen    Generator
	logger *slog.Logger
}

// NewRegistry returns an empty registry using random UUIDs.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		owners: make(map[string]string),
		gen:    UUIDGenerator{},
		logger: logger,
	}
}

// SetGenerator swaps the id source. Tests use it with a Sequence.
func (r *Registry) SetGenerator(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen = g
}

// Load rebuilds the registry from a full scan of the corpus. Duplicate ids
// found while scanning are repaired in place; the number of repairs is
// returned so callers can persist the affected notes.
func (r *Registry) Load(docs map[string]*doc.Document) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = make(map[string]string, len(r.owners))

	noteIDs := make([]string, 0, len(docs))
	for id := range docs {
		noteIDs = append(noteIDs, id)
	}
	sort.Strings(noteIDs)

	repaired := make(map[string]int)
	for _, noteID := range noteIDs {
		d := docs[noteID]
		for _, c := range d.Children {
			if n := r.claimLocked(noteID, c); n > 0 {
				repaired[noteID] += n
			}
		}
	}
	if len(repaired) > 0 {
		r.logger.Warn("nodeid: repaired duplicate ids on load", slog.Int("notes", len(repaired)))
	}
	return repaired
}

// Sync replaces the ids owned by noteID with the ids found in d, repairing
// collisions with other notes. It returns the number of repaired ids.
func (r *Registry) Sync(noteID string, d *doc.Document) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgetLocked(noteID)
	repaired := 0
	for _, c := range d.Children {
		repaired += r.claimLocked(noteID, c)
	}
	return repaired
}

// Forget drops every id owned by noteID.
func (r *Registry) Forget(noteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgetLocked(noteID)
}

// Owner returns the note owning id.
func (r *Registry) Owner(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	noteID, ok := r.owners[id]
	return noteID, ok
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

// Scope returns the identifier bound to one note's document.
func (r *Registry) Scope(noteID string) *Scope {
	return &Scope{reg: r, noteID: noteID}
}

func (r *Registry) forgetLocked(noteID string) {
	for id, owner := range r.owners {
		if owner == noteID {
			delete(r.owners, id)
		}
	}
}

func (r *Registry) newIDLocked(noteID string) string {
	for {
		id := r.gen.New()
		if _, taken := r.owners[id]; !taken {
			r.owners[id] = noteID
			return id
		}
	}
}

// claimLocked registers the ids of n and its descendants. An id survives
// only when nobody holds it yet; referenceable nodes without an id get one.
func (r *Registry) claimLocked(noteID string, n *doc.Node) int {
	repaired := 0
	n.Walk(nil, func(x *doc.Node, _ doc.Path) bool {
		if x.IsText() {
			return false
		}
		switch {
		case x.ID == "":
			if x.Type.Referenceable() {
				x.ID = r.newIDLocked(noteID)
			}
		default:
			if _, taken := r.owners[x.ID]; taken {
				r.logger.Debug("nodeid: duplicate id replaced",
					slog.String("id", x.ID), slog.String("note", noteID))
				x.ID = r.newIDLocked(noteID)
				repaired++
				return true
			}
			r.owners[x.ID] = noteID
		}
		return true
	})
	return repaired
}

func (r *Registry) releaseLocked(noteID string, n *doc.Node) {
	n.Walk(nil, func(x *doc.Node, _ doc.Path) bool {
		if x.IsText() {
			return false
		}
		if x.ID != "" && r.owners[x.ID] == noteID {
			delete(r.owners, x.ID)
		}
		return true
	})
}

// Scope implements doc.Identifier for a single note.
type Scope struct {
	reg    *Registry
	noteID string
}

var _ doc.Identifier = (*Scope)(nil)

// NoteID returns the note this scope stamps ids for.
func (s *Scope) NoteID() string { return s.noteID }

func (s *Scope) NewID() string {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.reg.newIDLocked(s.noteID)
}

func (s *Scope) Claim(n *doc.Node) {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	s.reg.claimLocked(s.noteID, n)
}

func (s *Scope) Release(n *doc.Node) {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	s.reg.releaseLocked(s.noteID, n)
}
