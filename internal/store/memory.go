package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/models"
)

// Memory is an in-process Store. Notes are copied on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	notes  map[string]*models.Note
	titles map[string]string
	now    func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		notes:  make(map[string]*models.Note),
		titles: make(map[string]string),
		now:    time.Now,
	}
}

func (m *Memory) AllNotes(_ context.Context) (map[string]*models.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*models.Note, len(m.notes))
	for id, n := range m.notes {
		out[id] = n.Clone()
	}
	return out, nil
}

func (m *Memory) GetNote(_ context.Context, id string) (*models.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
	}
	return n.Clone(), nil
}

func (m *Memory) FindByTitle(_ context.Context, title string) (*models.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.titles[TitleKey(title)]
	if !ok {
		return nil, fmt.Errorf("store: title %q: %w", title, apperr.ErrNotFound)
	}
	return m.notes[id].Clone(), nil
}

func (m *Memory) ListNotes(_ context.Context) ([]models.NoteMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.NoteMetadata, 0, len(m.notes))
	for _, n := range m.notes {
		out = append(out, metadataOf(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notes), nil
}

func (m *Memory) CreateNote(_ context.Context, n *models.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[n.ID]; ok {
		return fmt.Errorf("store: note %s: %w", n.ID, apperr.ErrAlreadyExists)
	}
	key := TitleKey(n.Title)
	if _, ok := m.titles[key]; ok {
		return fmt.Errorf("store: title %q: %w", n.Title, apperr.ErrDuplicateTitle)
	}
	c := n.Clone()
	if c.Content == nil {
		c.Content = doc.New()
	}
	now := m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.notes[c.ID] = c
	m.titles[key] = c.ID
	return nil
}

func (m *Memory) ApplyContentChange(_ context.Context, id string, content *doc.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
	}
	n.Content = content.Clone()
	n.UpdatedAt = m.now()
	return nil
}

func (m *Memory) ApplyTitleChange(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
	}
	key := TitleKey(title)
	if owner, taken := m.titles[key]; taken && owner != id {
		return fmt.Errorf("store: title %q: %w", title, apperr.ErrDuplicateTitle)
	}
	delete(m.titles, TitleKey(n.Title))
	m.titles[key] = id
	n.Title = title
	n.UpdatedAt = m.now()
	return nil
}

func (m *Memory) DeleteNote(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
	}
	delete(m.titles, TitleKey(n.Title))
	delete(m.notes, id)
	return nil
}

// Search does a case-insensitive substring match over titles and text.
func (m *Memory) Search(_ context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(query)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SearchResult
	for _, n := range m.notes {
		body := n.Content.PlainText()
		if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(body), q) {
			out = append(out, SearchResult{ID: n.ID, Title: n.Title, Snippet: snippet(body)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func metadataOf(n *models.Note) models.NoteMetadata {
	sum := ""
	if b, err := doc.Encode(n.Content); err == nil {
		sum = checksum.Sum(b)
	}
	return models.NoteMetadata{ID: n.ID, Title: n.Title, Checksum: sum, UpdatedAt: n.UpdatedAt}
}

func snippet(body string) string {
	r := []rune(body)
	if len(r) > 200 {
		r = r[:200]
	}
	return string(r)
}
