// Package noteservice coordinates the note store, the id registry, the
// reference index and the editing sessions. Every outer surface (REST, MCP,
// CLI, importer) goes through it.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/autoformat"
	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/editor"
	"github.com/starford/notegraph/internal/markdown"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/nodeid"
	"github.com/starford/notegraph/internal/refindex"
	"github.com/starford/notegraph/internal/store"
)

const maxTitleLen = 200

// Notifier receives note change events. The SSE broker implements it.
type Notifier interface {
	PublishNoteEvent(kind, noteID string)
}

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Content   *doc.Document       `json:"content"`
	Markdown  string              `json:"markdown"`
	Checksum  string              `json:"checksum"`
	Backlinks []refindex.Backlink `json:"backlinks"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNotifier publishes created, updated and deleted events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMaxNotes caps the corpus size. Zero means unlimited.
func WithMaxNotes(n int) Option {
	return func(s *Service) { s.maxNotes = n }
}

// Service coordinates storage, identity, references and editing.
type Service struct {
	store    store.Store
	ids      *nodeid.Registry
	index    *refindex.Index
	logger   *slog.Logger
	notifier Notifier
	maxNotes int

	createMu sync.Mutex
	batchMu  sync.Mutex

	mu       sync.Mutex
	sessions map[string]*openSession
	pending  map[string]*doc.Document
}

// openSession serialises an edit with the store write that follows it.
type openSession struct {
	mu     sync.Mutex
	sess   *editor.Session
	closed bool
}

// NewService creates a note service. Call Load before serving requests.
func NewService(st store.Store, ids *nodeid.Registry, idx *refindex.Index, opts ...Option) *Service {
	s := &Service{
		store:    st,
		ids:      ids,
		index:    idx,
		logger:   slog.Default(),
		sessions: make(map[string]*openSession),
		pending:  make(map[string]*doc.Document),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Index returns the reference index the service keeps current.
func (s *Service) Index() *refindex.Index { return s.index }

// Load registers every node id of the corpus, persists the notes whose
// duplicate ids had to be repaired and builds the reference index.
func (s *Service) Load(ctx context.Context) error {
	notes, err := s.store.AllNotes(ctx)
	if err != nil {
		return fmt.Errorf("noteservice: load: %w", err)
	}
	docs := contents(notes)
	repaired := s.ids.Load(docs)
	for _, id := range sortedKeys(repaired) {
		if err := s.store.ApplyContentChange(ctx, id, docs[id]); err != nil {
			return &apperr.PersistenceError{NoteID: id, Field: "content", Err: err}
		}
	}
	if err := s.index.Refresh(ctx); err != nil {
		return fmt.Errorf("noteservice: load: %w", err)
	}
	s.logger.Info("noteservice: loaded",
		slog.Int("notes", len(notes)),
		slog.Int("ids", s.ids.Len()),
		slog.Int("repaired", len(repaired)))
	return nil
}

// GetNote returns a note with its markdown rendering and linked backlinks.
func (s *Service) GetNote(ctx context.Context, id string) (*NoteDetail, error) {
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(n), nil
}

// FindByTitle returns the note titled title, compared case-insensitively.
func (s *Service) FindByTitle(ctx context.Context, title string) (*NoteDetail, error) {
	n, err := s.store.FindByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(n), nil
}

func (s *Service) ListNotes(ctx context.Context) ([]models.NoteMetadata, error) {
	return s.store.ListNotes(ctx)
}

// Search delegates full-text search to the store.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	return s.store.Search(ctx, query, limit)
}

// CreateNote stores a new note. Node ids of content that collide with the
// corpus are replaced and missing ids are assigned.
func (s *Service) CreateNote(ctx context.Context, title string, content *doc.Document) (*NoteDetail, error) {
	title, err := checkTitle(title)
	if err != nil {
		return nil, err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if s.maxNotes > 0 {
		count, err := s.store.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("noteservice: count: %w", err)
		}
		if count >= s.maxNotes {
			return nil, fmt.Errorf("noteservice: create %q: %w", title, apperr.ErrNoteLimit)
		}
	}

	if content == nil {
		content = doc.FromNodes(doc.Paragraph(""))
	} else {
		if err := content.Validate(); err != nil {
			return nil, fmt.Errorf("noteservice: create %q: %w", title, err)
		}
		content = content.Clone()
	}
	id := uuid.NewString()
	s.ids.Sync(id, content)

	n := &models.Note{ID: id, Title: title, Content: content}
	if err := s.store.CreateNote(ctx, n); err != nil {
		s.ids.Forget(id)
		return nil, fmt.Errorf("noteservice: create %q: %w", title, err)
	}
	s.index.Touch()
	s.notify("created", id)
	s.logger.Debug("noteservice: note created", slog.String("note", id), slog.String("title", title))
	return s.GetNote(ctx, id)
}

// LinkTarget returns the note a typed link points to, creating it when no
// note carries the title yet.
func (s *Service) LinkTarget(ctx context.Context, title string) (models.NoteMetadata, error) {
	n, err := s.store.FindByTitle(ctx, title)
	if errors.Is(err, apperr.ErrNotFound) {
		var created *NoteDetail
		created, err = s.CreateNote(ctx, title, nil)
		if err == nil {
			return models.NoteMetadata{ID: created.ID, Title: created.Title, UpdatedAt: created.UpdatedAt}, nil
		}
		if errors.Is(err, apperr.ErrDuplicateTitle) {
			n, err = s.store.FindByTitle(ctx, title)
		}
	}
	if err != nil {
		return models.NoteMetadata{}, err
	}
	return models.NoteMetadata{ID: n.ID, Title: n.Title, UpdatedAt: n.UpdatedAt}, nil
}

// ReplaceContent overwrites a note's document. A non-empty ifMatch must
// equal the current checksum. An open session is discarded and reopened from
// the new content on the next edit.
func (s *Service) ReplaceContent(ctx context.Context, id string, content *doc.Document, ifMatch string) (*NoteDetail, error) {
	if err := content.Validate(); err != nil {
		return nil, fmt.Errorf("noteservice: replace %s: %w", id, err)
	}
	sn := s.lockSession(id)
	if sn != nil {
		defer sn.mu.Unlock()
	}

	existing, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != contentSum(existing.Content) {
		return nil, fmt.Errorf("noteservice: note %s changed: %w", id, apperr.ErrConflict)
	}

	content = content.Clone()
	if repaired := s.ids.Sync(id, content); repaired > 0 {
		s.logger.Info("noteservice: replaced duplicate ids",
			slog.String("note", id), slog.Int("count", repaired))
	}
	if err := s.persist(ctx, id, content); err != nil {
		return nil, err
	}
	if sn != nil {
		sn.closed = true
		s.dropSession(id)
	}
	return s.GetNote(ctx, id)
}

// Session returns the editing session of a note, opening it on first use.
func (s *Service) Session(ctx context.Context, id string) (*editor.Session, error) {
	sn, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return sn.sess, nil
}

// Edit runs fn against the note's session and persists the result when the
// document changed. Edits of one note are serialised.
func (s *Service) Edit(ctx context.Context, id string, fn func(ctx context.Context, sess *editor.Session) (editor.Result, error)) (editor.Result, error) {
	var sn *openSession
	for {
		var err error
		if sn, err = s.session(ctx, id); err != nil {
			return editor.Result{}, err
		}
		sn.mu.Lock()
		if !sn.closed {
			break
		}
		sn.mu.Unlock()
	}
	defer sn.mu.Unlock()

	res, err := fn(ctx, sn.sess)
	if err != nil {
		return res, err
	}
	if res.Changed {
		if err := s.persist(ctx, id, sn.sess.Document()); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Service) session(ctx context.Context, id string) (*openSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sn, ok := s.sessions[id]; ok {
		return sn, nil
	}

	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	content := n.Content
	if content == nil {
		content = doc.New()
	}
	stored := content.Clone()
	content.Bind(s.ids.Scope(id))

	sess := editor.NewSession(id, content,
		editor.WithBefore(editor.Breakout()),
		editor.WithAfter(autoformat.New(s, s.index, autoformat.WithLogger(s.logger))),
		editor.WithFragmentParser(fragmentParser{s: s}),
		editor.WithLogger(s.logger),
	)
	if current := sess.Document(); !current.Equal(stored) {
		if err := s.store.ApplyContentChange(ctx, id, current); err != nil {
			return nil, &apperr.PersistenceError{NoteID: id, Field: "content", Err: err}
		}
		s.index.Touch()
	}

	sn := &openSession{sess: sess}
	s.sessions[id] = sn
	s.logger.Debug("noteservice: session opened", slog.String("note", id))
	return sn, nil
}

// lockSession locks and returns the open session of id, or nil.
func (s *Service) lockSession(id string) *openSession {
	s.mu.Lock()
	sn := s.sessions[id]
	s.mu.Unlock()
	if sn != nil {
		sn.mu.Lock()
	}
	return sn
}

// CloseSession forgets the session of a note. Its document is already
// persisted.
func (s *Service) CloseSession(id string) {
	if sn := s.lockSession(id); sn != nil {
		sn.closed = true
		s.dropSession(id)
		sn.mu.Unlock()
	}
}

func (s *Service) dropSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// persist writes content and clears anything pending for the note.
func (s *Service) persist(ctx context.Context, id string, content *doc.Document) error {
	if err := s.store.ApplyContentChange(ctx, id, content); err != nil {
		return &apperr.PersistenceError{NoteID: id, Field: "content", Err: err}
	}
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
	s.index.Touch()
	s.notify("updated", id)
	return nil
}

func (s *Service) notify(kind, id string) {
	if s.notifier != nil {
		s.notifier.PublishNoteEvent(kind, id)
	}
}

func (s *Service) buildNoteDetail(n *models.Note) *NoteDetail {
	content := n.Content
	if content == nil {
		content = doc.New()
	}
	return &NoteDetail{
		ID:        n.ID,
		Title:     n.Title,
		Content:   content,
		Markdown:  markdown.Serialize(content, markdown.KeepBlockReferences()),
		Checksum:  contentSum(content),
		Backlinks: nonNilSlice(s.index.Linked(n.ID)),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func checkTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	err := validation.Validate(title,
		validation.Required,
		validation.RuneLength(1, maxTitleLen),
		validation.By(func(any) error {
			// "|" separates a wiki link's title from its text.
			if strings.ContainsAny(title, "[]|\n") {
				return errors.New("must not contain brackets, pipes or line breaks")
			}
			return nil
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: title %v", apperr.ErrInvalidInput, err)
	}
	return title, nil
}

// contentSum is the checksum clients send back as If-Match.
func contentSum(d *doc.Document) string {
	if d == nil {
		d = doc.New()
	}
	data, err := doc.Encode(d)
	if err != nil {
		return ""
	}
	return checksum.Sum(data)
}

func contents(notes map[string]*models.Note) map[string]*doc.Document {
	docs := make(map[string]*doc.Document, len(notes))
	for id, n := range notes {
		if n.Content == nil {
			n.Content = doc.New()
		}
		docs[id] = n.Content
	}
	return docs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
