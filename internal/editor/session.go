package editor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/doc"
)

// maxLog bounds the operation log kept per session.
const maxLog = 4096

// FragmentParser turns pasted markdown into blocks.
type FragmentParser interface {
	ParseFragment(text string) []*doc.Node
}

// Option configures a Session.
type Option func(*Session)

// WithBefore appends interceptors that run before the default edit.
func WithBefore(is ...Interceptor) Option {
	return func(s *Session) { s.before = append(s.before, is...) }
}

// WithAfter appends interceptors that run after the default edit.
func WithAfter(is ...Interceptor) Option {
	return func(s *Session) { s.after = append(s.after, is...) }
}

// WithFragmentParser enables markdown paste.
func WithFragmentParser(p FragmentParser) Option {
	return func(s *Session) { s.parser = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Result describes what one input did to the document.
type Result struct {
	Ops      []doc.Operation
	Warnings []string
	Changed  bool
}

// Session owns one note's document and cursor. Inputs are applied one at a
// time under the session lock.
type Session struct {
	mu     sync.Mutex
	noteID string
	doc    *doc.Document
	cursor doc.Point
	log    []doc.Operation

	before []Interceptor
	after  []Interceptor
	parser FragmentParser
	logger *slog.Logger
}

// NewSession starts editing d, which should already be bound to the note's
// identifier. The document is normalised and the cursor placed at its start.
func NewSession(noteID string, d *doc.Document, opts ...Option) *Session {
	s := &Session{noteID: noteID, doc: d, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	tx := &Tx{ctx: context.Background(), s: s, lost: true}
	if err := normalize(tx); err != nil {
		s.logger.Warn("editor: initial normalisation failed",
			slog.String("note", noteID), slog.String("error", err.Error()))
	}
	if start, err := s.doc.Start(doc.Path{0}); err == nil {
		tx.SetCursor(start)
	}
	clampCursor(tx)
	return s
}

// NoteID returns the id of the edited note.
func (s *Session) NoteID() string { return s.noteID }

// Document returns a copy of the current tree.
func (s *Session) Document() *doc.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Cursor returns the current collapsed selection.
func (s *Session) Cursor() doc.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return doc.Point{Path: s.cursor.Path.Copy(), Offset: s.cursor.Offset}
}

// Log returns the operations applied by this session, oldest first.
func (s *Session) Log() []doc.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}

// Select moves the cursor to pt, which must address a text leaf.
func (s *Session) Select(pt doc.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.doc.Get(pt.Path)
	if err != nil {
		return fmt.Errorf("editor: select: %w", err)
	}
	if !n.IsText() || pt.Offset < 0 || pt.Offset > len(n.Text) {
		return fmt.Errorf("editor: select %s:%d: %w", pt.Path, pt.Offset, apperr.ErrInvalidPath)
	}
	s.cursor = doc.Point{Path: pt.Path.Copy(), Offset: pt.Offset}
	return nil
}

func (s *Session) InsertText(ctx context.Context, text string) (Result, error) {
	return s.handle(ctx, Input{Kind: InputText, Text: text})
}

// InsertData pastes text. Multi-line text is parsed as markdown when a
// FragmentParser is configured.
func (s *Session) InsertData(ctx context.Context, text string) (Result, error) {
	return s.handle(ctx, Input{Kind: InputData, Text: text})
}

// InsertFragment pastes nodes. Ids already used elsewhere are replaced.
func (s *Session) InsertFragment(ctx context.Context, nodes []*doc.Node) (Result, error) {
	return s.handle(ctx, Input{Kind: InputFragment, Nodes: nodes})
}

func (s *Session) InsertBreak(ctx context.Context) (Result, error) {
	return s.handle(ctx, Input{Kind: InputBreak})
}

func (s *Session) DeleteBackward(ctx context.Context) (Result, error) {
	return s.handle(ctx, Input{Kind: InputDeleteBackward})
}

// ApplyExternal applies operations computed by build against the current
// tree, bypassing the interceptors. Rename and delete propagation use it.
func (s *Session) ApplyExternal(ctx context.Context, build func(d *doc.Document) []doc.Operation) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, Input{Kind: InputExternal}, func(tx *Tx) error {
		return tx.Apply(build(s.doc)...)
	})
}

func (s *Session) handle(ctx context.Context, in Input) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, in, func(tx *Tx) error { return s.dispatch(tx, in) })
}

// run executes edit and normalisation as one unit. On failure the tree and
// cursor are restored and the input has no effect.
func (s *Session) run(ctx context.Context, in Input, edit func(tx *Tx) error) (Result, error) {
	snapshot, cursor := s.doc.Clone(), s.cursor
	tx := &Tx{ctx: ctx, s: s}

	err := edit(tx)
	if err == nil {
		err = normalize(tx)
	}
	if err != nil {
		s.restore(snapshot, cursor)
		s.logger.Warn("editor: input rejected",
			slog.String("note", s.noteID),
			slog.String("input", in.Kind.String()),
			slog.String("error", err.Error()))
		return Result{}, err
	}
	clampCursor(tx)

	s.log = append(s.log, tx.ops...)
	if over := len(s.log) - maxLog; over > 0 {
		s.log = slices.Delete(s.log, 0, over)
	}
	return Result{Ops: tx.ops, Warnings: tx.warnings, Changed: len(tx.ops) > 0}, nil
}

func (s *Session) dispatch(tx *Tx, in Input) error {
	for _, ic := range s.before {
		handled, err := ic.Intercept(tx, in)
		if err != nil {
			return fmt.Errorf("editor: %s: %w", ic.Name(), err)
		}
		if handled {
			return nil
		}
	}
	if err := s.defaultEdit(tx, in); err != nil {
		return err
	}
	for _, ic := range s.after {
		handled, err := ic.Intercept(tx, in)
		if err != nil {
			return fmt.Errorf("editor: %s: %w", ic.Name(), err)
		}
		if handled {
			s.logger.Debug("editor: input intercepted",
				slog.String("note", s.noteID), slog.String("by", ic.Name()))
			return nil
		}
	}
	return nil
}

// restore puts snapshot back in place, moving id ownership along with it.
func (s *Session) restore(snapshot *doc.Document, cursor doc.Point) {
	ids := s.doc.Identifier()
	if ids != nil {
		for _, c := range s.doc.Children {
			ids.Release(c)
		}
		for _, c := range snapshot.Children {
			ids.Claim(c)
		}
	}
	snapshot.Bind(ids)
	s.doc = snapshot
	s.cursor = cursor
}

// clampCursor moves the cursor onto the nearest text leaf at or before it.
func clampCursor(tx *Tx) {
	d, cur := tx.s.doc, tx.s.cursor
	if n, err := d.Get(cur.Path); err == nil && n.IsText() && !tx.lost {
		tx.s.cursor.Offset = min(max(cur.Offset, 0), len(n.Text))
		return
	}

	var leaves []*doc.Node
	var paths []doc.Path
	d.Walk(func(n *doc.Node, p doc.Path) bool {
		if n.IsText() {
			leaves = append(leaves, n)
			paths = append(paths, p.Copy())
		}
		return true
	})
	if len(leaves) == 0 {
		tx.s.cursor = doc.Point{Path: doc.Path{0}}
		return
	}
	pick := 0
	for i, p := range paths {
		if p.Compare(cur.Path) > 0 {
			break
		}
		pick = i
	}
	offset := 0
	if paths[pick].Compare(cur.Path) < 0 {
		offset = len(leaves[pick].Text)
	}
	tx.s.cursor = doc.Point{Path: paths[pick], Offset: offset}
	tx.lost = false
}
