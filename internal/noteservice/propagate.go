package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/refindex"
)

// Batch reports the notes rewritten by a rename or delete. A note whose
// store write failed keeps its rewritten document in memory until Retry
// persists it.
type Batch struct {
	Updated []string
	Failed  []*apperr.PersistenceError
}

// FailedIDs returns the ids of the notes that still need a Retry.
func (b *Batch) FailedIDs() []string {
	ids := make([]string, len(b.Failed))
	for i, f := range b.Failed {
		ids[i] = f.NoteID
	}
	return ids
}

// Err joins the per-note failures, or returns nil.
func (b *Batch) Err() error {
	if len(b.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(b.Failed))
	for i, f := range b.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// RenameNote changes a note's title and points every link to it at the new
// title. The title change itself must succeed before any link is touched.
func (s *Service) RenameNote(ctx context.Context, id, title string) (*Batch, error) {
	title, err := checkTitle(title)
	if err != nil {
		return nil, err
	}

	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	old := n.Title
	if old == title {
		return &Batch{}, nil
	}
	if err := s.store.ApplyTitleChange(ctx, id, title); err != nil {
		return nil, fmt.Errorf("noteservice: rename %s: %w", id, err)
	}
	s.notify("updated", id)

	batch, err := s.propagate(ctx, "rename", func(d *doc.Document) []doc.Operation {
		return refindex.RenameOps(d, id, old, title)
	})
	s.index.Touch()
	return batch, err
}

// DeleteNote removes a note. Links to it become plain text and references
// to its blocks become their last-known text.
func (s *Service) DeleteNote(ctx context.Context, id string) (*Batch, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	blocks := blockTexts(n.Content)
	if err := s.store.DeleteNote(ctx, id); err != nil {
		return nil, fmt.Errorf("noteservice: delete %s: %w", id, err)
	}
	s.CloseSession(id)
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
	s.ids.Forget(id)
	s.notify("deleted", id)

	batch, err := s.propagate(ctx, "delete", func(d *doc.Document) []doc.Operation {
		return refindex.DeleteOps(d, id, blocks)
	})
	s.index.Touch()
	return batch, err
}

// Retry persists the rewritten documents of the given notes again. With no
// ids every pending note is retried.
func (s *Service) Retry(ctx context.Context, ids ...string) (*Batch, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	s.mu.Lock()
	if len(ids) == 0 {
		ids = sortedKeys(s.pending)
	}
	s.mu.Unlock()

	batch := &Batch{}
	for _, id := range ids {
		err := s.retryOne(ctx, id)
		if err != nil {
			var pe *apperr.PersistenceError
			if !errors.As(err, &pe) {
				pe = &apperr.PersistenceError{NoteID: id, Field: "content", Err: err}
			}
			batch.Failed = append(batch.Failed, pe)
			continue
		}
		batch.Updated = append(batch.Updated, id)
	}
	if len(batch.Failed) > 0 {
		s.logger.Warn("noteservice: retry incomplete",
			slog.Int("updated", len(batch.Updated)), slog.Int("failed", len(batch.Failed)))
	}
	return batch, nil
}

func (s *Service) retryOne(ctx context.Context, id string) error {
	sn := s.lockSession(id)
	if sn != nil {
		defer sn.mu.Unlock()
	}
	s.mu.Lock()
	content, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("noteservice: nothing pending for %s: %w", id, apperr.ErrNotFound)
	}
	// An open session already holds the rewrite plus any later edits.
	if sn != nil && !sn.closed {
		content = sn.sess.Document()
	}
	return s.persist(ctx, id, content)
}

// Pending returns the ids of notes with rewrites that are not persisted.
func (s *Service) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.pending)
}

// propagate applies the operations build computes to every note. The
// snapshot only names the notes; each is rewritten from its current
// content. Open sessions receive the operations as external operations so
// their cursors follow.
func (s *Service) propagate(ctx context.Context, reason string, build func(d *doc.Document) []doc.Operation) (*Batch, error) {
	notes, err := s.store.AllNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: %s: snapshot: %w", reason, err)
	}

	batch := &Batch{}
	for _, id := range sortedKeys(notes) {
		changed, err := s.rewrite(ctx, id, build)
		switch {
		case err != nil:
			var pe *apperr.PersistenceError
			if !errors.As(err, &pe) {
				pe = &apperr.PersistenceError{NoteID: id, Field: "content", Err: err}
			}
			batch.Failed = append(batch.Failed, pe)
		case changed:
			batch.Updated = append(batch.Updated, id)
		}
	}

	attrs := []any{
		slog.String("reason", reason),
		slog.Int("updated", len(batch.Updated)),
		slog.Int("failed", len(batch.Failed)),
	}
	if len(batch.Failed) > 0 {
		s.logger.Warn("noteservice: propagation incomplete", attrs...)
	} else {
		s.logger.Info("noteservice: propagated", attrs...)
	}
	return batch, nil
}

// rewrite applies build to one note and persists it. A failed write leaves
// the rewritten document pending.
func (s *Service) rewrite(ctx context.Context, id string, build func(d *doc.Document) []doc.Operation) (bool, error) {
	for {
		if sn := s.lockSession(id); sn != nil {
			if !sn.closed {
				changed, err := s.rewriteSession(ctx, id, sn, build)
				sn.mu.Unlock()
				return changed, err
			}
			sn.mu.Unlock()
		}
		changed, done, err := s.rewriteStored(ctx, id, build)
		if done {
			return changed, err
		}
	}
}

// rewriteSession routes the operations through an open session so its
// cursor follows. The caller holds sn.mu.
func (s *Service) rewriteSession(ctx context.Context, id string, sn *openSession, build func(d *doc.Document) []doc.Operation) (bool, error) {
	res, err := sn.sess.ApplyExternal(ctx, build)
	if err != nil || !res.Changed {
		return false, err
	}
	if err := s.persist(ctx, id, sn.sess.Document()); err != nil {
		s.mu.Lock()
		s.pending[id] = sn.sess.Document()
		s.mu.Unlock()
		return false, err
	}
	return true, nil
}

// rewriteStored rewrites the current stored document of a note that has no
// session. s.mu is held from the session check to the write, so no session
// can open from the old content in between. done is false when a session
// opened before the check; the caller then goes through it instead.
func (s *Service) rewriteStored(ctx context.Context, id string, build func(d *doc.Document) []doc.Operation) (changed, done bool, err error) {
	s.mu.Lock()
	if _, open := s.sessions[id]; open {
		s.mu.Unlock()
		return false, false, nil
	}

	content, err := s.latest(ctx, id)
	if err != nil || content == nil {
		s.mu.Unlock()
		return false, true, err
	}
	content = content.Clone()
	content.Bind(s.ids.Scope(id))
	ops := build(content)
	if len(ops) == 0 {
		s.mu.Unlock()
		return false, true, nil
	}
	for _, op := range ops {
		if err := content.Apply(op); err != nil {
			s.mu.Unlock()
			return false, true, fmt.Errorf("noteservice: rewrite %s: %w", id, err)
		}
	}

	if err := s.store.ApplyContentChange(ctx, id, content); err != nil {
		s.pending[id] = content
		s.mu.Unlock()
		return false, true, &apperr.PersistenceError{NoteID: id, Field: "content", Err: err}
	}
	delete(s.pending, id)
	s.mu.Unlock()
	s.index.Touch()
	s.notify("updated", id)
	return true, true, nil
}

// latest returns the pending rewrite of a note, or else its stored
// document. A note deleted meanwhile gives nil. The caller holds s.mu.
func (s *Service) latest(ctx context.Context, id string) (*doc.Document, error) {
	if p, ok := s.pending[id]; ok {
		return p, nil
	}
	n, err := s.store.GetNote(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("noteservice: rewrite %s: %w", id, err)
	}
	return n.Content, nil
}

// blockTexts maps the ids of d's blocks to their text; an image maps to its
// caption.
func blockTexts(d *doc.Document) map[string]string {
	out := make(map[string]string)
	if d == nil {
		return out
	}
	d.Walk(func(n *doc.Node, _ doc.Path) bool {
		if n.IsText() {
			return false
		}
		if n.ID != "" {
			if n.Type == doc.KindImage {
				out[n.ID] = n.Caption
			} else {
				out[n.ID] = n.PlainText()
			}
		}
		return true
	})
	return out
}
