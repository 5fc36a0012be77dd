package editor

import (
	"context"
	"fmt"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/doc"
)

// Tx is the view interceptors get of a session while it handles one input.
// Operations applied through it are recorded and move the cursor.
type Tx struct {
	ctx      context.Context
	s        *Session
	ops      []doc.Operation
	warnings []string
	// lost is set when the cursor's leaf was removed; the cursor then holds
	// the removed path until it is clamped.
	lost bool
}

func (tx *Tx) Context() context.Context { return tx.ctx }

// NoteID returns the id of the note being edited.
func (tx *Tx) NoteID() string { return tx.s.noteID }

// Doc returns the live document. Callers must not mutate it directly.
func (tx *Tx) Doc() *doc.Document { return tx.s.doc }

// Cursor returns the collapsed selection.
func (tx *Tx) Cursor() doc.Point {
	return doc.Point{Path: tx.s.cursor.Path.Copy(), Offset: tx.s.cursor.Offset}
}

// SetCursor moves the selection. It is clamped to a valid position once the
// input is done.
func (tx *Tx) SetCursor(pt doc.Point) {
	tx.s.cursor = doc.Point{Path: pt.Path.Copy(), Offset: pt.Offset}
	tx.lost = false
}

// Warn records a user-visible warning on the result.
func (tx *Tx) Warn(msg string) {
	tx.warnings = append(tx.warnings, msg)
}

// Ops returns the operations applied so far.
func (tx *Tx) Ops() []doc.Operation { return tx.ops }

// Apply applies ops in order and stops at the first failure.
func (tx *Tx) Apply(ops ...doc.Operation) error {
	for _, op := range ops {
		if err := tx.s.doc.Apply(op); err != nil {
			return fmt.Errorf("editor: %s: %w", op.Type(), err)
		}
		tx.ops = append(tx.ops, op)
		tx.moveCursor(op)
	}
	return nil
}

func (tx *Tx) moveCursor(op doc.Operation) {
	if tx.lost {
		if p, ok := op.AdjustPath(tx.s.cursor.Path); ok {
			tx.s.cursor.Path = p
		}
		return
	}
	pt, ok := op.AdjustPoint(tx.s.cursor, doc.Forward)
	if ok {
		tx.s.cursor = pt
		return
	}
	if rm, isRemove := op.(*doc.RemoveNode); isRemove {
		tx.s.cursor = doc.Point{Path: rm.Path.Copy()}
	}
	tx.lost = true
}

// Leaf returns the text leaf holding the cursor.
func (tx *Tx) Leaf() (*doc.Node, error) {
	n, err := tx.s.doc.Get(tx.s.cursor.Path)
	if err != nil {
		return nil, err
	}
	if !n.IsText() {
		return nil, fmt.Errorf("%w: cursor %s is not on text", apperr.ErrInvalidPath, tx.s.cursor.Path)
	}
	return n, nil
}

// Block returns the block holding the cursor.
func (tx *Tx) Block() (*doc.Node, doc.Path, error) {
	return tx.s.doc.Block(tx.s.cursor.Path)
}

// InCodeBlock reports whether the cursor is inside a code block.
func (tx *Tx) InCodeBlock() bool {
	_, _, ok := tx.s.doc.Above(tx.s.cursor.Path, func(n *doc.Node) bool {
		return n.Type == doc.KindCodeBlock
	})
	return ok
}

// TextBefore returns the text of the cursor's leaf up to the cursor.
func (tx *Tx) TextBefore() string {
	leaf, err := tx.Leaf()
	if err != nil || tx.s.cursor.Offset > len(leaf.Text) {
		return ""
	}
	return leaf.Text[:tx.s.cursor.Offset]
}

// AtBlockStart reports whether no visible text precedes the cursor in its
// block.
func (tx *Tx) AtBlockStart() bool {
	cur := tx.s.cursor
	if cur.Offset > 0 {
		return false
	}
	_, bp, err := tx.Block()
	if err != nil {
		return false
	}
	leaves, paths, _ := tx.s.doc.Texts(bp)
	for i, l := range leaves {
		if paths[i].Compare(cur.Path) >= 0 {
			break
		}
		if l.Text != "" {
			return false
		}
	}
	return true
}

// AtBlockEnd reports whether no visible text follows the cursor in its
// block.
func (tx *Tx) AtBlockEnd() bool {
	cur := tx.s.cursor
	leaf, err := tx.Leaf()
	if err != nil || cur.Offset < len(leaf.Text) {
		return false
	}
	_, bp, err := tx.Block()
	if err != nil {
		return false
	}
	leaves, paths, _ := tx.s.doc.Texts(bp)
	for i, l := range leaves {
		if paths[i].Compare(cur.Path) > 0 && l.Text != "" {
			return false
		}
	}
	return true
}
