package editor

import "github.com/starford/notegraph/internal/doc"

// Breakout returns the before-interceptor that lets the cursor leave
// structured blocks. Enter on an empty list or check item exits the list,
// Enter at the end of a heading or on a void block starts a paragraph, and
// Backspace at the start of any other block kind turns it into a paragraph.
func Breakout() Interceptor {
	return Func("breakout", func(tx *Tx, in Input) (bool, error) {
		switch in.Kind {
		case InputBreak:
			return breakOnEnter(tx)
		case InputDeleteBackward:
			return breakOnBackspace(tx)
		}
		return false, nil
	})
}

func breakOnEnter(tx *Tx) (bool, error) {
	b, bp, err := tx.Block()
	if err != nil {
		return false, err
	}
	switch {
	case isItem(b) && isEmpty(b):
		return true, liftItem(tx, bp)
	case b.Type.Heading() > 0 && tx.AtBlockEnd():
		return true, insertParagraphAfter(tx, bp, "")
	case b.Type.Void():
		return true, insertParagraphAfter(tx, bp, "")
	}
	return false, nil
}

func breakOnBackspace(tx *Tx) (bool, error) {
	b, bp, err := tx.Block()
	if err != nil {
		return false, err
	}
	if b.Type == doc.KindParagraph || !tx.AtBlockStart() {
		return false, nil
	}
	switch {
	case b.Type.Void():
		return true, tx.Apply(&doc.RemoveNode{Path: bp})
	case isItem(b):
		return true, liftItem(tx, bp)
	}
	return true, tx.Apply(&doc.SetNode{Path: bp, Props: toParagraph()})
}

func isItem(n *doc.Node) bool {
	return n.Type == doc.KindListItem || n.Type == doc.KindCheckListItem
}

func toParagraph() doc.Props {
	return doc.Props{Type: doc.Ptr(doc.KindParagraph), Checked: doc.Ptr(false)}
}

// liftItem moves the item at bp one level out. Items of a top-level list, and
// check items outside any list, become paragraphs. Items following it stay in
// a list of their own.
func liftItem(tx *Tx, bp doc.Path) error {
	d := tx.Doc()
	if len(bp) == 1 {
		return tx.Apply(&doc.SetNode{Path: bp, Props: toParagraph()})
	}
	lp := bp.Parent()
	list, err := d.Get(lp)
	if err != nil {
		return err
	}
	var ops []doc.Operation
	nested := len(lp) > 1
	if nested {
		parent, err := d.Get(lp.Parent())
		if err != nil {
			return err
		}
		nested = parent.Type.List()
	}
	if !nested {
		ops = append(ops, &doc.SetNode{Path: bp.Copy(), Props: toParagraph()})
	}
	if k := bp.Last(); k+1 < len(list.Children) {
		ops = append(ops, &doc.SplitNode{Path: lp.Copy(), Position: k + 1})
	}
	ops = append(ops, &doc.MoveNode{Path: bp.Copy(), NewPath: lp.Next()})
	return tx.Apply(ops...)
}

// Unwrap lifts the cursor's block out of every list around it. The block
// ends up at the top level as a paragraph.
func (tx *Tx) Unwrap() error {
	for range maxFixes {
		b, bp, err := tx.Block()
		if err != nil {
			return err
		}
		if len(bp) == 1 {
			if isItem(b) {
				return tx.Apply(&doc.SetNode{Path: bp, Props: toParagraph()})
			}
			return nil
		}
		parent, err := tx.Doc().Get(bp.Parent())
		if err != nil {
			return err
		}
		if !parent.Type.List() {
			return nil
		}
		if err := liftItem(tx, bp); err != nil {
			return err
		}
	}
	return errUnsettled
}
