package editor

import (
	"strings"
	"unicode/utf8"

	"github.com/starford/notegraph/internal/doc"
)

func (s *Session) defaultEdit(tx *Tx, in Input) error {
	switch in.Kind {
	case InputText:
		return insertText(tx, in.Text)
	case InputData:
		return s.insertData(tx, in.Text)
	case InputFragment:
		return insertFragment(tx, in.Nodes)
	case InputBreak:
		return insertBreak(tx)
	case InputDeleteBackward:
		return deleteBackward(tx)
	}
	return nil
}

func insertText(tx *Tx, text string) error {
	if text == "" {
		return nil
	}
	b, bp, err := tx.Block()
	if err != nil {
		return err
	}
	if b.Type.Void() {
		return insertParagraphAfter(tx, bp, text)
	}
	cur := tx.Cursor()
	return tx.Apply(&doc.InsertText{Path: cur.Path, Offset: cur.Offset, Text: text})
}

// insertParagraphAfter adds a paragraph holding text after the block at bp
// and puts the cursor at its end.
func insertParagraphAfter(tx *Tx, bp doc.Path, text string) error {
	at := bp.Next()
	if err := tx.Apply(&doc.InsertNode{Path: at, Node: doc.Paragraph(text)}); err != nil {
		return err
	}
	tx.SetCursor(doc.Point{Path: at.Child(0), Offset: len(text)})
	return nil
}

func (s *Session) insertData(tx *Tx, text string) error {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if tx.InCodeBlock() || !strings.Contains(text, "\n") {
		return insertText(tx, text)
	}
	if s.parser != nil {
		return insertFragment(tx, s.parser.ParseFragment(text))
	}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			if err := insertBreak(tx); err != nil {
				return err
			}
		}
		if err := insertText(tx, line); err != nil {
			return err
		}
	}
	return nil
}

func insertFragment(tx *Tx, nodes []*doc.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	if tx.InCodeBlock() {
		lines := make([]string, len(nodes))
		for i, n := range nodes {
			lines[i] = n.PlainText()
		}
		return insertText(tx, strings.Join(lines, "\n"))
	}
	if len(nodes) == 1 && holdsInline(nodes[0]) {
		return insertInline(tx, nodes[0].Children)
	}
	return insertBlocks(tx, nodes)
}

// holdsInline reports whether n is a block whose children are inline content
// that can be spliced into the current block.
func holdsInline(n *doc.Node) bool {
	if !n.IsBlock() || n.Type.List() || n.Type.Void() || n.Type == doc.KindCodeBlock {
		return false
	}
	for _, c := range n.Children {
		if c.IsBlock() {
			return false
		}
	}
	return true
}

// insertInline splits the cursor's leaf and puts nodes between the halves.
// The cursor ends up after the inserted content.
func insertInline(tx *Tx, nodes []*doc.Node) error {
	b, bp, err := tx.Block()
	if err != nil {
		return err
	}
	if b.Type.Void() {
		if err := insertParagraphAfter(tx, bp, ""); err != nil {
			return err
		}
	}
	cur := tx.Cursor()
	if err := tx.Apply(&doc.SplitNode{Path: cur.Path, Position: cur.Offset}); err != nil {
		return err
	}
	parent, idx := cur.Path.Parent(), cur.Path.Last()+1
	for i, n := range nodes {
		if err := tx.Apply(&doc.InsertNode{Path: parent.Child(idx + i), Node: n.Clone()}); err != nil {
			return err
		}
	}
	return nil
}

// insertBlocks splits the top-level block at the cursor and puts nodes in
// between. Halves left empty by the split are dropped.
func insertBlocks(tx *Tx, nodes []*doc.Node) error {
	b, _, err := tx.Block()
	if err != nil {
		return err
	}
	cur := tx.Cursor()
	top := cur.Path[:1].Copy()
	if b.Type.Void() {
		for i, n := range nodes {
			if err := tx.Apply(&doc.InsertNode{Path: doc.Path{top[0] + 1 + i}, Node: n.Clone()}); err != nil {
				return err
			}
		}
		if end, err := tx.Doc().End(doc.Path{top[0] + len(nodes)}); err == nil {
			tx.SetCursor(end)
		}
		return nil
	}
	if err := splitAt(tx, cur, 1, doc.Props{}); err != nil {
		return err
	}
	for i, n := range nodes {
		if err := tx.Apply(&doc.InsertNode{Path: doc.Path{top[0] + 1 + i}, Node: n.Clone()}); err != nil {
			return err
		}
	}
	last := top[0] + len(nodes)
	second := doc.Path{last + 1}
	if n, err := tx.Doc().Get(second); err == nil && isEmpty(n) {
		if err := tx.Apply(&doc.RemoveNode{Path: second}); err != nil {
			return err
		}
	}
	if n, err := tx.Doc().Get(top); err == nil && isEmpty(n) {
		if err := tx.Apply(&doc.RemoveNode{Path: top}); err != nil {
			return err
		}
		last--
	}
	if end, err := tx.Doc().End(doc.Path{last}); err == nil {
		tx.SetCursor(end)
	}
	return nil
}

// isEmpty reports whether n shows nothing: no text and no void or inline
// elements below it.
func isEmpty(n *doc.Node) bool {
	empty := true
	n.Walk(nil, func(c *doc.Node, _ doc.Path) bool {
		switch {
		case c.IsText():
			empty = empty && c.Text == ""
		case c.Type.Void() || c.Type.Inline():
			empty = false
		}
		return empty
	})
	return empty
}

// splitAt splits the leaf at pt and every ancestor down to depth upTo. The
// outermost split gets props applied to its second half.
func splitAt(tx *Tx, pt doc.Point, upTo int, props doc.Props) error {
	ops := []doc.Operation{&doc.SplitNode{Path: pt.Path.Copy(), Position: pt.Offset}}
	for depth := len(pt.Path) - 1; depth >= upTo; depth-- {
		op := &doc.SplitNode{Path: pt.Path[:depth].Copy(), Position: pt.Path[depth] + 1}
		if depth == upTo {
			op.Props = props
		}
		ops = append(ops, op)
	}
	return tx.Apply(ops...)
}

func insertBreak(tx *Tx) error {
	b, bp, err := tx.Block()
	if err != nil {
		return err
	}
	switch {
	case b.Type == doc.KindCodeBlock:
		return insertText(tx, "\n")
	case b.Type.Void():
		return insertParagraphAfter(tx, bp, "")
	}
	var props doc.Props
	if b.Type == doc.KindCheckListItem {
		props.Checked = doc.Ptr(false)
	}
	return splitAt(tx, tx.Cursor(), len(bp), props)
}

func deleteBackward(tx *Tx) error {
	cur := tx.Cursor()
	leaf, err := tx.Leaf()
	if err != nil {
		return err
	}
	if cur.Offset > 0 {
		_, size := utf8.DecodeLastRuneInString(leaf.Text[:cur.Offset])
		return tx.Apply(&doc.RemoveText{Path: cur.Path, Offset: cur.Offset - size, Length: size})
	}

	b, bp, err := tx.Block()
	if err != nil {
		return err
	}
	leaves, paths, _ := tx.Doc().Texts(bp)
	for i := len(leaves) - 1; i >= 0; i-- {
		if paths[i].Compare(cur.Path) >= 0 || leaves[i].Text == "" {
			continue
		}
		text := leaves[i].Text
		_, size := utf8.DecodeLastRuneInString(text)
		tx.SetCursor(doc.Point{Path: paths[i], Offset: len(text)})
		return tx.Apply(&doc.RemoveText{Path: paths[i], Offset: len(text) - size, Length: size})
	}
	if b.Type.Void() {
		return tx.Apply(&doc.RemoveNode{Path: bp})
	}
	return mergeBackward(tx, b, bp)
}

// mergeBackward joins the block at bp with whatever precedes it.
func mergeBackward(tx *Tx, b *doc.Node, bp doc.Path) error {
	prevPath := bp.Previous()
	if prevPath == nil {
		return nil
	}
	d := tx.Doc()
	prev, err := d.Get(prevPath)
	if err != nil {
		return err
	}
	switch {
	case prev.Type.Void():
		return tx.Apply(&doc.RemoveNode{Path: prevPath})

	case prev.Type.List():
		itemPath, ok := lastItem(prev, prevPath)
		if !ok {
			return nil
		}
		if isEmpty(b) {
			return removeInto(tx, bp, itemPath)
		}
		return tx.Apply(
			&doc.MoveNode{Path: bp.Copy(), NewPath: itemPath.Next()},
			&doc.MergeNode{Path: itemPath.Next()},
		)

	case isEmpty(b):
		return removeInto(tx, bp, prevPath)
	}
	return tx.Apply(&doc.MergeNode{Path: bp.Copy()})
}

// removeInto removes the block at bp and puts the cursor at the end of the
// element at target, which precedes it.
func removeInto(tx *Tx, bp, target doc.Path) error {
	if err := tx.Apply(&doc.RemoveNode{Path: bp.Copy()}); err != nil {
		return err
	}
	if end, err := tx.Doc().End(target); err == nil {
		tx.SetCursor(end)
	}
	return nil
}

// lastItem returns the path of the last item in the list at p, descending
// into trailing nested lists.
func lastItem(list *doc.Node, p doc.Path) (doc.Path, bool) {
	if len(list.Children) == 0 {
		return nil, false
	}
	i := len(list.Children) - 1
	last := list.Children[i]
	if last.Type.List() {
		return lastItem(last, p.Child(i))
	}
	if last.IsText() {
		return nil, false
	}
	return p.Child(i), true
}
