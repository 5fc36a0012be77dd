package editor

import (
	"errors"

	"github.com/starford/notegraph/internal/doc"
)

// maxFixes bounds one normalisation pass. Every fix shrinks the number of
// violations, so hitting the bound means a rule is fighting another.
const maxFixes = 1000

var errUnsettled = errors.New("editor: normalisation did not settle")

// normalize applies schema fixes through tx until the tree is valid.
func normalize(tx *Tx) error {
	for range maxFixes {
		var keep doc.Path
		if !tx.lost {
			keep = tx.s.cursor.Path
		}
		ops, err := nextFix(tx.Doc(), keep)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			return nil
		}
		if err := tx.Apply(ops...); err != nil {
			return err
		}
	}
	return errUnsettled
}

// nextFix returns the operations repairing the first violation in document
// order, or nothing when the tree is valid. An empty leaf at keep survives
// next to a leaf with other marks, so typing there does not pick them up.
func nextFix(d *doc.Document, keep doc.Path) ([]doc.Operation, error) {
	if len(d.Children) == 0 {
		return []doc.Operation{&doc.InsertNode{Path: doc.Path{0}, Node: doc.Paragraph("")}}, nil
	}
	for i, c := range d.Children {
		p := doc.Path{i}
		switch {
		case c.Type.Inline():
			return doc.WrapOps(p, doc.NewElement(doc.KindParagraph)), nil
		case c.Type == doc.KindListItem:
			return doc.WrapOps(p, doc.NewElement(doc.KindBulletedList)), nil
		case i > 0 && sameList(d.Children[i-1], c):
			return []doc.Operation{&doc.MergeNode{Path: p}}, nil
		}
		if ops, err := fixElement(d, c, p, keep); ops != nil || err != nil {
			return ops, err
		}
	}
	return nil, nil
}

func fixElement(d *doc.Document, n *doc.Node, p, keep doc.Path) ([]doc.Operation, error) {
	if n.Type.List() {
		return fixList(d, n, p, keep)
	}
	if n.Type.Inline() && n.PlainText() == "" {
		return []doc.Operation{&doc.RemoveNode{Path: p}}, nil
	}
	if len(n.Children) == 0 {
		return []doc.Operation{&doc.InsertNode{Path: p.Child(0), Node: doc.NewText("")}}, nil
	}

	for i, c := range n.Children {
		cp := p.Child(i)
		if c.IsElement() && (c.IsBlock() || n.Type.Inline()) {
			return doc.UnwrapOps(d, cp)
		}
		if c.IsElement() {
			if i == 0 || !n.Children[i-1].IsText() {
				return []doc.Operation{&doc.InsertNode{Path: cp, Node: doc.NewText("")}}, nil
			}
			if i == len(n.Children)-1 || !n.Children[i+1].IsText() {
				return []doc.Operation{&doc.InsertNode{Path: cp.Next(), Node: doc.NewText("")}}, nil
			}
			if ops, err := fixElement(d, c, cp, keep); ops != nil || err != nil {
				return ops, err
			}
			continue
		}
		if i == 0 || !n.Children[i-1].IsText() {
			continue
		}
		prev := n.Children[i-1]
		switch {
		case prev.Marks == c.Marks:
			return []doc.Operation{&doc.MergeNode{Path: cp}}, nil
		case c.Text == "" && !cp.Equal(keep):
			return []doc.Operation{&doc.MergeNode{Path: cp}}, nil
		case prev.Text == "" && !cp.Previous().Equal(keep):
			return []doc.Operation{&doc.RemoveNode{Path: cp.Previous()}}, nil
		}
	}
	return nil, nil
}

// fixList keeps lists holding items and nested lists only. Adjacent lists
// of one kind are merged.
func fixList(d *doc.Document, n *doc.Node, p, keep doc.Path) ([]doc.Operation, error) {
	if len(n.Children) == 0 {
		return []doc.Operation{&doc.RemoveNode{Path: p}}, nil
	}
	for i, c := range n.Children {
		cp := p.Child(i)
		switch {
		case c.IsText() && c.Text == "":
			return []doc.Operation{&doc.RemoveNode{Path: cp}}, nil
		case c.IsText() || c.Type.Inline():
			return doc.WrapOps(cp, doc.NewElement(doc.KindListItem)), nil
		case c.Type != doc.KindListItem && c.Type != doc.KindCheckListItem && !c.Type.List():
			return []doc.Operation{&doc.SetNode{Path: cp, Props: doc.SetType(doc.KindListItem)}}, nil
		case i > 0 && sameList(n.Children[i-1], c):
			return []doc.Operation{&doc.MergeNode{Path: cp}}, nil
		}
		if ops, err := fixElement(d, c, cp, keep); ops != nil || err != nil {
			return ops, err
		}
	}
	return nil, nil
}

func sameList(a, b *doc.Node) bool {
	return a.IsElement() && b.Type.List() && a.Type == b.Type
}
