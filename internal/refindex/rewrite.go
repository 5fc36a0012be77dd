package refindex

import (
	"github.com/starford/notegraph/internal/doc"
)

// RenameOps returns the operations that point the links to noteID at its new
// title. Link text is replaced only where it reads exactly oldTitle; links
// with custom text keep it.
func RenameOps(d *doc.Document, noteID, oldTitle, newTitle string) []doc.Operation {
	var ops []doc.Operation
	d.Walk(func(n *doc.Node, p doc.Path) bool {
		if n.Type != doc.KindNoteLink {
			return n.IsElement()
		}
		if n.NoteID != noteID {
			return false
		}
		if n.NoteTitle != newTitle {
			ops = append(ops, &doc.SetNode{Path: p.Copy(), Props: doc.Props{NoteTitle: doc.Ptr(newTitle)}})
		}
		if n.CustomText == "" && n.PlainText() == oldTitle && oldTitle != newTitle {
			ops = append(ops, replaceTextOps(n, p, newTitle)...)
		}
		return false
	})
	return ops
}

// DeleteOps returns the operations that dissolve references to a deleted
// note: links to noteID become their plain text, and references to one of
// the note's blocks become the block's last-known text. blocks maps the ids
// of the deleted note's blocks to their final text.
func DeleteOps(d *doc.Document, noteID string, blocks map[string]string) []doc.Operation {
	type target struct {
		path doc.Path
		node *doc.Node
	}
	var found []target
	d.Walk(func(n *doc.Node, p doc.Path) bool {
		switch {
		case n.Type == doc.KindNoteLink && n.NoteID == noteID:
		case n.Type == doc.KindBlockReference && hasKey(blocks, n.BlockID):
		default:
			return n.IsElement()
		}
		found = append(found, target{path: p.Copy(), node: n})
		return false
	})

	// Later siblings first, so that unwrapping never shifts a pending path.
	var ops []doc.Operation
	for i := len(found) - 1; i >= 0; i-- {
		t := found[i]
		if t.node.Type == doc.KindBlockReference {
			ops = append(ops, replaceTextOps(t.node, t.path, blocks[t.node.BlockID])...)
			ops = append(ops,
				&doc.MoveNode{Path: t.path.Child(0), NewPath: t.path.Copy()},
				&doc.RemoveNode{Path: t.path.Next()},
			)
			continue
		}
		unwrap, err := doc.UnwrapOps(d, t.path)
		if err != nil {
			continue
		}
		ops = append(ops, unwrap...)
	}
	return ops
}

func hasKey(m map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}

// replaceTextOps rewrites the content of the inline element n at p to a
// single leaf holding text. The first leaf keeps its marks.
func replaceTextOps(n *doc.Node, p doc.Path, text string) []doc.Operation {
	if len(n.Children) == 0 {
		return []doc.Operation{&doc.InsertNode{Path: p.Child(0), Node: doc.NewText(text)}}
	}
	var ops []doc.Operation
	for i := len(n.Children) - 1; i > 0; i-- {
		ops = append(ops, &doc.RemoveNode{Path: p.Child(i)})
	}
	first := n.Children[0]
	if !first.IsText() {
		ops = append(ops,
			&doc.RemoveNode{Path: p.Child(0)},
			&doc.InsertNode{Path: p.Child(0), Node: doc.NewText(text)},
		)
		return ops
	}
	if first.Text == text {
		return ops
	}
	if first.Text != "" {
		ops = append(ops, &doc.RemoveText{Path: p.Child(0), Offset: 0, Length: len(first.Text)})
	}
	if text != "" {
		ops = append(ops, &doc.InsertText{Path: p.Child(0), Offset: 0, Text: text})
	}
	return ops
}
