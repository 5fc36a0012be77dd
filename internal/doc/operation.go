package doc

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/starford/notegraph/internal/apperr"
)

// OpType names a primitive operation.
type OpType string

const (
	OpInsertNode OpType = "insert_node"
	OpRemoveNode OpType = "remove_node"
	OpInsertText OpType = "insert_text"
	OpRemoveText OpType = "remove_text"
	OpSetNode    OpType = "set_node"
	OpSplitNode  OpType = "split_node"
	OpMergeNode  OpType = "merge_node"
	OpMoveNode   OpType = "move_node"
)

// Operation is a primitive, atomic mutation of a document. Apply either
// performs the whole operation or returns an error and changes nothing.
type Operation interface {
	Type() OpType
	// AdjustPath maps a path captured before the operation to the path of
	// the same node afterwards. It reports false when the node was removed.
	AdjustPath(p Path) (Path, bool)
	// AdjustPoint maps a text position across the operation.
	AdjustPoint(pt Point, aff Affinity) (Point, bool)

	apply(d *Document) error
}

// Apply performs op on d.
func (d *Document) Apply(op Operation) error {
	return op.apply(d)
}

// AdjustPath maps p across an applied operation.
func AdjustPath(p Path, op Operation) (Path, bool) {
	return op.AdjustPath(p)
}

// AdjustPoint maps pt across an applied operation.
func AdjustPoint(pt Point, op Operation, aff Affinity) (Point, bool) {
	return op.AdjustPoint(pt, aff)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{apperr.ErrInvalidPath}, args...)...)
}

// InsertNode inserts Node so that it ends up at Path.
type InsertNode struct {
	Path Path
	Node *Node
}

func (op *InsertNode) Type() OpType { return OpInsertNode }

func (op *InsertNode) apply(d *Document) error {
	if len(op.Path) == 0 || op.Node == nil {
		return invalid("insert at %s", op.Path)
	}
	parent := op.Path.Parent()
	if len(parent) == 0 && op.Node.IsText() {
		return invalid("insert text leaf at top level %s", op.Path)
	}
	children, err := d.childrenAt(parent)
	if err != nil {
		return err
	}
	idx := op.Path.Last()
	if idx < 0 || idx > len(*children) {
		return invalid("insert index %d out of range at %s", idx, op.Path)
	}
	*children = slices.Insert(*children, idx, op.Node)
	if d.ids != nil {
		d.ids.Claim(op.Node)
	}
	return nil
}

func (op *InsertNode) AdjustPath(p Path) (Path, bool) {
	o := op.Path
	out := p.Copy()
	if o.Equal(p) || o.EndsBefore(p) || o.IsAncestor(p) {
		out[len(o)-1]++
	}
	return out, true
}

func (op *InsertNode) AdjustPoint(pt Point, _ Affinity) (Point, bool) {
	p, _ := op.AdjustPath(pt.Path)
	return Point{Path: p, Offset: pt.Offset}, true
}

// RemoveNode removes the node at Path. Node holds the removed subtree once
// applied.
type RemoveNode struct {
	Path Path
	Node *Node
}

func (op *RemoveNode) Type() OpType { return OpRemoveNode }

func (op *RemoveNode) apply(d *Document) error {
	if len(op.Path) == 0 {
		return invalid("remove root")
	}
	children, err := d.childrenAt(op.Path.Parent())
	if err != nil {
		return err
	}
	idx := op.Path.Last()
	if idx < 0 || idx >= len(*children) {
		return invalid("remove index %d out of range at %s", idx, op.Path)
	}
	op.Node = (*children)[idx]
	*children = slices.Delete(*children, idx, idx+1)
	if d.ids != nil {
		d.ids.Release(op.Node)
	}
	return nil
}

func (op *RemoveNode) AdjustPath(p Path) (Path, bool) {
	o := op.Path
	if o.Equal(p) || o.IsAncestor(p) {
		return nil, false
	}
	out := p.Copy()
	if o.EndsBefore(p) {
		out[len(o)-1]--
	}
	return out, true
}

func (op *RemoveNode) AdjustPoint(pt Point, _ Affinity) (Point, bool) {
	p, ok := op.AdjustPath(pt.Path)
	if !ok {
		return Point{}, false
	}
	return Point{Path: p, Offset: pt.Offset}, true
}

// InsertText inserts Text into the leaf at Path at byte Offset.
type InsertText struct {
	Path   Path
	Offset int
	Text   string
}

func (op *InsertText) Type() OpType { return OpInsertText }

func (op *InsertText) apply(d *Document) error {
	n, err := textAt(d, op.Path)
	if err != nil {
		return err
	}
	if err := checkOffset(n.Text, op.Offset, op.Path); err != nil {
		return err
	}
	n.Text = n.Text[:op.Offset] + op.Text + n.Text[op.Offset:]
	return nil
}

func (op *InsertText) AdjustPath(p Path) (Path, bool) { return p.Copy(), true }

func (op *InsertText) AdjustPoint(pt Point, aff Affinity) (Point, bool) {
	out := Point{Path: pt.Path.Copy(), Offset: pt.Offset}
	if op.Path.Equal(pt.Path) && (op.Offset < pt.Offset || (op.Offset == pt.Offset && aff == Forward)) {
		out.Offset += len(op.Text)
	}
	return out, true
}

// RemoveText removes Length bytes at Offset from the leaf at Path. Text
// holds the removed text once applied.
type RemoveText struct {
	Path   Path
	Offset int
	Length int
	Text   string
}

func (op *RemoveText) Type() OpType { return OpRemoveText }

func (op *RemoveText) apply(d *Document) error {
	n, err := textAt(d, op.Path)
	if err != nil {
		return err
	}
	if op.Length < 0 {
		return invalid("negative length at %s", op.Path)
	}
	if err := checkOffset(n.Text, op.Offset, op.Path); err != nil {
		return err
	}
	if err := checkOffset(n.Text, op.Offset+op.Length, op.Path); err != nil {
		return err
	}
	op.Text = n.Text[op.Offset : op.Offset+op.Length]
	n.Text = n.Text[:op.Offset] + n.Text[op.Offset+op.Length:]
	return nil
}

func (op *RemoveText) AdjustPath(p Path) (Path, bool) { return p.Copy(), true }

func (op *RemoveText) AdjustPoint(pt Point, _ Affinity) (Point, bool) {
	out := Point{Path: pt.Path.Copy(), Offset: pt.Offset}
	if op.Path.Equal(pt.Path) && op.Offset <= pt.Offset {
		out.Offset -= min(pt.Offset-op.Offset, op.Length)
	}
	return out, true
}

// SetNode merges Props into the node at Path.
type SetNode struct {
	Path  Path
	Props Props
}

func (op *SetNode) Type() OpType { return OpSetNode }

func (op *SetNode) apply(d *Document) error {
	n, err := d.Get(op.Path)
	if err != nil {
		return err
	}
	if n.IsText() && op.Props.elementOnly() {
		return invalid("element properties on text leaf %s", op.Path)
	}
	if n.IsElement() && op.Props.Marks != nil {
		return invalid("marks on element %s", op.Path)
	}
	if op.Props.Type != nil && !op.Props.Type.Known() {
		return invalid("unknown kind %q at %s", *op.Props.Type, op.Path)
	}
	op.Props.applyTo(n)
	if n.IsElement() && n.Type.Referenceable() && n.ID == "" && d.ids != nil {
		n.ID = d.ids.NewID()
	}
	return nil
}

func (op *SetNode) AdjustPath(p Path) (Path, bool) { return p.Copy(), true }

func (op *SetNode) AdjustPoint(pt Point, _ Affinity) (Point, bool) {
	return Point{Path: pt.Path.Copy(), Offset: pt.Offset}, true
}

// SplitNode splits the node at Path at Position: a byte offset for text
// leaves, a child index for elements. The node at Path keeps the first half
// and its id; the second half is inserted after it with a fresh id. Props
// overrides properties of the second half.
type SplitNode struct {
	Path     Path
	Position int
	Props    Props
}

func (op *SplitNode) Type() OpType { return OpSplitNode }

func (op *SplitNode) apply(d *Document) error {
	if len(op.Path) == 0 {
		return invalid("split root")
	}
	n, err := d.Get(op.Path)
	if err != nil {
		return err
	}
	children, err := d.childrenAt(op.Path.Parent())
	if err != nil {
		return err
	}
	var second *Node
	if n.IsText() {
		if err := checkOffset(n.Text, op.Position, op.Path); err != nil {
			return err
		}
		if op.Props.elementOnly() {
			return invalid("element properties on text split %s", op.Path)
		}
		second = &Node{Text: n.Text[op.Position:], Marks: n.Marks}
		n.Text = n.Text[:op.Position]
	} else {
		if op.Position < 0 || op.Position > len(n.Children) {
			return invalid("split position %d out of range at %s", op.Position, op.Path)
		}
		cp := *n
		second = &cp
		second.Children = append([]*Node{}, n.Children[op.Position:]...)
		n.Children = append([]*Node{}, n.Children[:op.Position]...)
	}
	op.Props.applyTo(second)
	if second.IsElement() {
		second.ID = ""
		if second.Type.Referenceable() && d.ids != nil {
			second.ID = d.ids.NewID()
		}
	}
	*children = slices.Insert(*children, op.Path.Last()+1, second)
	return nil
}

// AdjustPath keeps a path equal to the split path on the first half.
func (op *SplitNode) AdjustPath(p Path) (Path, bool) {
	o := op.Path
	out := p.Copy()
	switch {
	case o.Equal(p):
	case o.EndsBefore(p):
		out[len(o)-1]++
	case o.IsAncestor(p) && p[len(o)] >= op.Position:
		out[len(o)-1]++
		out[len(o)] -= op.Position
	}
	return out, true
}

func (op *SplitNode) AdjustPoint(pt Point, aff Affinity) (Point, bool) {
	if op.Path.Equal(pt.Path) {
		if op.Position < pt.Offset || (op.Position == pt.Offset && aff == Forward) {
			return Point{Path: pt.Path.Next(), Offset: pt.Offset - op.Position}, true
		}
		return Point{Path: pt.Path.Copy(), Offset: pt.Offset}, true
	}
	p, _ := op.AdjustPath(pt.Path)
	return Point{Path: p, Offset: pt.Offset}, true
}

// MergeNode merges the node at Path into its previous sibling. Position is
// the length of the previous sibling before the merge and is set on apply.
type MergeNode struct {
	Path     Path
	Position int
}

func (op *MergeNode) Type() OpType { return OpMergeNode }

func (op *MergeNode) apply(d *Document) error {
	if len(op.Path) == 0 || op.Path.Last() <= 0 {
		return invalid("merge %s without a previous sibling", op.Path)
	}
	n, err := d.Get(op.Path)
	if err != nil {
		return err
	}
	prev, err := d.Get(op.Path.Previous())
	if err != nil {
		return err
	}
	children, err := d.childrenAt(op.Path.Parent())
	if err != nil {
		return err
	}
	switch {
	case n.IsText() && prev.IsText():
		op.Position = len(prev.Text)
		prev.Text += n.Text
	case n.IsElement() && prev.IsElement():
		op.Position = len(prev.Children)
		prev.Children = append(slices.Clip(prev.Children), n.Children...)
	default:
		return invalid("merge mixes text and element at %s", op.Path)
	}
	idx := op.Path.Last()
	*children = slices.Delete(*children, idx, idx+1)
	if d.ids != nil && n.IsElement() && n.ID != "" {
		d.ids.Release(&Node{Type: n.Type, ID: n.ID})
	}
	return nil
}

func (op *MergeNode) AdjustPath(p Path) (Path, bool) {
	o := op.Path
	out := p.Copy()
	switch {
	case o.Equal(p) || o.EndsBefore(p):
		out[len(o)-1]--
	case o.IsAncestor(p):
		out[len(o)-1]--
		out[len(o)] += op.Position
	}
	return out, true
}

func (op *MergeNode) AdjustPoint(pt Point, _ Affinity) (Point, bool) {
	out := Point{Offset: pt.Offset}
	if op.Path.Equal(pt.Path) {
		out.Offset += op.Position
	}
	out.Path, _ = op.AdjustPath(pt.Path)
	return out, true
}

// MoveNode moves the node at Path. NewPath is the position the node takes
// after it was detached when both share a parent; otherwise it is expressed
// in the tree as it was before the move.
type MoveNode struct {
	Path    Path
	NewPath Path
}

func (op *MoveNode) Type() OpType { return OpMoveNode }

func (op *MoveNode) apply(d *Document) error {
	if len(op.Path) == 0 || len(op.NewPath) == 0 {
		return invalid("move %s to %s", op.Path, op.NewPath)
	}
	if op.Path.Equal(op.NewPath) {
		return nil
	}
	if op.Path.IsAncestor(op.NewPath) {
		return invalid("move %s into itself at %s", op.Path, op.NewPath)
	}
	n, err := d.Get(op.Path)
	if err != nil {
		return err
	}
	from, err := d.childrenAt(op.Path.Parent())
	if err != nil {
		return err
	}
	to, err := d.childrenAt(op.NewPath.Parent())
	if err != nil {
		return err
	}
	if len(op.NewPath) == 1 && n.IsText() {
		return invalid("move text leaf to top level %s", op.NewPath)
	}
	target, _ := op.AdjustPath(op.Path)
	limit := len(*to)
	if op.Path.Parent().Equal(op.NewPath.Parent()) {
		limit--
	}
	idx := target.Last()
	if idx < 0 || idx > limit {
		return invalid("move index %d out of range at %s", idx, op.NewPath)
	}
	at := op.Path.Last()
	*from = slices.Delete(*from, at, at+1)
	*to = slices.Insert(*to, idx, n)
	return nil
}

func (op *MoveNode) AdjustPath(p Path) (Path, bool) {
	o, onp := op.Path, op.NewPath
	if o.Equal(onp) {
		return p.Copy(), true
	}
	if o.IsAncestor(p) || o.Equal(p) {
		out := onp.Copy()
		if o.EndsBefore(onp) && len(o) < len(onp) {
			out[len(o)-1]--
		}
		return append(out, p[len(o):]...), true
	}
	out := p.Copy()
	switch {
	case o.IsSibling(onp) && (onp.IsAncestor(p) || onp.Equal(p)):
		if o.EndsBefore(p) {
			out[len(o)-1]--
		} else {
			out[len(o)-1]++
		}
	case onp.EndsBefore(p) || onp.Equal(p) || onp.IsAncestor(p):
		if o.EndsBefore(p) {
			out[len(o)-1]--
		}
		out[len(onp)-1]++
	case o.EndsBefore(p):
		if onp.Equal(p) {
			out[len(onp)-1]++
		}
		out[len(o)-1]--
	}
	return out, true
}

func (op *MoveNode) AdjustPoint(pt Point, _ Affinity) (Point, bool) {
	p, _ := op.AdjustPath(pt.Path)
	return Point{Path: p, Offset: pt.Offset}, true
}

func textAt(d *Document, p Path) (*Node, error) {
	n, err := d.Get(p)
	if err != nil {
		return nil, err
	}
	if !n.IsText() {
		return nil, invalid("%s is not a text leaf", p)
	}
	return n, nil
}

func checkOffset(s string, off int, p Path) error {
	if off < 0 || off > len(s) {
		return invalid("offset %d out of range at %s", off, p)
	}
	if off < len(s) && !utf8.RuneStart(s[off]) {
		return invalid("offset %d splits a character at %s", off, p)
	}
	return nil
}

// WrapOps returns the operations that wrap the node at p in wrapper. The
// wrapper must not have children.
func WrapOps(p Path, wrapper *Node) []Operation {
	w := wrapper.Clone()
	w.Children = []*Node{}
	return []Operation{
		&InsertNode{Path: p.Copy(), Node: w},
		&MoveNode{Path: p.Next(), NewPath: p.Child(0)},
	}
}

// UnwrapOps returns the operations that replace the element at p by its
// children.
func UnwrapOps(d *Document, p Path) ([]Operation, error) {
	n, err := d.Get(p)
	if err != nil {
		return nil, err
	}
	if n.IsText() {
		return nil, invalid("unwrap text leaf %s", p)
	}
	if len(p) == 1 {
		for _, c := range n.Children {
			if c.IsText() {
				return nil, invalid("unwrap %s would put text at top level", p)
			}
		}
	}
	ops := make([]Operation, 0, len(n.Children)+1)
	at := p.Copy()
	for range n.Children {
		ops = append(ops, &MoveNode{Path: at.Child(0), NewPath: at.Copy()})
		at = at.Next()
	}
	ops = append(ops, &RemoveNode{Path: at})
	return ops, nil
}
