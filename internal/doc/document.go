package doc

import (
	"fmt"
	"strings"

	"github.com/starford/notegraph/internal/apperr"
)

// Identifier hands out and tracks stable node ids for one document.
type Identifier interface {
	// NewID returns an id unused anywhere in the corpus and reserves it.
	NewID() string
	// Claim registers the ids of n and its descendants, replacing ids that
	// are already in use and filling missing ones on referenceable nodes.
	Claim(n *Node)
	// Release forgets the ids of n and its descendants.
	Release(n *Node)
}

// Document is the root of a note's tree.
type Document struct {
	Children []*Node

	ids Identifier
}

// New returns a document holding a single empty paragraph.
func New() *Document {
	return &Document{Children: []*Node{Paragraph("")}}
}

// FromNodes wraps blocks into a document.
func FromNodes(blocks ...*Node) *Document {
	return &Document{Children: blocks}
}

// Bind attaches the identifier used when operations add or split nodes.
// Ids already in the tree are expected to be registered by the caller.
func (d *Document) Bind(ids Identifier) {
	d.ids = ids
}

// Identifier returns the bound identifier, if any.
func (d *Document) Identifier() Identifier { return d.ids }

// Validate rejects trees the JSON codec would refuse to decode.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: document is nil", apperr.ErrInvalidInput)
	}
	var check func(nodes []*Node, p Path) error
	check = func(nodes []*Node, p Path) error {
		for i, n := range nodes {
			cp := p.Child(i)
			switch {
			case n == nil:
				return fmt.Errorf("%w: null node at %s", apperr.ErrInvalidInput, cp)
			case n.IsText():
				if len(p) == 0 {
					return fmt.Errorf("%w: text at top level %s", apperr.ErrInvalidInput, cp)
				}
				continue
			case !n.Type.Known():
				return fmt.Errorf("%w: unknown kind %q at %s", apperr.ErrInvalidInput, n.Type, cp)
			}
			if err := check(n.Children, cp); err != nil {
				return err
			}
		}
		return nil
	}
	return check(d.Children, nil)
}

// Clone returns a deep copy of the tree. The copy is not bound to an
// identifier.
func (d *Document) Clone() *Document {
	out := &Document{Children: make([]*Node, len(d.Children))}
	for i, c := range d.Children {
		out.Children[i] = c.Clone()
	}
	return out
}

// Get returns the node at p.
func (d *Document) Get(p Path) (*Node, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: root has no node", apperr.ErrInvalidPath)
	}
	children := d.Children
	var n *Node
	for depth, i := range p {
		if i < 0 || i >= len(children) {
			return nil, fmt.Errorf("%w: %s has no node at depth %d", apperr.ErrInvalidPath, p, depth)
		}
		n = children[i]
		children = n.Children
	}
	return n, nil
}

// Has reports whether p addresses an existing node.
func (d *Document) Has(p Path) bool {
	_, err := d.Get(p)
	return err == nil
}

// childrenAt returns a pointer to the children slice of the element (or
// root) at p.
func (d *Document) childrenAt(p Path) (*[]*Node, error) {
	if len(p) == 0 {
		return &d.Children, nil
	}
	n, err := d.Get(p)
	if err != nil {
		return nil, err
	}
	if n.IsText() {
		return nil, fmt.Errorf("%w: %s is a text leaf", apperr.ErrInvalidPath, p)
	}
	return &n.Children, nil
}

// Walk visits every node in document order.
func (d *Document) Walk(fn func(n *Node, p Path) bool) {
	for i, c := range d.Children {
		c.Walk(Path{i}, fn)
	}
}

// Ancestors returns the elements on the way from the top-level block down to
// the parent of p, paired with their paths.
func (d *Document) Ancestors(p Path) ([]*Node, []Path) {
	var nodes []*Node
	var paths []Path
	children := d.Children
	for depth := 0; depth < len(p)-1; depth++ {
		i := p[depth]
		if i < 0 || i >= len(children) {
			break
		}
		nodes = append(nodes, children[i])
		paths = append(paths, p[:depth+1].Copy())
		children = children[i].Children
	}
	return nodes, paths
}

// Block returns the closest block element containing p (p itself when it is
// a block).
func (d *Document) Block(p Path) (*Node, Path, error) {
	for at := p.Copy(); len(at) > 0; at = at.Parent() {
		n, err := d.Get(at)
		if err != nil {
			return nil, nil, err
		}
		if n.IsBlock() && !n.Type.List() {
			return n, at, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s is not inside a block", apperr.ErrInvalidPath, p)
}

// Above returns the closest ancestor of p (excluding p) that satisfies match.
func (d *Document) Above(p Path, match func(*Node) bool) (*Node, Path, bool) {
	nodes, paths := d.Ancestors(p)
	for i := len(nodes) - 1; i >= 0; i-- {
		if match(nodes[i]) {
			return nodes[i], paths[i], true
		}
	}
	return nil, nil, false
}

// FindByID returns the element with the given id.
func (d *Document) FindByID(id string) (*Node, Path, bool) {
	var found *Node
	var at Path
	d.Walk(func(n *Node, p Path) bool {
		if found != nil {
			return false
		}
		if n.IsElement() && n.ID == id {
			found, at = n, p.Copy()
			return false
		}
		return true
	})
	return found, at, found != nil
}

// Texts returns the text leaves under the element at p with their paths, in
// document order.
func (d *Document) Texts(p Path) ([]*Node, []Path, error) {
	root, err := d.Get(p)
	if err != nil {
		return nil, nil, err
	}
	var leaves []*Node
	var paths []Path
	root.Walk(p, func(n *Node, at Path) bool {
		if n.IsText() {
			leaves = append(leaves, n)
			paths = append(paths, at.Copy())
		}
		return true
	})
	return leaves, paths, nil
}

// PlainText returns the visible text with blocks separated by newlines.
func (d *Document) PlainText() string {
	var lines []string
	d.Walk(func(n *Node, _ Path) bool {
		if n.IsBlock() && !n.Type.List() {
			lines = append(lines, n.PlainText())
			return false
		}
		return true
	})
	return strings.Join(lines, "\n")
}

// Equal reports structural equality of two documents.
func (d *Document) Equal(o *Document) bool {
	if len(d.Children) != len(o.Children) {
		return false
	}
	for i := range d.Children {
		if !d.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// Start returns the first text position inside the element at p.
func (d *Document) Start(p Path) (Point, error) {
	leaves, paths, err := d.Texts(p)
	if err != nil {
		return Point{}, err
	}
	if len(leaves) == 0 {
		return Point{}, fmt.Errorf("%w: %s holds no text", apperr.ErrInvalidPath, p)
	}
	return Point{Path: paths[0], Offset: 0}, nil
}

// End returns the last text position inside the element at p.
func (d *Document) End(p Path) (Point, error) {
	leaves, paths, err := d.Texts(p)
	if err != nil {
		return Point{}, err
	}
	if len(leaves) == 0 {
		return Point{}, fmt.Errorf("%w: %s holds no text", apperr.ErrInvalidPath, p)
	}
	last := len(leaves) - 1
	return Point{Path: paths[last], Offset: len(leaves[last].Text)}, nil
}
