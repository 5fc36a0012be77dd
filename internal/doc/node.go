// Package doc implements the note document tree and the primitive
// operations that mutate it.
package doc

import "strings"

// Kind is the persisted type tag of an element.
type Kind string

const (
	KindParagraph      Kind = "paragraph"
	KindHeading1       Kind = "heading-one"
	KindHeading2       Kind = "heading-two"
	KindHeading3       Kind = "heading-three"
	KindListItem       Kind = "list-item"
	KindBulletedList   Kind = "bulleted-list"
	KindNumberedList   Kind = "numbered-list"
	KindCheckListItem  Kind = "check-list-item"
	KindBlockquote     Kind = "block-quote"
	KindCodeBlock      Kind = "code-block"
	KindThematicBreak  Kind = "thematic-break"
	KindImage          Kind = "image"
	KindExternalLink   Kind = "link"
	KindNoteLink       Kind = "note-link"
	KindTag            Kind = "tag"
	KindBlockReference Kind = "block-reference"
)

var knownKinds = map[Kind]bool{
	KindParagraph: true, KindHeading1: true, KindHeading2: true, KindHeading3: true,
	KindListItem: true, KindBulletedList: true, KindNumberedList: true,
	KindCheckListItem: true, KindBlockquote: true, KindCodeBlock: true,
	KindThematicBreak: true, KindImage: true, KindExternalLink: true,
	KindNoteLink: true, KindTag: true, KindBlockReference: true,
}

// Known reports whether k is a kind of the schema.
func (k Kind) Known() bool { return knownKinds[k] }

// Inline reports whether elements of this kind live inside block content.
func (k Kind) Inline() bool {
	switch k {
	case KindExternalLink, KindNoteLink, KindTag, KindBlockReference:
		return true
	}
	return false
}

// Void reports whether the kind renders without editable content.
func (k Kind) Void() bool {
	return k == KindImage || k == KindThematicBreak
}

// List reports whether the kind is a list container.
func (k Kind) List() bool {
	return k == KindBulletedList || k == KindNumberedList
}

// Heading reports the heading level of k, or 0.
func (k Kind) Heading() int {
	switch k {
	case KindHeading1:
		return 1
	case KindHeading2:
		return 2
	case KindHeading3:
		return 3
	}
	return 0
}

// HeadingKind returns the heading kind for level 1-3, clamping out of range levels.
func HeadingKind(level int) Kind {
	switch {
	case level <= 1:
		return KindHeading1
	case level == 2:
		return KindHeading2
	default:
		return KindHeading3
	}
}

// Referenceable reports whether elements of this kind carry a stable id.
func (k Kind) Referenceable() bool {
	switch k {
	case KindParagraph, KindHeading1, KindHeading2, KindHeading3,
		KindListItem, KindCheckListItem, KindBlockquote, KindCodeBlock,
		KindThematicBreak, KindImage, KindBlockReference:
		return true
	}
	return false
}

// Mark is a single text formatting flag.
type Mark uint8

const (
	Bold Mark = 1 << iota
	Italic
	Underline
	Strikethrough
	Code
	Highlight
)

// AllMarks lists every mark in canonical order.
var AllMarks = []Mark{Bold, Italic, Underline, Strikethrough, Code, Highlight}

func (m Mark) String() string {
	switch m {
	case Bold:
		return "bold"
	case Italic:
		return "italic"
	case Underline:
		return "underline"
	case Strikethrough:
		return "strikethrough"
	case Code:
		return "code"
	case Highlight:
		return "highlight"
	}
	return "unknown"
}

// Marks is the set of marks applied to a text leaf.
type Marks uint8

func (ms Marks) Has(m Mark) bool      { return ms&Marks(m) != 0 }
func (ms Marks) With(m Mark) Marks    { return ms | Marks(m) }
func (ms Marks) Without(m Mark) Marks { return ms &^ Marks(m) }

// List returns the marks in canonical order.
func (ms Marks) List() []Mark {
	var out []Mark
	for _, m := range AllMarks {
		if ms.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

// Node is either a text leaf (empty Type) or an element.
type Node struct {
	Type     Kind
	ID       string
	Children []*Node

	Checked    bool
	URL        string
	Caption    string
	NoteID     string
	NoteTitle  string
	CustomText string
	IsTag      bool
	Name       string
	BlockID    string

	Text  string
	Marks Marks
}

// NewText returns a text leaf.
func NewText(text string, marks ...Mark) *Node {
	n := &Node{Text: text}
	for _, m := range marks {
		n.Marks = n.Marks.With(m)
	}
	return n
}

// NewElement returns an element of kind k with the given children. An
// element without children gets a single empty text leaf.
func NewElement(k Kind, children ...*Node) *Node {
	if len(children) == 0 {
		children = []*Node{NewText("")}
	}
	return &Node{Type: k, Children: children}
}

// Paragraph is shorthand for a paragraph holding one text leaf.
func Paragraph(text string) *Node {
	return NewElement(KindParagraph, NewText(text))
}

// NoteLink returns a note-link element whose display text is the title.
func NoteLink(noteID, title string) *Node {
	n := NewElement(KindNoteLink, NewText(title))
	n.NoteID = noteID
	n.NoteTitle = title
	return n
}

// BlockRef returns a block-reference element with its last-known text.
func BlockRef(blockID, text string) *Node {
	n := NewElement(KindBlockReference, NewText(text))
	n.BlockID = blockID
	return n
}

func (n *Node) IsText() bool    { return n.Type == "" }
func (n *Node) IsElement() bool { return n.Type != "" }

// IsBlock reports whether n is a block-level element.
func (n *Node) IsBlock() bool { return n.IsElement() && !n.Type.Inline() }

// PlainText concatenates the text of n and its descendants.
func (n *Node) PlainText() string {
	if n.IsText() {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Children {
		b.WriteString(c.PlainText())
	}
	return b.String()
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return &c
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's children.
func (n *Node) Walk(at Path, fn func(n *Node, p Path) bool) {
	if !fn(n, at) {
		return
	}
	for i, c := range n.Children {
		c.Walk(at.Child(i), fn)
	}
}

// Equal reports structural equality of two subtrees.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Type != o.Type || n.ID != o.ID || n.Text != o.Text || n.Marks != o.Marks ||
		n.Checked != o.Checked || n.URL != o.URL || n.Caption != o.Caption ||
		n.NoteID != o.NoteID || n.NoteTitle != o.NoteTitle || n.CustomText != o.CustomText ||
		n.IsTag != o.IsTag || n.Name != o.Name || n.BlockID != o.BlockID {
		return false
	}
	if len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}
