package doc

// Props is a partial set of node properties. Nil fields are left untouched.
// Ids are not among them: only the document's identifier hands them out.
type Props struct {
	Type       *Kind   `json:"type,omitempty"`
	Checked    *bool   `json:"checked,omitempty"`
	URL        *string `json:"url,omitempty"`
	Caption    *string `json:"caption,omitempty"`
	NoteID     *string `json:"noteId,omitempty"`
	NoteTitle  *string `json:"noteTitle,omitempty"`
	CustomText *string `json:"customText,omitempty"`
	IsTag      *bool   `json:"isTag,omitempty"`
	Name       *string `json:"name,omitempty"`
	BlockID    *string `json:"blockId,omitempty"`
	Marks      *Marks  `json:"marks,omitempty"`
}

// Ptr returns a pointer to v; handy for building Props literals.
func Ptr[T any](v T) *T { return &v }

// SetType returns props changing only the kind.
func SetType(k Kind) Props { return Props{Type: &k} }

// SetMarks returns props replacing the marks of a text leaf.
func SetMarks(m Marks) Props { return Props{Marks: &m} }

// elementOnly reports whether any field other than Marks is set.
func (p Props) elementOnly() bool {
	return p.Type != nil || p.Checked != nil || p.URL != nil ||
		p.Caption != nil || p.NoteID != nil || p.NoteTitle != nil ||
		p.CustomText != nil || p.IsTag != nil || p.Name != nil || p.BlockID != nil
}

func (p Props) applyTo(n *Node) {
	if p.Type != nil {
		n.Type = *p.Type
	}
	if p.Checked != nil {
		n.Checked = *p.Checked
	}
	if p.URL != nil {
		n.URL = *p.URL
	}
	if p.Caption != nil {
		n.Caption = *p.Caption
	}
	if p.NoteID != nil {
		n.NoteID = *p.NoteID
	}
	if p.NoteTitle != nil {
		n.NoteTitle = *p.NoteTitle
	}
	if p.CustomText != nil {
		n.CustomText = *p.CustomText
	}
	if p.IsTag != nil {
		n.IsTag = *p.IsTag
	}
	if p.Name != nil {
		n.Name = *p.Name
	}
	if p.BlockID != nil {
		n.BlockID = *p.BlockID
	}
	if p.Marks != nil {
		n.Marks = *p.Marks
	}
}
