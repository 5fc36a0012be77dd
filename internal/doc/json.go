package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type textJSON struct {
	Text          string `json:"text"`
	Bold          bool   `json:"bold,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Underline     bool   `json:"underline,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
	Code          bool   `json:"code,omitempty"`
	Highlight     bool   `json:"highlight,omitempty"`
}

type elementJSON struct {
	ID         string  `json:"id,omitempty"`
	Type       Kind    `json:"type"`
	Children   []*Node `json:"children"`
	Checked    bool    `json:"checked,omitempty"`
	URL        string  `json:"url,omitempty"`
	Caption    string  `json:"caption,omitempty"`
	NoteID     string  `json:"noteId,omitempty"`
	NoteTitle  string  `json:"noteTitle,omitempty"`
	CustomText string  `json:"customText,omitempty"`
	IsTag      bool    `json:"isTag,omitempty"`
	Name       string  `json:"name,omitempty"`
	BlockID    string  `json:"blockId,omitempty"`
}

// wireJSON accepts either shape while decoding.
type wireJSON struct {
	elementJSON
	Text          *string `json:"text"`
	Bold          bool    `json:"bold"`
	Italic        bool    `json:"italic"`
	Underline     bool    `json:"underline"`
	Strikethrough bool    `json:"strikethrough"`
	Code          bool    `json:"code"`
	Highlight     bool    `json:"highlight"`
}

func (n *Node) MarshalJSON() ([]byte, error) {
	if n.IsText() {
		return json.Marshal(textJSON{
			Text:          n.Text,
			Bold:          n.Marks.Has(Bold),
			Italic:        n.Marks.Has(Italic),
			Underline:     n.Marks.Has(Underline),
			Strikethrough: n.Marks.Has(Strikethrough),
			Code:          n.Marks.Has(Code),
			Highlight:     n.Marks.Has(Highlight),
		})
	}
	children := n.Children
	if children == nil {
		children = []*Node{}
	}
	return json.Marshal(elementJSON{
		ID:         n.ID,
		Type:       n.Type,
		Children:   children,
		Checked:    n.Checked,
		URL:        n.URL,
		Caption:    n.Caption,
		NoteID:     n.NoteID,
		NoteTitle:  n.NoteTitle,
		CustomText: n.CustomText,
		IsTag:      n.IsTag,
		Name:       n.Name,
		BlockID:    n.BlockID,
	})
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type == "" {
		if w.Text == nil {
			return fmt.Errorf("doc: node has neither type nor text")
		}
		*n = Node{Text: *w.Text}
		for m, on := range map[Mark]bool{
			Bold: w.Bold, Italic: w.Italic, Underline: w.Underline,
			Strikethrough: w.Strikethrough, Code: w.Code, Highlight: w.Highlight,
		} {
			if on {
				n.Marks = n.Marks.With(m)
			}
		}
		return nil
	}
	if !w.Type.Known() {
		return fmt.Errorf("doc: unknown node type %q", w.Type)
	}
	children := w.Children
	if children == nil {
		children = []*Node{}
	}
	for i, c := range children {
		if c == nil {
			return fmt.Errorf("doc: %s child %d is null", w.Type, i)
		}
	}
	*n = Node{
		Type:       w.Type,
		ID:         w.ID,
		Children:   children,
		Checked:    w.Checked,
		URL:        w.URL,
		Caption:    w.Caption,
		NoteID:     w.NoteID,
		NoteTitle:  w.NoteTitle,
		CustomText: w.CustomText,
		IsTag:      w.IsTag,
		Name:       w.Name,
		BlockID:    w.BlockID,
	}
	return nil
}

// MarshalJSON encodes the document as the array of its top-level nodes.
func (d *Document) MarshalJSON() ([]byte, error) {
	children := d.Children
	if children == nil {
		children = []*Node{}
	}
	return json.Marshal(children)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var children []*Node
	if err := json.Unmarshal(data, &children); err != nil {
		return err
	}
	for i, c := range children {
		if c == nil || c.IsText() {
			return fmt.Errorf("doc: top-level node %d is not an element", i)
		}
	}
	d.Children = children
	return nil
}

// Decode parses the persisted JSON form of a document. Empty input yields a
// fresh document.
func Decode(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}
	d := &Document{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("doc: decode: %w", err)
	}
	if len(d.Children) == 0 {
		d.Children = []*Node{Paragraph("")}
	}
	return d, nil
}

// Encode returns the persisted JSON form of d.
func Encode(d *Document) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("doc: encode: %w", err)
	}
	return b, nil
}
