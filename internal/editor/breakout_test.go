package editor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/editor"
)

func bullets(items ...*doc.Node) *doc.Node {
	return &doc.Node{Type: doc.KindBulletedList, Children: items}
}

func item(id, text string) *doc.Node { return block(doc.KindListItem, id, text) }

func TestBreakoutEnter(t *testing.T) {
	tests := []struct {
		name   string
		blocks []*doc.Node
		cursor doc.Point
		kinds  []doc.Kind
		text   string
		want   doc.Point
	}{
		{
			name:   "empty last item leaves the list",
			blocks: []*doc.Node{bullets(item("a", "a"), item("b", ""))},
			cursor: at(0, 0, 1, 0),
			kinds:  []doc.Kind{doc.KindBulletedList, doc.KindParagraph},
			text:   "a\n",
			want:   at(0, 1, 0),
		},
		{
			name:   "empty middle item splits the list",
			blocks: []*doc.Node{bullets(item("a", "a"), item("b", ""), item("c", "c"))},
			cursor: at(0, 0, 1, 0),
			kinds:  []doc.Kind{doc.KindBulletedList, doc.KindParagraph, doc.KindBulletedList},
			text:   "a\n\nc",
			want:   at(0, 1, 0),
		},
		{
			name:   "empty check item becomes a paragraph",
			blocks: []*doc.Node{block(doc.KindCheckListItem, "c", "")},
			cursor: at(0, 0, 0),
			kinds:  []doc.Kind{doc.KindParagraph},
			text:   "",
			want:   at(0, 0, 0),
		},
		{
			name:   "end of heading starts a paragraph",
			blocks: []*doc.Node{block(doc.KindHeading1, "h", "Title")},
			cursor: at(5, 0, 0),
			kinds:  []doc.Kind{doc.KindHeading1, doc.KindParagraph},
			text:   "Title\n",
			want:   at(0, 1, 0),
		},
		{
			name:   "middle of heading splits it",
			blocks: []*doc.Node{block(doc.KindHeading2, "h", "Title")},
			cursor: at(2, 0, 0),
			kinds:  []doc.Kind{doc.KindHeading2, doc.KindHeading2},
			text:   "Ti\ntle",
			want:   at(0, 1, 0),
		},
		{
			name:   "void block gets a paragraph after it",
			blocks: []*doc.Node{block(doc.KindThematicBreak, "hr", "")},
			cursor: at(0, 0, 0),
			kinds:  []doc.Kind{doc.KindThematicBreak, doc.KindParagraph},
			text:   "\n",
			want:   at(0, 1, 0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := setup(t, doc.FromNodes(tt.blocks...), nil)
			require.NoError(t, s.Select(tt.cursor))

			_, err := s.InsertBreak(context.Background())
			require.NoError(t, err)

			d := s.Document()
			assert.Equal(t, tt.kinds, kinds(d))
			assert.Equal(t, tt.text, d.PlainText())
			assert.Equal(t, tt.want, s.Cursor())
		})
	}
}

func TestBreakoutEnterOutdentsNestedItem(t *testing.T) {
	nested := bullets(item("b", ""))
	s, _ := setup(t, doc.FromNodes(bullets(item("a", "a"), nested)), nil)
	require.NoError(t, s.Select(at(0, 0, 1, 0)))

	_, err := s.InsertBreak(context.Background())
	require.NoError(t, err)

	list := s.Document().Children[0]
	require.Len(t, list.Children, 2, "the emptied nested list is dropped")
	assert.Equal(t, doc.KindListItem, list.Children[1].Type)
	assert.Equal(t, "b", list.Children[1].ID)
	assert.Equal(t, at(0, 0, 1, 0), s.Cursor())
}

func TestBreakoutBackspace(t *testing.T) {
	tests := []struct {
		name   string
		blocks []*doc.Node
		cursor doc.Point
		kinds  []doc.Kind
		text   string
	}{
		{
			name:   "heading",
			blocks: []*doc.Node{block(doc.KindHeading3, "h", "T")},
			cursor: at(0, 0, 0),
			kinds:  []doc.Kind{doc.KindParagraph},
			text:   "T",
		},
		{
			name:   "quote",
			blocks: []*doc.Node{para("p", "x"), block(doc.KindBlockquote, "q", "said")},
			cursor: at(0, 1, 0),
			kinds:  []doc.Kind{doc.KindParagraph, doc.KindParagraph},
			text:   "x\nsaid",
		},
		{
			name:   "list item",
			blocks: []*doc.Node{bullets(item("a", "a"), item("b", "b"), item("c", "c"))},
			cursor: at(0, 0, 1, 0),
			kinds:  []doc.Kind{doc.KindBulletedList, doc.KindParagraph, doc.KindBulletedList},
			text:   "a\nb\nc",
		},
		{
			name:   "void",
			blocks: []*doc.Node{para("p", "x"), block(doc.KindImage, "img", "")},
			cursor: at(0, 1, 0),
			kinds:  []doc.Kind{doc.KindParagraph},
			text:   "x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := setup(t, doc.FromNodes(tt.blocks...), nil)
			require.NoError(t, s.Select(tt.cursor))

			_, err := s.DeleteBackward(context.Background())
			require.NoError(t, err)

			d := s.Document()
			assert.Equal(t, tt.kinds, kinds(d))
			assert.Equal(t, tt.text, d.PlainText())
		})
	}
}

func TestBreakoutKeepsIDWhenConverting(t *testing.T) {
	check := block(doc.KindCheckListItem, "c", "todo")
	check.Checked = true
	s, _ := setup(t, doc.FromNodes(check), nil)

	_, err := s.DeleteBackward(context.Background())
	require.NoError(t, err)

	got := s.Document().Children[0]
	assert.Equal(t, doc.KindParagraph, got.Type)
	assert.Equal(t, "c", got.ID)
	assert.False(t, got.Checked)
}

func TestBreakoutIgnoresOtherInputs(t *testing.T) {
	s, _ := setup(t, doc.FromNodes(block(doc.KindHeading1, "h", "")), nil)
	_, err := s.InsertText(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []doc.Kind{doc.KindHeading1}, kinds(s.Document()))
	assert.Equal(t, editor.InputText.String(), "insert_text")
}
