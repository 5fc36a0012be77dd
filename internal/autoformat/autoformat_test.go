package autoformat_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/autoformat"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/editor"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/nodeid"
	"github.com/starford/notegraph/internal/refindex"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeNotes resolves titles case-insensitively and creates notes up to limit.
type fakeNotes struct {
	byTitle map[string]models.NoteMetadata
	limit   int
	created []string
}

func newNotes(limit int, titles ...string) *fakeNotes {
	f := &fakeNotes{byTitle: make(map[string]models.NoteMetadata), limit: limit}
	for _, t := range titles {
		f.byTitle[strings.ToLower(t)] = models.NoteMetadata{ID: "id-" + strings.ToLower(t), Title: t}
	}
	return f
}

func (f *fakeNotes) LinkTarget(_ context.Context, title string) (models.NoteMetadata, error) {
	if m, ok := f.byTitle[strings.ToLower(title)]; ok {
		return m, nil
	}
	if len(f.byTitle) >= f.limit {
		return models.NoteMetadata{}, apperr.ErrNoteLimit
	}
	m := models.NoteMetadata{ID: "id-" + strings.ToLower(title), Title: title}
	f.byTitle[strings.ToLower(title)] = m
	f.created = append(f.created, title)
	return m, nil
}

type fakeBlocks map[string]*doc.Node

func (f fakeBlocks) ResolveBlock(_ context.Context, id string) (refindex.Resolution, error) {
	n, ok := f[id]
	if !ok {
		return refindex.Resolution{}, apperr.ErrUnresolvedReference
	}
	return refindex.Resolution{NoteID: "other", Path: doc.Path{0}, Node: n}, nil
}

func newSession(t *testing.T, notes autoformat.Notes, blocks autoformat.Blocks, nodes ...*doc.Node) *editor.Session {
	t.Helper()
	if len(nodes) == 0 {
		nodes = []*doc.Node{doc.Paragraph("")}
	}
	d := doc.FromNodes(nodes...)
	reg := nodeid.NewRegistry(quiet)
	reg.Load(map[string]*doc.Document{"n": d})
	d.Bind(reg.Scope("n"))
	return editor.NewSession("n", d,
		editor.WithLogger(quiet),
		editor.WithBefore(editor.Breakout()),
		editor.WithAfter(autoformat.New(notes, blocks, autoformat.WithLogger(quiet))))
}

// typeText feeds text one character at a time and collects warnings.
func typeText(t *testing.T, s *editor.Session, text string) []string {
	t.Helper()
	var warnings []string
	for _, r := range text {
		res, err := s.InsertText(context.Background(), string(r))
		require.NoError(t, err)
		warnings = append(warnings, res.Warnings...)
	}
	return warnings
}

func kinds(d *doc.Document) []doc.Kind {
	out := make([]doc.Kind, len(d.Children))
	for i, c := range d.Children {
		out[i] = c.Type
	}
	return out
}

// inline returns the non-empty inline children of the first block.
func inline(d *doc.Document) []*doc.Node {
	var out []*doc.Node
	b, _, _ := d.Block(doc.Path{0})
	for _, c := range b.Children {
		if c.IsText() && c.Text == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func TestBlockShortcuts(t *testing.T) {
	tests := []struct {
		typed string
		kinds []doc.Kind
		text  string
	}{
		{"# Title", []doc.Kind{doc.KindHeading1}, "Title"},
		{"## Title", []doc.Kind{doc.KindHeading2}, "Title"},
		{"### Title", []doc.Kind{doc.KindHeading3}, "Title"},
		{"> quoted", []doc.Kind{doc.KindBlockquote}, "quoted"},
		{"- item", []doc.Kind{doc.KindBulletedList}, "item"},
		{"* item", []doc.Kind{doc.KindBulletedList}, "item"},
		{"+ item", []doc.Kind{doc.KindBulletedList}, "item"},
		{"1. item", []doc.Kind{doc.KindNumberedList}, "item"},
		{"[]todo", []doc.Kind{doc.KindCheckListItem}, "todo"},
		{"```code", []doc.Kind{doc.KindCodeBlock}, "code"},
		{"---after", []doc.Kind{doc.KindThematicBreak, doc.KindParagraph}, "\nafter"},
		{"***", []doc.Kind{doc.KindThematicBreak, doc.KindParagraph}, "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.typed, func(t *testing.T) {
			s := newSession(t, nil, nil)
			typeText(t, s, tt.typed)
			d := s.Document()
			assert.Equal(t, tt.kinds, kinds(d))
			assert.Equal(t, tt.text, d.PlainText())
		})
	}
}

func TestListShortcutWrapsItem(t *testing.T) {
	s := newSession(t, nil, nil)
	typeText(t, s, "- x")

	d := s.Document()
	list := d.Children[0]
	require.Len(t, list.Children, 1)
	assert.Equal(t, doc.KindListItem, list.Children[0].Type)
	assert.NotEmpty(t, list.Children[0].ID)
	assert.Equal(t, doc.Point{Path: doc.Path{0, 0, 0}, Offset: 1}, s.Cursor())
}

func TestListShortcutJoinsPrecedingList(t *testing.T) {
	item := doc.NewElement(doc.KindListItem, doc.NewText("a"))
	s := newSession(t, nil, nil, doc.NewElement(doc.KindBulletedList, item), doc.Paragraph(""))
	require.NoError(t, s.Select(doc.Point{Path: doc.Path{1, 0}}))

	typeText(t, s, "- b")

	d := s.Document()
	require.Len(t, d.Children, 1)
	assert.Equal(t, "a\nb", d.PlainText())
	assert.Equal(t, doc.Point{Path: doc.Path{0, 1, 0}, Offset: 1}, s.Cursor())
}

func TestListShortcutInsideSameListKeepsItem(t *testing.T) {
	item := doc.NewElement(doc.KindListItem, doc.NewText(""))
	s := newSession(t, nil, nil, doc.NewElement(doc.KindNumberedList, item))

	typeText(t, s, "1. x")

	d := s.Document()
	assert.Equal(t, []doc.Kind{doc.KindNumberedList}, kinds(d))
	assert.Equal(t, "x", d.PlainText())
}

func TestHeadingShortcutKeepsFollowingText(t *testing.T) {
	s := newSession(t, nil, nil, doc.Paragraph("Hello"))
	typeText(t, s, "# ")

	d := s.Document()
	assert.Equal(t, []doc.Kind{doc.KindHeading1}, kinds(d))
	assert.Equal(t, "Hello", d.PlainText())
}

func TestHeadingShortcutOnlyAtLineStart(t *testing.T) {
	s := newSession(t, nil, nil)
	typeText(t, s, "a # b")
	assert.Equal(t, []doc.Kind{doc.KindParagraph}, kinds(s.Document()))
}

func TestInlineMarks(t *testing.T) {
	tests := []struct {
		typed string
		text  string
		mark  doc.Mark
	}{
		{"**bold**", "bold", doc.Bold},
		{"__bold__", "bold", doc.Bold},
		{"*it*", "it", doc.Italic},
		{"_it_", "it", doc.Italic},
		{"`x := 1`", "x := 1", doc.Code},
		{"~~gone~~", "gone", doc.Strikethrough},
	}
	for _, tt := range tests {
		t.Run(tt.typed, func(t *testing.T) {
			s := newSession(t, nil, nil)
			typeText(t, s, "say "+tt.typed+" done")

			got := inline(s.Document())
			require.Len(t, got, 3)
			assert.Equal(t, "say ", got[0].Text)
			assert.Equal(t, tt.text, got[1].Text)
			assert.True(t, got[1].Marks.Has(tt.mark))
			assert.Equal(t, " done", got[2].Text)
			assert.Zero(t, got[2].Marks, "typing continues without the mark")
		})
	}
}

func TestSnakeCaseIsNotItalic(t *testing.T) {
	s := newSession(t, nil, nil)
	typeText(t, s, "snake_case_name")
	got := inline(s.Document())
	require.Len(t, got, 1)
	assert.Equal(t, "snake_case_name", got[0].Text)
}

func TestNoteLinkResolvesExistingNote(t *testing.T) {
	notes := newNotes(10, "Foo")
	s := newSession(t, notes, nil)
	typeText(t, s, "see [[foo]] now")

	got := inline(s.Document())
	require.Len(t, got, 3)
	link := got[1]
	assert.Equal(t, doc.KindNoteLink, link.Type)
	assert.Equal(t, "id-foo", link.NoteID)
	assert.Equal(t, "Foo", link.NoteTitle)
	assert.Equal(t, "Foo", link.PlainText())
	assert.Equal(t, " now", got[2].Text)
	assert.Empty(t, notes.created)
}

func TestNoteLinkCreatesMissingNote(t *testing.T) {
	notes := newNotes(10)
	s := newSession(t, notes, nil)
	typeText(t, s, "[[Fresh Idea]]")

	assert.Equal(t, []string{"Fresh Idea"}, notes.created)
	got := inline(s.Document())
	require.Len(t, got, 1)
	assert.Equal(t, "id-fresh idea", got[0].NoteID)
}

func TestTagLink(t *testing.T) {
	s := newSession(t, newNotes(10, "Topic"), nil)
	typeText(t, s, "#[[Topic]]")

	got := inline(s.Document())
	require.Len(t, got, 1)
	assert.True(t, got[0].IsTag)
}

func TestNoteLinkAtLimitAbstains(t *testing.T) {
	notes := newNotes(1, "Only")
	s := newSession(t, notes, nil)
	warnings := typeText(t, s, "[[Missing]]")

	assert.Equal(t, "[[Missing]]", s.Document().PlainText())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "note limit")
	assert.Empty(t, notes.created)
}

func TestAliasedNoteLink(t *testing.T) {
	s := newSession(t, newNotes(10, "Foo"), nil)
	typeText(t, s, "[the foo]([[Foo]])")

	got := inline(s.Document())
	require.Len(t, got, 1)
	assert.Equal(t, "id-foo", got[0].NoteID)
	assert.Equal(t, "the foo", got[0].CustomText)
	assert.Equal(t, "the foo", got[0].PlainText())
}

func TestPipedNoteLinkUsesTextAfterPipe(t *testing.T) {
	notes := newNotes(10, "Foo")
	s := newSession(t, notes, nil)
	typeText(t, s, "[[Foo|the foo]]")

	got := inline(s.Document())
	require.Len(t, got, 1)
	assert.Equal(t, "id-foo", got[0].NoteID)
	assert.Equal(t, "Foo", got[0].NoteTitle)
	assert.Equal(t, "the foo", got[0].CustomText)
	assert.Equal(t, "the foo", got[0].PlainText())
	assert.Empty(t, notes.created)
}

func TestExternalLink(t *testing.T) {
	s := newSession(t, nil, nil)
	typeText(t, s, "[site](https://example.com/a)")

	got := inline(s.Document())
	require.Len(t, got, 1)
	assert.Equal(t, doc.KindExternalLink, got[0].Type)
	assert.Equal(t, "https://example.com/a", got[0].URL)
	assert.Equal(t, "site", got[0].PlainText())
}

func TestExternalLinkRequiresValidURL(t *testing.T) {
	s := newSession(t, nil, nil)
	typeText(t, s, "[site](%zz)")
	assert.Equal(t, "[site](%zz)", s.Document().PlainText())
}

func TestBlockReference(t *testing.T) {
	blocks := fakeBlocks{"b1": doc.Paragraph("shared thought")}
	s := newSession(t, nil, blocks)
	res, err := s.InsertData(context.Background(), "((b1))")
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	got := inline(s.Document())
	require.Len(t, got, 1)
	assert.Equal(t, doc.KindBlockReference, got[0].Type)
	assert.Equal(t, "b1", got[0].BlockID)
	assert.Equal(t, "shared thought", got[0].PlainText())
}

func TestUnresolvedBlockReferenceWarns(t *testing.T) {
	s := newSession(t, nil, fakeBlocks{})
	warnings := typeText(t, s, "((gone))")

	got := inline(s.Document())
	require.Len(t, got, 1)
	assert.Equal(t, "gone", got[0].BlockID)
	assert.Equal(t, "((gone))", got[0].PlainText())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "unresolved")
}

func TestTag(t *testing.T) {
	s := newSession(t, nil, nil)
	typeText(t, s, "about #golang today")

	got := inline(s.Document())
	require.Len(t, got, 3)
	assert.Equal(t, doc.KindTag, got[1].Type)
	assert.Equal(t, "golang", got[1].Name)
	assert.Equal(t, "#golang", got[1].PlainText())
	assert.Equal(t, " today", got[2].Text)
}

func TestCodeBlockSuppressesPipeline(t *testing.T) {
	s := newSession(t, nil, nil)
	typeText(t, s, "```**not bold** [[x]]")

	d := s.Document()
	assert.Equal(t, []doc.Kind{doc.KindCodeBlock}, kinds(d))
	assert.Equal(t, "**not bold** [[x]]", d.PlainText())
}

func TestOneTransformPerInput(t *testing.T) {
	s := newSession(t, newNotes(10, "A", "B"), nil)
	_, err := s.InsertData(context.Background(), "[[A]] and [[B]]")
	require.NoError(t, err)

	var links int
	s.Document().Walk(func(n *doc.Node, _ doc.Path) bool {
		if n.Type == doc.KindNoteLink {
			links++
		}
		return true
	})
	assert.Equal(t, 1, links)
	assert.True(t, strings.HasPrefix(s.Document().PlainText(), "[[A]] and "))
}

func TestMatcherOrder(t *testing.T) {
	p := autoformat.New(nil, nil)
	var names []string
	for _, m := range p.Matchers() {
		names = append(names, m.Stage.String()+":"+m.Name)
	}
	assert.Equal(t, []string{
		"block:bulleted-list", "block:numbered-list", "block:block-quote", "block:heading",
		"block:code-block", "block:thematic-break", "block:check-list-item",
		"inline:aliased-note-link", "inline:external-link", "inline:note-link",
		"inline:block-reference", "inline:bold", "inline:bold", "inline:italic",
		"inline:italic", "inline:code", "inline:strikethrough", "inline:tag",
	}, names)
}
