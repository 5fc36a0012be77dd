package noteservice_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/editor"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/nodeid"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/refindex"
	"github.com/starford/notegraph/internal/storage"
	"github.com/starford/notegraph/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// flakyStore fails content writes for the notes in fail. afterSnapshot
// runs once, after the next AllNotes.
type flakyStore struct {
	*store.Memory

	mu            sync.Mutex
	fail          map[string]bool
	afterSnapshot func()
}

func (f *flakyStore) AllNotes(ctx context.Context) (map[string]*models.Note, error) {
	notes, err := f.Memory.AllNotes(ctx)
	f.mu.Lock()
	hook := f.afterSnapshot
	f.afterSnapshot = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return notes, err
}

func (f *flakyStore) setFailing(id string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[id] = failing
}

func (f *flakyStore) ApplyContentChange(ctx context.Context, id string, d *doc.Document) error {
	f.mu.Lock()
	failing := f.fail[id]
	f.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return f.Memory.ApplyContentChange(ctx, id, d)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishNoteEvent(kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+id)
}

type fixture struct {
	svc *noteservice.Service
	st  *flakyStore
	reg *nodeid.Registry
}

func newFixture(t *testing.T, opts ...noteservice.Option) *fixture {
	t.Helper()
	f := unloaded(t, opts...)
	require.NoError(t, f.svc.Load(context.Background()))
	return f
}

func unloaded(t *testing.T, opts ...noteservice.Option) *fixture {
	t.Helper()
	st := &flakyStore{Memory: store.NewMemory(), fail: make(map[string]bool)}
	reg := nodeid.NewRegistry(quiet)
	reg.SetGenerator(nodeid.NewSequence("gen"))
	idx := refindex.New(st, quiet)
	opts = append([]noteservice.Option{noteservice.WithLogger(quiet)}, opts...)
	return &fixture{svc: noteservice.NewService(st, reg, idx, opts...), st: st, reg: reg}
}

func (f *fixture) create(t *testing.T, title string, blocks ...*doc.Node) *noteservice.NoteDetail {
	t.Helper()
	var content *doc.Document
	if len(blocks) > 0 {
		content = doc.FromNodes(blocks...)
	}
	n, err := f.svc.CreateNote(context.Background(), title, content)
	require.NoError(t, err)
	return n
}

func (f *fixture) stored(t *testing.T, id string) *models.Note {
	t.Helper()
	n, err := f.st.GetNote(context.Background(), id)
	require.NoError(t, err)
	return n
}

func (f *fixture) typeText(t *testing.T, id, text string) {
	t.Helper()
	for _, r := range text {
		_, err := f.svc.Edit(context.Background(), id, func(ctx context.Context, sess *editor.Session) (editor.Result, error) {
			return sess.InsertText(ctx, string(r))
		})
		require.NoError(t, err)
	}
}

func nodesOf(d *doc.Document, k doc.Kind) []*doc.Node {
	var out []*doc.Node
	d.Walk(func(n *doc.Node, _ doc.Path) bool {
		if n.Type == k {
			out = append(out, n)
		}
		return n.IsElement()
	})
	return out
}

func linkingParagraph(id, title string) *doc.Node {
	return doc.NewElement(doc.KindParagraph, doc.NewText("see "), doc.NoteLink(id, title), doc.NewText(""))
}

func TestCreateNote(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := newFixture(t, noteservice.WithNotifier(rec))

	n := f.create(t, "  Alpha ")
	assert.Equal(t, "Alpha", n.Title)
	require.Len(t, n.Content.Children, 1)
	assert.NotEmpty(t, n.Content.Children[0].ID)
	assert.NotEmpty(t, n.Checksum)
	assert.Equal(t, []string{"created:" + n.ID}, rec.events)

	_, err := f.svc.CreateNote(ctx, "ALPHA", nil)
	assert.ErrorIs(t, err, apperr.ErrDuplicateTitle)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	for _, bad := range []string{"", "   ", "a [[b]]", "two\nlines", "A|B"} {
		_, err := f.svc.CreateNote(ctx, bad, nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, "title %q", bad)
	}
}

func TestCreateNoteReplacesTakenIDs(t *testing.T) {
	f := newFixture(t)
	p := doc.Paragraph("first")
	p.ID = "shared"
	a := f.create(t, "A", p)

	q := doc.Paragraph("second")
	q.ID = "shared"
	b := f.create(t, "B", q)

	assert.Equal(t, "shared", a.Content.Children[0].ID)
	assert.NotEqual(t, "shared", b.Content.Children[0].ID)
	owner, ok := f.reg.Owner(b.Content.Children[0].ID)
	require.True(t, ok)
	assert.Equal(t, b.ID, owner)
}

func TestNoteLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, noteservice.WithMaxNotes(1))
	f.create(t, "Only")

	_, err := f.svc.CreateNote(ctx, "Second", nil)
	assert.ErrorIs(t, err, apperr.ErrNoteLimit)

	_, err = f.svc.LinkTarget(ctx, "Second")
	assert.ErrorIs(t, err, apperr.ErrNoteLimit)

	target, err := f.svc.LinkTarget(ctx, "only")
	require.NoError(t, err)
	assert.Equal(t, "Only", target.Title)
}

func TestEditPersistsTyping(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, noteservice.WithNotifier(rec))
	n := f.create(t, "Draft")

	f.typeText(t, n.ID, "hello")

	assert.Equal(t, "hello", f.stored(t, n.ID).Content.PlainText())
	assert.Contains(t, rec.events, "updated:"+n.ID)
}

func TestTypedNoteLinkCreatesTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	n := f.create(t, "Source")

	f.typeText(t, n.ID, "see [[Target]]")

	target, err := f.st.FindByTitle(ctx, "target")
	require.NoError(t, err)
	links := nodesOf(f.stored(t, n.ID).Content, doc.KindNoteLink)
	require.Len(t, links, 1)
	assert.Equal(t, target.ID, links[0].NoteID)
	assert.Equal(t, "Target", links[0].NoteTitle)

	require.NoError(t, f.svc.Index().Refresh(ctx))
	bl, err := f.svc.Backlinks(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, bl.LinkedCount)
	require.Len(t, bl.Linked, 1)
	assert.Equal(t, n.ID, bl.Linked[0].SourceID)
}

func TestUnlinkedBacklinks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := f.create(t, "Go")
	f.create(t, "Mentions", doc.Paragraph("I like go and GO."))

	require.NoError(t, f.svc.Index().Refresh(ctx))
	bl, err := f.svc.Backlinks(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, bl.LinkedCount)
	assert.Equal(t, 2, bl.UnlinkedCount)
	require.Len(t, bl.Unlinked, 1)
	assert.Len(t, bl.Unlinked[0].Display(), 1)
}

func TestRenamePropagates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, "B")
	a := f.create(t, "A", linkingParagraph(b.ID, "B"))
	custom := doc.NoteLink(b.ID, "B")
	custom.CustomText = "alias"
	custom.Children[0].Text = "alias"
	c := f.create(t, "C", doc.NewElement(doc.KindParagraph, doc.NewText(""), custom, doc.NewText("")))

	batch, err := f.svc.RenameNote(ctx, b.ID, "Bee")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, batch.Updated)
	assert.Empty(t, batch.Failed)
	assert.NoError(t, batch.Err())

	assert.Equal(t, "Bee", f.stored(t, b.ID).Title)
	link := nodesOf(f.stored(t, a.ID).Content, doc.KindNoteLink)[0]
	assert.Equal(t, "Bee", link.NoteTitle)
	assert.Equal(t, "Bee", link.PlainText())
	aliased := nodesOf(f.stored(t, c.ID).Content, doc.KindNoteLink)[0]
	assert.Equal(t, "Bee", aliased.NoteTitle)
	assert.Equal(t, "alias", aliased.PlainText())
}

func TestRenameToTakenTitleChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, "B")
	f.create(t, "Other")
	a := f.create(t, "A", linkingParagraph(b.ID, "B"))

	_, err := f.svc.RenameNote(ctx, b.ID, "other")
	assert.ErrorIs(t, err, apperr.ErrDuplicateTitle)
	assert.Equal(t, "B", f.stored(t, b.ID).Title)
	assert.Equal(t, "B", nodesOf(f.stored(t, a.ID).Content, doc.KindNoteLink)[0].NoteTitle)
}

func TestRenameReachesOpenSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, "B")
	a := f.create(t, "A", linkingParagraph(b.ID, "B"))

	sess, err := f.svc.Session(ctx, a.ID)
	require.NoError(t, err)
	require.NoError(t, sess.Select(doc.Point{Path: doc.Path{0, 2}, Offset: 0}))

	_, err = f.svc.RenameNote(ctx, b.ID, "Bravo")
	require.NoError(t, err)

	link := nodesOf(sess.Document(), doc.KindNoteLink)[0]
	assert.Equal(t, "Bravo", link.PlainText())
	assert.Equal(t, doc.Point{Path: doc.Path{0, 2}, Offset: 0}, sess.Cursor())
	assert.Equal(t, "see Bravo", f.stored(t, a.ID).Content.PlainText())
}

func TestRenameKeepsEditsMadeAfterSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, "B")
	a := f.create(t, "A", linkingParagraph(b.ID, "B"))
	c := f.create(t, "C", linkingParagraph(b.ID, "B"))

	f.st.mu.Lock()
	f.st.afterSnapshot = func() {
		f.typeText(t, a.ID, "x")
		f.svc.CloseSession(a.ID)
		f.typeText(t, c.ID, "y")
	}
	f.st.mu.Unlock()

	batch, err := f.svc.RenameNote(ctx, b.ID, "Bee")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, batch.Updated)

	assert.Equal(t, "xsee Bee", f.stored(t, a.ID).Content.PlainText())
	assert.Equal(t, "ysee Bee", f.stored(t, c.ID).Content.PlainText())
	sess, err := f.svc.Session(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "ysee Bee", sess.Document().PlainText())
}

func TestRenamePartialFailureAndRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, "B")
	a := f.create(t, "A", linkingParagraph(b.ID, "B"))
	c := f.create(t, "C", linkingParagraph(b.ID, "B"))
	f.st.setFailing(a.ID, true)

	batch, err := f.svc.RenameNote(ctx, b.ID, "Bee")
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, batch.Updated)
	assert.Equal(t, []string{a.ID}, batch.FailedIDs())

	var pe *apperr.PersistenceError
	require.ErrorAs(t, batch.Err(), &pe)
	assert.Equal(t, a.ID, pe.NoteID)
	assert.Equal(t, "content", pe.Field)
	assert.Equal(t, []string{a.ID}, f.svc.Pending())
	assert.Equal(t, "see B", f.stored(t, a.ID).Content.PlainText())

	retry, err := f.svc.Retry(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, retry.FailedIDs())

	f.st.setFailing(a.ID, false)
	retry, err = f.svc.Retry(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, retry.Updated)
	assert.Empty(t, retry.Failed)
	assert.Empty(t, f.svc.Pending())
	assert.Equal(t, "see Bee", f.stored(t, a.ID).Content.PlainText())
}

func TestRetryUnknownNote(t *testing.T) {
	f := newFixture(t)
	batch, err := f.svc.Retry(context.Background(), "nope")
	require.NoError(t, err)
	require.Len(t, batch.Failed, 1)
	assert.ErrorIs(t, batch.Failed[0], apperr.ErrNotFound)
}

func TestDeleteDissolvesReferences(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := newFixture(t, noteservice.WithNotifier(rec))
	quoted := doc.Paragraph("quoted text")
	quoted.ID = "b1"
	b := f.create(t, "B", quoted)
	a := f.create(t, "A", doc.NewElement(doc.KindParagraph,
		doc.NewText("see "), doc.NoteLink(b.ID, "B"), doc.NewText(" and "),
		doc.BlockRef("b1", "quoted text"), doc.NewText("")))

	batch, err := f.svc.DeleteNote(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, batch.Updated)

	_, err = f.st.GetNote(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, owned := f.reg.Owner("b1")
	assert.False(t, owned)

	content := f.stored(t, a.ID).Content
	assert.Equal(t, "see B and quoted text", content.PlainText())
	assert.Empty(t, nodesOf(content, doc.KindNoteLink))
	assert.Empty(t, nodesOf(content, doc.KindBlockReference))
	assert.Contains(t, rec.events, "deleted:"+b.ID)

	_, err = f.svc.DeleteNote(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReplaceContentChecksIfMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	n := f.create(t, "Doc", doc.Paragraph("v1"))

	_, err := f.svc.ReplaceContent(ctx, n.ID, doc.FromNodes(doc.Paragraph("v2")), "stale")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, err := f.svc.ReplaceContent(ctx, n.ID, doc.FromNodes(doc.Paragraph("v2")), n.Checksum)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content.PlainText())
	assert.NotEqual(t, n.Checksum, got.Checksum)
}

func TestReplaceContentRejectsNullNodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	n := f.create(t, "Doc", doc.Paragraph("v1"))

	bad := doc.FromNodes(&doc.Node{Type: doc.KindParagraph, Children: []*doc.Node{nil}})
	_, err := f.svc.ReplaceContent(ctx, n.ID, bad, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.svc.ReplaceContent(ctx, n.ID, nil, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.svc.CreateNote(ctx, "Other", bad)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	assert.Equal(t, "v1", f.stored(t, n.ID).Content.PlainText())
}

func TestReplaceContentReopensSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	n := f.create(t, "Doc", doc.Paragraph("old"))
	f.typeText(t, n.ID, "x")

	_, err := f.svc.ReplaceContent(ctx, n.ID, doc.FromNodes(doc.Paragraph("new")), "")
	require.NoError(t, err)
	f.typeText(t, n.ID, "y")

	assert.Equal(t, "ynew", f.stored(t, n.ID).Content.PlainText())
}

func TestExportAndImport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	hello := f.create(t, "Hello World", doc.Paragraph("body"))
	f.create(t, "Hello, World!", doc.Paragraph("other"))

	dir, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	exported, err := f.svc.Export(ctx, dir)
	require.NoError(t, err)
	require.Len(t, exported, 2)
	assert.Equal(t, noteservice.Exported{NoteID: hello.ID, Path: "hello-world.md"}, exported[0])
	assert.Equal(t, "hello-world-2.md", exported[1].Path)

	data, err := dir.Read("hello-world.md")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "---\ntitle: Hello World\n---\n"), string(data))
	assert.Contains(t, string(data), "body")

	inbox, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, inbox.Write("new.md", []byte("---\ntitle: Imported\n---\n\nSee [[Hello World]]\n")))

	results, err := f.svc.Import(ctx, inbox, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Created)
	assert.Equal(t, "Imported", results[0].Title)

	links := nodesOf(f.stored(t, results[0].NoteID).Content, doc.KindNoteLink)
	require.Len(t, links, 1)
	assert.Equal(t, hello.ID, links[0].NoteID)

	again := f.svc.ImportFile(ctx, "renamed.md", []byte("# Imported\n\nupdated"))
	require.NoError(t, again.Err)
	assert.False(t, again.Created)
	assert.Equal(t, results[0].NoteID, again.NoteID)
	assert.Contains(t, f.stored(t, again.NoteID).Content.PlainText(), "updated")
}

func TestImportResolvesLinksWithinBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	inbox, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, inbox.Write("a.md", []byte("# A\n\nsee [[B]]\n")))
	require.NoError(t, inbox.Write("b.md", []byte("# B\n\nbody\n")))

	results, err := f.svc.Import(ctx, inbox, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.True(t, res.Created, res.Path)
	}
	a, b := results[0], results[1]
	assert.Equal(t, "B", b.Title)

	links := nodesOf(f.stored(t, a.NoteID).Content, doc.KindNoteLink)
	require.Len(t, links, 1)
	assert.Equal(t, b.NoteID, links[0].NoteID)
	assert.Contains(t, f.stored(t, b.NoteID).Content.PlainText(), "body")

	notes, err := f.svc.ListNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	require.NoError(t, f.svc.Index().Refresh(ctx))
	bl, err := f.svc.Backlinks(ctx, b.NoteID)
	require.NoError(t, err)
	require.Len(t, bl.Linked, 1)
	assert.Equal(t, a.NoteID, bl.Linked[0].SourceID)
}

func TestImportFilesCountsRepeatedTitleOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	results := f.svc.ImportFiles(ctx, []noteservice.Source{
		{Path: "one.md", Data: []byte("# Same\n\nfirst")},
		{Path: "two.md", Data: []byte("# Same\n\nsecond")},
		{Path: "bad.md", Data: []byte("# Bad|Title")},
	})
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.True(t, results[0].Created)
	assert.False(t, results[1].Created)
	assert.Equal(t, results[0].NoteID, results[1].NoteID)
	assert.Contains(t, f.stored(t, results[0].NoteID).Content.PlainText(), "second")
	assert.ErrorIs(t, results[2].Err, apperr.ErrInvalidInput)
}

func TestExportNoteKeepsReferencesOnRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quoted := doc.Paragraph("quoted")
	quoted.ID = "q1"
	f.create(t, "Source", quoted)
	a := f.create(t, "A", doc.NewElement(doc.KindParagraph, doc.NewText(""), doc.BlockRef("q1", "quoted"), doc.NewText("")))
	require.NoError(t, f.svc.Index().Refresh(ctx))

	flat, err := f.svc.ExportNote(ctx, a.ID, false)
	require.NoError(t, err)
	assert.Contains(t, flat, "quoted")
	assert.NotContains(t, flat, "((q1))")

	kept, err := f.svc.ExportNote(ctx, a.ID, true)
	require.NoError(t, err)
	assert.Contains(t, kept, "((q1))")
}

func TestDoctorFindsAndRepairsDuplicates(t *testing.T) {
	ctx := context.Background()
	f := unloaded(t)
	for _, id := range []string{"n1", "n2"} {
		p := doc.Paragraph("text " + id)
		p.ID = "dup"
		require.NoError(t, f.st.CreateNote(ctx, &models.Note{ID: id, Title: id, Content: doc.FromNodes(p)}))
	}

	report, err := f.svc.Doctor(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Notes)
	assert.Equal(t, []nodeid.Duplicate{{ID: "dup", Notes: []string{"n1", "n2"}}}, report.Duplicates)
	assert.Nil(t, report.Repaired)

	report, err = f.svc.Doctor(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"n2": 1}, report.Repaired)
	assert.Equal(t, "dup", f.stored(t, "n1").Content.Children[0].ID)
	assert.NotEqual(t, "dup", f.stored(t, "n2").Content.Children[0].ID)

	report, err = f.svc.Doctor(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.Duplicates)
}

func TestLoadRepairsDuplicates(t *testing.T) {
	ctx := context.Background()
	f := unloaded(t)
	for _, id := range []string{"n1", "n2"} {
		p := doc.Paragraph(id)
		p.ID = "dup"
		require.NoError(t, f.st.CreateNote(ctx, &models.Note{ID: id, Title: id, Content: doc.FromNodes(p)}))
	}

	require.NoError(t, f.svc.Load(ctx))
	assert.Equal(t, 2, f.reg.Len())
	assert.NotEqual(t, "dup", f.stored(t, "n2").Content.Children[0].ID)
}

func TestInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	n := f.create(t, "Doc")

	res, err := f.svc.Input(ctx, n.ID, noteservice.Input{Kind: noteservice.InputText, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Content.PlainText())
	assert.Equal(t, doc.Point{Path: doc.Path{0, 0}, Offset: 2}, res.Cursor)
	assert.Empty(t, res.Warnings)

	res, err = f.svc.Input(ctx, n.ID, noteservice.Input{Kind: noteservice.InputBreak})
	require.NoError(t, err)
	assert.Len(t, res.Content.Children, 2)
	assert.Equal(t, "hi\n", f.stored(t, n.ID).Content.PlainText())

	_, err = f.svc.Input(ctx, n.ID, noteservice.Input{Kind: "paste_html"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.Input(ctx, n.ID, noteservice.Input{
		Kind: noteservice.InputText, Text: "x",
		At:   &doc.Point{Path: doc.Path{7, 0}},
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidPath)
}

func TestInsertImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	n := f.create(t, "Doc")

	_, err := f.svc.InsertImage(ctx, n.ID, "/attachments/diagram.png", " Diagram ")
	require.NoError(t, err)
	images := nodesOf(f.stored(t, n.ID).Content, doc.KindImage)
	require.Len(t, images, 1)
	assert.Equal(t, "/attachments/diagram.png", images[0].URL)
	assert.Equal(t, "Diagram", images[0].Caption)
	assert.NotEmpty(t, images[0].ID)

	_, err = f.svc.InsertImage(ctx, n.ID, "not a url", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
