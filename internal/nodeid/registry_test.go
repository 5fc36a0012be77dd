package nodeid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/nodeid"
)

func para(id, text string) *doc.Node {
	n := doc.Paragraph(text)
	n.ID = id
	return n
}

func newRegistry() *nodeid.Registry {
	r := nodeid.NewRegistry(nil)
	r.SetGenerator(nodeid.NewSequence("gen"))
	return r
}

func TestLoadRepairsDuplicatesAcrossNotes(t *testing.T) {
	docs := map[string]*doc.Document{
		"a": doc.FromNodes(para("x", "one"), para("y", "two")),
		"b": doc.FromNodes(para("x", "copy")),
	}
	r := newRegistry()
	repaired := r.Load(docs)

	assert.Equal(t, map[string]int{"b": 1}, repaired)
	assert.Equal(t, "gen-1", docs["b"].Children[0].ID)
	assert.Empty(t, nodeid.Verify(docs))
	owner, ok := r.Owner("x")
	require.True(t, ok)
	assert.Equal(t, "a", owner)
}

func TestLoadFillsMissingIDs(t *testing.T) {
	list := doc.NewElement(doc.KindBulletedList, doc.NewElement(doc.KindListItem, doc.NewText("i")))
	docs := map[string]*doc.Document{"a": doc.FromNodes(para("", "one"), list)}
	r := newRegistry()
	r.Load(docs)

	assert.Equal(t, "gen-1", docs["a"].Children[0].ID)
	assert.Empty(t, list.ID, "lists are not referenceable")
	assert.Equal(t, "gen-2", list.Children[0].ID)
}

func TestPasteRepairsDuplicatesWithinAndAcrossNotes(t *testing.T) {
	r := newRegistry()
	a := doc.FromNodes(para("x", "source"))
	b := doc.FromNodes(para("y", "other"))
	r.Load(map[string]*doc.Document{"a": a, "b": b})
	a.Bind(r.Scope("a"))
	b.Bind(r.Scope("b"))

	// Copy block x from a into b and into a itself.
	require.NoError(t, b.Apply(&doc.InsertNode{Path: doc.Path{1}, Node: a.Children[0].Clone()}))
	require.NoError(t, a.Apply(&doc.InsertNode{Path: doc.Path{1}, Node: a.Children[0].Clone()}))

	assert.Equal(t, "x", a.Children[0].ID)
	assert.NotEqual(t, "x", a.Children[1].ID)
	assert.NotEqual(t, "x", b.Children[1].ID)
	assert.NotEqual(t, a.Children[1].ID, b.Children[1].ID)
	assert.Empty(t, nodeid.Verify(map[string]*doc.Document{"a": a, "b": b}))
}

func TestPasteRepairsNestedIDs(t *testing.T) {
	r := newRegistry()
	list := doc.NewElement(doc.KindBulletedList,
		&doc.Node{Type: doc.KindListItem, ID: "li", Children: []*doc.Node{doc.NewText("i")}})
	a := doc.FromNodes(list)
	r.Load(map[string]*doc.Document{"a": a})
	a.Bind(r.Scope("a"))

	require.NoError(t, a.Apply(&doc.InsertNode{Path: doc.Path{1}, Node: list.Clone()}))
	assert.Equal(t, "li", a.Children[0].Children[0].ID)
	assert.NotEqual(t, "li", a.Children[1].Children[0].ID)
	assert.NotEmpty(t, a.Children[1].Children[0].ID)
}

func TestRemoveReleasesIDsForUndo(t *testing.T) {
	r := newRegistry()
	a := doc.FromNodes(para("x", "one"), para("y", "two"))
	r.Load(map[string]*doc.Document{"a": a})
	a.Bind(r.Scope("a"))

	rm := &doc.RemoveNode{Path: doc.Path{0}}
	require.NoError(t, a.Apply(rm))
	_, ok := r.Owner("x")
	assert.False(t, ok)

	require.NoError(t, a.Apply(&doc.InsertNode{Path: doc.Path{0}, Node: rm.Node}))
	assert.Equal(t, "x", a.Children[0].ID)
}

func TestSplitAssignsFreshIDToSecondHalf(t *testing.T) {
	r := newRegistry()
	a := doc.FromNodes(para("x", "hello world"))
	r.Load(map[string]*doc.Document{"a": a})
	a.Bind(r.Scope("a"))

	require.NoError(t, a.Apply(&doc.SplitNode{Path: doc.Path{0, 0}, Position: 5}))
	require.NoError(t, a.Apply(&doc.SplitNode{Path: doc.Path{0}, Position: 1}))

	assert.Equal(t, "x", a.Children[0].ID)
	assert.Equal(t, "gen-1", a.Children[1].ID)
	owner, _ := r.Owner("gen-1")
	assert.Equal(t, "a", owner)
}

func TestMergeReleasesMergedID(t *testing.T) {
	r := newRegistry()
	a := doc.FromNodes(para("x", "one"), para("y", "two"))
	r.Load(map[string]*doc.Document{"a": a})
	a.Bind(r.Scope("a"))

	require.NoError(t, a.Apply(&doc.MergeNode{Path: doc.Path{1}}))
	_, ok := r.Owner("y")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestSyncAndForget(t *testing.T) {
	r := newRegistry()
	r.Load(map[string]*doc.Document{"a": doc.FromNodes(para("x", "one"))})

	incoming := doc.FromNodes(para("x", "imported"), para("z", "new"))
	assert.Equal(t, 1, r.Sync("b", incoming))
	assert.NotEqual(t, "x", incoming.Children[0].ID)

	assert.Equal(t, 0, r.Sync("a", doc.FromNodes(para("x", "one again"))))

	r.Forget("b")
	_, ok := r.Owner("z")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestSequenceUsesPredefinedIDsFirst(t *testing.T) {
	s := nodeid.NewSequence("n", "first")
	assert.Equal(t, "first", s.New())
	assert.Equal(t, "n-1", s.New())
}

func TestUUIDGeneratorUnique(t *testing.T) {
	g := nodeid.UUIDGenerator{}
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := g.New()
		require.False(t, seen[id])
		seen[id] = true
	}
}
