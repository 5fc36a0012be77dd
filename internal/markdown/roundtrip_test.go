package markdown_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/markdown"
)

// shape renders the visible semantics of a tree: kinds, link targets, marks
// and text. Ids, empty leaves and leaf boundaries are ignored.
func shape(nodes []*doc.Node, depth int, out *[]string) {
	indent := strings.Repeat("  ", depth)
	var run *doc.Node
	flush := func() {
		if run != nil && run.Text != "" {
			*out = append(*out, fmt.Sprintf("%s%q %v", indent, run.Text, run.Marks.List()))
		}
		run = nil
	}
	for _, n := range nodes {
		if n.IsText() {
			if run != nil && run.Marks == n.Marks {
				run.Text += n.Text
				continue
			}
			flush()
			run = &doc.Node{Text: n.Text, Marks: n.Marks}
			continue
		}
		flush()
		*out = append(*out, fmt.Sprintf("%s%s checked=%t url=%q caption=%q note=%q title=%q custom=%q tag=%t name=%q block=%q",
			indent, n.Type, n.Checked, n.URL, n.Caption, n.NoteID, n.NoteTitle, n.CustomText, n.IsTag, n.Name, n.BlockID))
		shape(n.Children, depth+1, out)
	}
	flush()
}

func shapeOf(d *doc.Document) []string {
	var out []string
	shape(d.Children, 0, &out)
	return out
}

func TestRoundTripIsSemanticallyIdempotent(t *testing.T) {
	img := el(doc.KindImage)
	img.URL = "https://example.com/cat.png"
	img.Caption = "a cat"

	aliased := doc.NoteLink("n2", "Other")
	aliased.CustomText = "alias"
	aliased.Children[0].Text = "alias"
	tagLink := doc.NoteLink("n3", "Topic")
	tagLink.IsTag = true
	tag := el(doc.KindTag, txt("#golang"))
	tag.Name = "golang"
	link := el(doc.KindExternalLink, txt("site"))
	link.URL = "https://example.com"
	done := el(doc.KindCheckListItem, txt("done"))
	done.Checked = true

	target := el(doc.KindParagraph, txt("shared idea"))
	target.ID = "b1"

	original := doc.FromNodes(
		el(doc.KindHeading1, txt("Title")),
		el(doc.KindParagraph,
			txt("plain "), txt("bold", doc.Bold), txt(" "), txt("italic", doc.Italic), txt(" "),
			txt("both", doc.Bold, doc.Italic), txt(" "), txt("struck", doc.Strikethrough), txt(" "),
			txt("code", doc.Code), txt(" "), txt("under", doc.Underline), txt(" "), txt("lit", doc.Highlight)),
		el(doc.KindParagraph,
			txt("see "), doc.NoteLink("n1", "Target"), txt(" and "), aliased, txt(" tag "), tagLink,
			txt(" "), tag, txt(" "), link, txt(".")),
		el(doc.KindBulletedList,
			el(doc.KindListItem, txt("one")),
			el(doc.KindNumberedList,
				el(doc.KindListItem, txt("first")),
				el(doc.KindListItem, txt("second"))),
			el(doc.KindListItem, txt("two"))),
		el(doc.KindCheckListItem, txt("todo")),
		done,
		el(doc.KindBlockquote, txt("quoted")),
		el(doc.KindCodeBlock, txt("x := 1\nreturn x")),
		el(doc.KindThematicBreak),
		img,
		doc.Paragraph(""),
		el(doc.KindParagraph, txt("end "), doc.BlockRef("b1", "shared idea")),
	)

	text := markdown.Serialize(original, markdown.KeepBlockReferences())
	parsed := markdown.Parse(text,
		markdown.WithTitleResolver(titleMap{"Target": "n1", "Other": "n2", "Topic": "n3"}),
		markdown.WithBlockResolver(blockMap{"b1": target}))

	assert.Equal(t, shapeOf(original), shapeOf(parsed), "markdown was:\n%s", text)

	// A second pass is stable byte for byte.
	assert.Equal(t, text, markdown.Serialize(parsed, markdown.KeepBlockReferences()))
}

func TestRoundTripKeepsAdjacentListsApart(t *testing.T) {
	for _, kind := range []doc.Kind{doc.KindBulletedList, doc.KindNumberedList} {
		t.Run(string(kind), func(t *testing.T) {
			original := doc.FromNodes(
				el(kind, el(doc.KindListItem, txt("a"))),
				el(kind, el(doc.KindListItem, txt("b"))),
			)

			text := markdown.Serialize(original)
			parsed := markdown.Parse(text)

			assert.Equal(t, shapeOf(original), shapeOf(parsed), "markdown was:\n%s", text)
			assert.Equal(t, text, markdown.Serialize(parsed))
		})
	}
}

func TestParseDropsHTMLComments(t *testing.T) {
	parsed := markdown.Parse("before\n\n<!-- note to self -->\n\nafter\n")
	assert.Equal(t, []string{
		`paragraph checked=false url="" caption="" note="" title="" custom="" tag=false name="" block=""`,
		`  "before" []`,
		`paragraph checked=false url="" caption="" note="" title="" custom="" tag=false name="" block=""`,
		`  "after" []`,
	}, shapeOf(parsed))
}
